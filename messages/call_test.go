package messages

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestCall_LateReplyIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c := newCall("ping", nil, logger)
	if c.current() != stateOpen {
		t.Fatalf("new call state=%s", c.current())
	}

	if !c.settle(nil, context.Canceled) {
		t.Fatal("first settle must win")
	}

	c.onMessage("late")

	if c.value != nil || c.err != context.Canceled {
		t.Fatalf("late reply changed the outcome: value=%v err=%v", c.value, c.err)
	}

	if !strings.Contains(buf.String(), "reply after settle ignored") || !strings.Contains(buf.String(), "state=settled") {
		t.Fatalf("log=%q", buf.String())
	}
}
