package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

// ErrorResponse is the application-level error shape a handler may resolve to.
// It travels as a normal reply; the initiator sees it in Reply.Err.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Reply is the initiator-side view of a response: the decoded value plus the
// optional application-level error carried by an {"error": "..."} shape.
type Reply[R any] struct {
	Value R
	Err   string
}

// Failed reports whether the responder resolved to an error shape.
func (r Reply[R]) Failed() bool { return r.Err != "" }

// AsError converts an application-level error into a Go error wrapping
// ErrApplicationError. It returns nil for normal replies.
func (r Reply[R]) AsError() error {
	if r.Err == "" {
		return nil
	}

	return fmt.Errorf("%s: %w", r.Err, berr.ErrApplicationError)
}

func decodeReply[R any](typ string, v any) (Reply[R], error) {
	out := Reply[R]{Err: errorField(v)}

	val, err := decodeAs[R](v)
	if err != nil {
		// An error shape does not have to match R.
		if out.Err != "" {
			return out, nil
		}

		return out, decodeError("reply", typ, err)
	}

	out.Value = val

	return out, nil
}

// decodeAs converts a value received from a port into T. Values already of
// type T pass through; wire data and structurally-equal values go through JSON.
func decodeAs[T any](v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}

	var (
		raw []byte
		err error
	)

	switch x := v.(type) {
	case json.RawMessage:
		if reflect.TypeFor[T]() == reflect.TypeFor[json.RawMessage]() {
			return v.(T), nil
		}

		raw = x
	default:
		if t, ok := v.(T); ok {
			return t, nil
		}

		if raw, err = json.Marshal(v); err != nil {
			return zero, err
		}
	}

	if len(raw) == 0 || string(raw) == "null" {
		return zero, nil
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, err
	}

	return out, nil
}

func errorField(v any) string {
	switch x := v.(type) {
	case ErrorResponse:
		return x.Error
	case *ErrorResponse:
		if x != nil {
			return x.Error
		}
	case interface{ ResponseError() string }:
		return x.ResponseError()
	case map[string]any:
		if s, ok := x["error"].(string); ok {
			return s
		}
	case json.RawMessage:
		var probe struct {
			Error string `json:"error"`
		}

		if json.Unmarshal(x, &probe) == nil {
			return probe.Error
		}
	}

	return ""
}

// isEmpty reports whether a handler result counts as "no response owed".
func isEmpty(v any) bool {
	if v == nil {
		return true
	}

	return reflect.ValueOf(v).IsZero()
}

func decodeError(what, typ string, err error) error {
	return fmt.Errorf("%s %s decode: %w", what, typ, errors.Join(berr.ErrSerializationFailed, err))
}

func errNoHandler(typ string) error {
	return fmt.Errorf("action %s has no handler: %w", typ, berr.ErrHandlerFailed)
}
