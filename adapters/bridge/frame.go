package bridge

import (
	"encoding/json"
	"errors"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
	"github.com/next-trace/scg-port-bus/contract/port"
)

type frameKind string

const (
	kindOpen  frameKind = "open"
	kindMsg   frameKind = "msg"
	kindClose frameKind = "close"
)

type frame struct {
	Kind       frameKind       `json:"kind"`
	Port       string          `json:"port"`
	FromOpener bool            `json:"fromOpener"`
	Name       string          `json:"name,omitempty"`
	ReplyTo    string          `json:"replyTo,omitempty"`
	Sender     *port.Sender    `json:"sender,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// route is the key of the local end a frame is addressed to.
func (f frame) route() string {
	if f.FromOpener {
		return responderKey(f.Port)
	}

	return openerKey(f.Port)
}

func openerKey(id string) string    { return "i:" + id }
func responderKey(id string) string { return "r:" + id }

// cause rebuilds the error carried by a close frame. Coded errors keep
// their code so errors.Is works across the broker.
func (f frame) cause() error {
	if f.Error == "" {
		return nil
	}

	if f.Code == "" {
		return errors.New(f.Error)
	}

	return errors.Join(errors.New(f.Error), berr.Code(f.Code))
}

// codeOf extracts the first known port bus code from err.
func codeOf(err error) string {
	for _, known := range []error{
		berr.ErrNoReceiver,
		berr.ErrAbnormalDisconnect,
		berr.ErrHandlerFailed,
		berr.ErrPortClosed,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}

	return ""
}
