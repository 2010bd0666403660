package messages

import "log/slog"

type settings struct {
	suppressEmptyReply bool
}

// Option configures a Messenger, Registry or Messages facade.
type Option func(*settings)

// WithSuppressEmptyReply controls what a responder does when a handler
// resolves to a zero value. When enabled nothing is posted and the initiator
// observes ErrNoResponse; when disabled (the default) the zero value is sent.
func WithSuppressEmptyReply(enabled bool) Option {
	return func(s *settings) { s.suppressEmptyReply = enabled }
}

func applyOptions(opts []Option) settings {
	var s settings
	for _, o := range opts {
		o(&s)
	}

	return s
}

func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}

	return l
}
