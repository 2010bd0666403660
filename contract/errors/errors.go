package errors

// Error codes for the port contracts. Keep stable; used across hosts, adapters and messages.
const (
	ErrCodeTransmissionFailed  = "portbus.transmission_failed"
	ErrCodeAbnormalDisconnect  = "portbus.abnormal_disconnect"
	ErrCodeNoResponse          = "portbus.no_response"
	ErrCodeHandlerFailed       = "portbus.handler_failed"
	ErrCodeSerializationFailed = "portbus.serialization_failed"
	ErrCodeConnectFailed       = "portbus.connect_failed"
	ErrCodePortClosed          = "portbus.port_closed"
	ErrCodeNoReceiver          = "portbus.no_receiver"
	ErrCodeHostNotConfigured   = "portbus.host_not_configured"
	ErrCodeStorageFailed       = "portbus.storage_failed"
	ErrCodeQueryFailed         = "portbus.query_failed"
	ErrCodeInjectFailed        = "portbus.inject_failed"
	ErrCodeApplicationError    = "portbus.application_error"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrTransmissionFailed  = Code(ErrCodeTransmissionFailed)
	ErrAbnormalDisconnect  = Code(ErrCodeAbnormalDisconnect)
	ErrNoResponse          = Code(ErrCodeNoResponse)
	ErrHandlerFailed       = Code(ErrCodeHandlerFailed)
	ErrSerializationFailed = Code(ErrCodeSerializationFailed)
	ErrConnectFailed       = Code(ErrCodeConnectFailed)
	ErrPortClosed          = Code(ErrCodePortClosed)
	ErrNoReceiver          = Code(ErrCodeNoReceiver)
	ErrHostNotConfigured   = Code(ErrCodeHostNotConfigured)
	ErrStorageFailed       = Code(ErrCodeStorageFailed)
	ErrQueryFailed         = Code(ErrCodeQueryFailed)
	ErrInjectFailed        = Code(ErrCodeInjectFailed)
	ErrApplicationError    = Code(ErrCodeApplicationError)
)
