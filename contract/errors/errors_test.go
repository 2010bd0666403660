package errors_test

import (
	"errors"
	"fmt"
	"testing"

	berr "github.com/next-trace/scg-port-bus/contract/errors"
)

func TestCodeAndVars(t *testing.T) {
	e := berr.Code(berr.ErrCodeTransmissionFailed)
	if e.Error() != berr.ErrCodeTransmissionFailed {
		t.Fatalf("unexpected error string: %s", e.Error())
	}

	// exported variables must carry their codes
	tests := []struct {
		err  error
		code string
	}{
		{berr.ErrTransmissionFailed, berr.ErrCodeTransmissionFailed},
		{berr.ErrAbnormalDisconnect, berr.ErrCodeAbnormalDisconnect},
		{berr.ErrNoResponse, berr.ErrCodeNoResponse},
		{berr.ErrHandlerFailed, berr.ErrCodeHandlerFailed},
		{berr.ErrSerializationFailed, berr.ErrCodeSerializationFailed},
		{berr.ErrConnectFailed, berr.ErrCodeConnectFailed},
		{berr.ErrPortClosed, berr.ErrCodePortClosed},
		{berr.ErrNoReceiver, berr.ErrCodeNoReceiver},
		{berr.ErrHostNotConfigured, berr.ErrCodeHostNotConfigured},
		{berr.ErrStorageFailed, berr.ErrCodeStorageFailed},
		{berr.ErrQueryFailed, berr.ErrCodeQueryFailed},
		{berr.ErrInjectFailed, berr.ErrCodeInjectFailed},
		{berr.ErrApplicationError, berr.ErrCodeApplicationError},
	}

	for _, tc := range tests {
		if !errors.Is(tc.err, berr.Code(tc.code)) {
			t.Fatalf("expected %s to be %s", tc.err, tc.code)
		}
	}
}

func TestCodeSurvivesJoinAndWrap(t *testing.T) {
	cause := errors.New("socket reset")
	err := fmt.Errorf("port ping: %w", errors.Join(berr.ErrAbnormalDisconnect, cause))

	if !errors.Is(err, berr.ErrAbnormalDisconnect) {
		t.Fatalf("want ErrAbnormalDisconnect in chain, got %v", err)
	}

	if !errors.Is(err, cause) {
		t.Fatalf("want cause in chain, got %v", err)
	}
}
