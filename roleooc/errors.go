package roleooc

import (
	"errors"
	"fmt"
)

// ErrOffline is surfaced synchronously, before any network call,
// when the service is unreachable at call time.
var ErrOffline = errors.New("unable to connect to the server")

// ErrUnsupportedOperation is surfaced synchronously when a cache has no
// remote event registered for the requested verb.
var ErrUnsupportedOperation = errors.New("this data type does not support the function")

// RemoteError is an application-level failure returned by the service
// after the round trip, e.g. validation.
type RemoteError struct {
	Type  string   `json:"type,omitempty"`
	Text  []string `json:"text,omitempty"`
	Extra Params   `json:"extraData,omitempty"`
}

// known remote error types mapped to field-specific messages by dialogs
const (
	RemoteErrorTypeInvalidLength     = "invalid length"
	RemoteErrorTypeInvalidCharacters = "invalid characters"
	RemoteErrorTypeAlreadyExists     = "already exists"
	RemoteErrorTypeDoesNotExist      = "does not exist"
	RemoteErrorTypeNotAllowed        = "not allowed"
	RemoteErrorTypeBanned            = "banned"
	RemoteErrorTypeNeedsVerification = "needs verification"
)

func (self *RemoteError) Error() string {
	if len(self.Text) == 0 {
		return fmt.Sprintf("remote error: %s", self.Type)
	}
	return fmt.Sprintf("remote error: %s: %s", self.Type, self.Text[0])
}

func IsRemoteErrorType(err error, errorType string) bool {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Type == errorType
	}
	return false
}
