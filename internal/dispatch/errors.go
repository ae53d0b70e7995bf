package dispatch

import (
	"errors"
	"fmt"

	"github.com/bnema/waycore/internal/protocol"
)

var (
	ErrStarted        = errors.New("dispatcher already serving clients")
	ErrUnknownClient  = errors.New("unknown client")
	ErrUnknownObject  = errors.New("unknown object")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrEventVersion   = errors.New("event not supported by object version")
	ErrEventArguments = errors.New("event arguments do not match signature")
)

// ProtocolError is a fatal protocol violation. The client receives it as
// wl_display.error and is disconnected.
type ProtocolError struct {
	ObjectID uint32
	Code     uint32
	Message  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on object %d (code %d): %s", e.ObjectID, e.Code, e.Message)
}

// NewProtocolError builds a ProtocolError with a formatted message.
func NewProtocolError(objectID, code uint32, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{ObjectID: objectID, Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalidObject(objectID uint32, format string, args ...interface{}) *ProtocolError {
	return NewProtocolError(objectID, protocol.DisplayErrorInvalidObject, format, args...)
}

func invalidMethod(objectID uint32, format string, args ...interface{}) *ProtocolError {
	return NewProtocolError(objectID, protocol.DisplayErrorInvalidMethod, format, args...)
}
