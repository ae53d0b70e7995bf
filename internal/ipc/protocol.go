// Package ipc implements the status socket: 4-byte big-endian length
// prefixed protobuf Struct messages carrying a "type" field.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message types.
const (
	TypeStatus = "status"
	TypeError  = "error"
)

// maxMessageSize bounds a single message read from the socket.
const maxMessageSize = 16 << 20

// NewStatusMessage creates a status query.
func NewStatusMessage() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"type": TypeStatus,
	})
}

// NewStatusResponseMessage wraps a status report. Values must be the
// plain kinds structpb accepts.
func NewStatusResponseMessage(status map[string]interface{}) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"type":   TypeStatus,
		"status": status,
	})
}

// NewErrorMessage creates an error response.
func NewErrorMessage(errMsg string) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"type":  structpb.NewStringValue(TypeError),
			"error": structpb.NewStringValue(errMsg),
		},
	}
}

// MessageType returns the type field, or "" when it is missing.
func MessageType(msg *structpb.Struct) string {
	return msg.GetFields()["type"].GetStringValue()
}

// GetStatus extracts the report from a status response.
func GetStatus(msg *structpb.Struct) (*structpb.Struct, error) {
	if MessageType(msg) != TypeStatus {
		return nil, fmt.Errorf("message is not a status response")
	}
	status := msg.GetFields()["status"].GetStructValue()
	if status == nil {
		return nil, fmt.Errorf("invalid status response payload")
	}
	return status, nil
}

// GetError extracts the text of an error response.
func GetError(msg *structpb.Struct) (string, error) {
	if MessageType(msg) != TypeError {
		return "", fmt.Errorf("message is not an error response")
	}
	return msg.GetFields()["error"].GetStringValue(), nil
}

// readMessage reads one length-prefixed message.
func readMessage(r io.Reader) (*structpb.Struct, error) {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// writeMessage writes one length-prefixed message.
func writeMessage(w io.Writer, msg *structpb.Struct) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	length := uint32(len(data)) //nolint:gosec // bounded by maxMessageSize on the reading side
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}
	return nil
}
