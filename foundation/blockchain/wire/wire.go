// Package wire implements the line protocol spoken between nodes. A frame
// is a single JSON document terminated by a newline.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Protocol identification stamped into every frame.
const (
	ProtocolName    = "p2pledger"
	ProtocolVersion = "0.1.0"
)

// ErrNoPayload is returned when decoding a message that carried none.
var ErrNoPayload = errors.New("message has no payload")

// MsgType identifies the command a frame carries.
type MsgType string

// Set of commands understood by the protocol.
const (
	MsgAdd               MsgType = "ADD"
	MsgRemove            MsgType = "REMOVE"
	MsgCoreList          MsgType = "CORE_LIST"
	MsgRequestCoreList   MsgType = "REQUEST_CORE_LIST"
	MsgPing              MsgType = "PING"
	MsgAddAsEdge         MsgType = "ADD_AS_EDGE"
	MsgRemoveEdge        MsgType = "REMOVE_EDGE"
	MsgNewTransaction    MsgType = "NEW_TRANSACTION"
	MsgNewBlock          MsgType = "NEW_BLOCK"
	MsgRequestFullChain  MsgType = "REQUEST_FULL_CHAIN"
	MsgFullChainResponse MsgType = "FULL_CHAIN_RESPONSE"
	MsgEnhanced          MsgType = "ENHANCED"
)

var msgTypes = map[MsgType]bool{
	MsgAdd:               true,
	MsgRemove:            true,
	MsgCoreList:          true,
	MsgRequestCoreList:   true,
	MsgPing:              true,
	MsgAddAsEdge:         true,
	MsgRemoveEdge:        true,
	MsgNewTransaction:    true,
	MsgNewBlock:          true,
	MsgRequestFullChain:  true,
	MsgFullChainResponse: true,
	MsgEnhanced:          true,
}

// Valid reports whether the command is part of the protocol.
func (mt MsgType) Valid() bool {
	return msgTypes[mt]
}

// =============================================================================

// Status classifies an inbound frame.
type Status int

// Set of classifications a parsed frame can have.
const (
	StatusProtocolMismatch Status = iota
	StatusVersionMismatch
	StatusOKNoPayload
	StatusOKWithPayload
)

var statusNames = map[Status]string{
	StatusProtocolMismatch: "PROTOCOL_NAME_MISMATCH",
	StatusVersionMismatch:  "VERSION_MISMATCH",
	StatusOKNoPayload:      "OK_NO_PAYLOAD",
	StatusOKWithPayload:    "OK_WITH_PAYLOAD",
}

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	return statusNames[s]
}

// OK reports whether the frame can be acted on.
func (s Status) OK() bool {
	return s == StatusOKNoPayload || s == StatusOKWithPayload
}

// =============================================================================

// frame is the document that travels on the wire.
type frame struct {
	Protocol string          `json:"protocol"`
	Version  string          `json:"version"`
	MsgType  MsgType         `json:"msg_type"`
	Port     int             `json:"my_port"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Message is the result of parsing a frame.
type Message struct {
	Status  Status
	Type    MsgType
	Port    int
	Payload json.RawMessage
}

// Decode unmarshals the payload into the provided value.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return ErrNoPayload
	}

	return json.Unmarshal(m.Payload, v)
}

// Build constructs a newline terminated frame. A nil payload produces a
// frame without one. A payload already in json.RawMessage form is carried
// as is.
func Build(msgType MsgType, port int, payload any) ([]byte, error) {
	f := frame{
		Protocol: ProtocolName,
		Version:  ProtocolVersion,
		MsgType:  msgType,
		Port:     port,
	}

	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		f.Payload = p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		f.Payload = data
	}

	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}

// Parse classifies a raw frame. Anything that cannot be decoded or carries
// an unknown command is reported as a protocol mismatch.
func Parse(data []byte) Message {
	data = bytes.TrimSpace(data)

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Message{Status: StatusProtocolMismatch}
	}

	if f.Protocol != ProtocolName || !f.MsgType.Valid() {
		return Message{Status: StatusProtocolMismatch}
	}

	if f.Version != ProtocolVersion {
		return Message{Status: StatusVersionMismatch}
	}

	msg := Message{
		Status: StatusOKNoPayload,
		Type:   f.MsgType,
		Port:   f.Port,
	}

	if len(f.Payload) > 0 && !bytes.Equal(f.Payload, []byte("null")) {
		msg.Status = StatusOKWithPayload
		msg.Payload = f.Payload
	}

	return msg
}
