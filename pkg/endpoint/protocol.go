package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Request frame payloads start with a fixed 4-byte service id header; the
// rest is the opaque body the target service interprets.
const payloadHeaderSize = 4

// EncodeRequestPayload prefixes body with the service id header.
func EncodeRequestPayload(serviceID uint32, body []byte) []byte {
	out := make([]byte, payloadHeaderSize+len(body))
	out[0] = byte(serviceID)
	out[1] = byte(serviceID >> 8)
	out[2] = byte(serviceID >> 16)
	out[3] = byte(serviceID >> 24)
	copy(out[payloadHeaderSize:], body)
	return out
}

// DecodeRequestPayload splits a frame payload into service id and body.
func DecodeRequestPayload(payload []byte) (uint32, []byte, error) {
	if len(payload) < payloadHeaderSize {
		return 0, nil, fmt.Errorf("request frame too short: %d bytes", len(payload))
	}
	id := uint32(payload[0]) | uint32(payload[1])<<8 | uint32(payload[2])<<16 | uint32(payload[3])<<24
	return id, payload[payloadHeaderSize:], nil
}

// Handshake is the first message of every session. The declared maximum
// bounds how many result sets the client consumes concurrently; the worker
// sizes the wire's slot budget from it.
type Handshake struct {
	Label                       string `json:"label,omitempty"`
	ApplicationName             string `json:"application_name,omitempty"`
	UserName                    string `json:"user_name,omitempty"`
	SymbolicID                  string `json:"symbolic_id,omitempty"`
	MaximumConcurrentResultSets uint64 `json:"maximum_concurrent_result_sets"`
}

// HandshakeOk is the success reply to a handshake.
type HandshakeOk struct {
	SessionID uint64 `json:"session_id"`
}

// ParseHandshake decodes the handshake message carried by the first frame.
func ParseHandshake(body []byte) (Handshake, error) {
	var h Handshake
	if len(body) == 0 {
		return h, errors.New("empty handshake payload")
	}
	if err := json.Unmarshal(body, &h); err != nil {
		return h, fmt.Errorf("handshake parse error: %w", err)
	}
	return h, nil
}

// BrokerCommand is a control message addressed to the endpoint broker
// service: cooperative cancel of an outstanding slot or an expiration
// refresh.
type BrokerCommand struct {
	Op                string `json:"op"`
	Slot              uint16 `json:"slot,omitempty"`
	ExpirationSeconds uint64 `json:"expiration_seconds,omitempty"`
}
