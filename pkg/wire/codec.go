package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes envelopes and payloads for one frame format.
type Codec interface {
	// Name returns the codec name used in configuration ("json", "cbor").
	Name() string

	// Binary returns true if encoded envelopes travel as binary frames.
	Binary() bool

	// Encode serializes a message envelope.
	Encode(m *Message) ([]byte, error)

	// Decode parses a message envelope. The payload is kept undecoded.
	Decode(data []byte) (*Message, error)

	// MarshalPayload encodes a payload value.
	MarshalPayload(v any) ([]byte, error)

	// UnmarshalPayload decodes a payload value.
	UnmarshalPayload(data []byte, v any) error
}

// Built-in codecs.
var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

// CodecByName returns the codec registered under name.
// An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonEnvelope struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	MessageID string          `json:"messageId"`
	PlayerID  string          `json:"playerId,omitempty"`
	GameID    string          `json:"gameId,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (c jsonCodec) Encode(m *Message) ([]byte, error) {
	env := jsonEnvelope{
		Type:      m.Type,
		Timestamp: m.Timestamp,
		MessageID: m.MessageID,
		PlayerID:  m.PlayerID,
		GameID:    m.GameID,
	}
	if m.HasData() {
		data, err := transcode(m, c)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

func (c jsonCodec) Decode(data []byte) (*Message, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return &Message{
		Type:      env.Type,
		Timestamp: env.Timestamp,
		MessageID: env.MessageID,
		PlayerID:  env.PlayerID,
		GameID:    env.GameID,
		Data:      []byte(env.Data),
		codec:     c,
	}, nil
}

func (jsonCodec) MarshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) UnmarshalPayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var mapStringAny = reflect.TypeOf(map[string]any(nil))

// encMode is the CBOR encoder mode for arena messages.
// Configured for deterministic encoding.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for arena messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		DefaultMapType:    mapStringAny,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// cborEnvelope uses integer keys for compactness.
//
//	{
//	  1: type,
//	  2: timestamp,
//	  3: data,
//	  4: messageId,
//	  5: playerId,
//	  6: gameId
//	}
type cborEnvelope struct {
	Type      MessageType     `cbor:"1,keyasint"`
	Timestamp int64           `cbor:"2,keyasint"`
	Data      cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	MessageID string          `cbor:"4,keyasint"`
	PlayerID  string          `cbor:"5,keyasint,omitempty"`
	GameID    string          `cbor:"6,keyasint,omitempty"`
}

type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }
func (cborCodec) Binary() bool { return true }

func (c cborCodec) Encode(m *Message) ([]byte, error) {
	env := cborEnvelope{
		Type:      m.Type,
		Timestamp: m.Timestamp,
		MessageID: m.MessageID,
		PlayerID:  m.PlayerID,
		GameID:    m.GameID,
	}
	if m.HasData() {
		data, err := transcode(m, c)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return Marshal(env)
}

func (c cborCodec) Decode(data []byte) (*Message, error) {
	var env cborEnvelope
	if err := Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return &Message{
		Type:      env.Type,
		Timestamp: env.Timestamp,
		MessageID: env.MessageID,
		PlayerID:  env.PlayerID,
		GameID:    env.GameID,
		Data:      []byte(env.Data),
		codec:     c,
	}, nil
}

func (cborCodec) MarshalPayload(v any) ([]byte, error) {
	return Marshal(v)
}

func (cborCodec) UnmarshalPayload(data []byte, v any) error {
	return Unmarshal(data, v)
}

// transcode returns the message payload in the target codec's encoding.
func transcode(m *Message, target Codec) ([]byte, error) {
	src := m.Codec()
	if src.Name() == target.Name() {
		return m.Data, nil
	}
	var v any
	if err := src.UnmarshalPayload(m.Data, &v); err != nil {
		return nil, fmt.Errorf("failed to transcode %s payload: %w", m.Type, err)
	}
	return target.MarshalPayload(v)
}
