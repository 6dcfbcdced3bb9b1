package wire

import (
	"errors"
	"fmt"
	"time"
)

// MessageType is the envelope type tag.
type MessageType string

// Player events.
const (
	TypePlayerJoin        MessageType = "player_join"
	TypePlayerLeave       MessageType = "player_leave"
	TypePlayerMove        MessageType = "player_move"
	TypePlayerHealth      MessageType = "player_health"
	TypePlayerElimination MessageType = "player_elimination"
)

// Arena and game flow.
const (
	TypeArenaZoneUpdate MessageType = "arena_zone_update"
	TypeArenaZoneShrink MessageType = "arena_zone_shrink"
	TypeGamePhaseChange MessageType = "game_phase_change"
	TypeGameTimerUpdate MessageType = "game_timer_update"
	TypeGameStateSync   MessageType = "game_state_sync"
)

// Proof service.
const (
	TypeZKProofGenerated MessageType = "zk_proof_generated"
	TypeZKProofValidated MessageType = "zk_proof_validated"
	TypeZKProofInvalid   MessageType = "zk_proof_invalid"
	TypeZKProofRequest   MessageType = "zk_proof_request"
)

// Communication and control.
const (
	TypeChatMessage        MessageType = "chat_message"
	TypeSystemAnnouncement MessageType = "system_announcement"
	TypeRateLimit          MessageType = "rate_limit"
	TypeError              MessageType = "error"
	TypePing               MessageType = "ping"
	TypePong               MessageType = "pong"
)

var knownTypes = map[MessageType]struct{}{
	TypePlayerJoin: {}, TypePlayerLeave: {}, TypePlayerMove: {},
	TypePlayerHealth: {}, TypePlayerElimination: {},
	TypeArenaZoneUpdate: {}, TypeArenaZoneShrink: {}, TypeGamePhaseChange: {},
	TypeGameTimerUpdate: {}, TypeGameStateSync: {},
	TypeZKProofGenerated: {}, TypeZKProofValidated: {}, TypeZKProofInvalid: {},
	TypeZKProofRequest: {},
	TypeChatMessage: {}, TypeSystemAnnouncement: {}, TypeRateLimit: {},
	TypeError: {}, TypePing: {}, TypePong: {},
}

// IsValid returns true for the known type tags.
func (t MessageType) IsValid() bool {
	_, ok := knownTypes[t]
	return ok
}

// IsControl returns true for heartbeat messages.
func (t MessageType) IsControl() bool {
	return t == TypePing || t == TypePong
}

// String returns the type tag.
func (t MessageType) String() string {
	return string(t)
}

// Envelope errors.
var (
	ErrMissingType      = errors.New("message type is required")
	ErrMissingMessageID = errors.New("message id is required")
	ErrNoData           = errors.New("message has no data")
)

// Message is a decoded wire envelope.
type Message struct {
	Type      MessageType
	Timestamp int64 // Unix milliseconds
	MessageID string
	PlayerID  string
	GameID    string

	// Data is the payload in the encoding of the codec that produced it.
	Data []byte

	codec Codec
}

// NewMessage builds a message whose payload is encoded with codec.
// A nil payload produces a message without data.
func NewMessage(codec Codec, typ MessageType, payload any) (*Message, error) {
	if codec == nil {
		codec = JSON
	}
	msg := &Message{
		Type:      typ,
		Timestamp: Now(),
		codec:     codec,
	}
	if payload != nil {
		data, err := codec.MarshalPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", typ, err)
		}
		msg.Data = data
	}
	return msg, nil
}

// Validate checks the envelope fields that every message must carry.
func (m *Message) Validate() error {
	if m.Type == "" {
		return ErrMissingType
	}
	if m.MessageID == "" {
		return ErrMissingMessageID
	}
	return nil
}

// HasData returns true if the message carries a payload.
func (m *Message) HasData() bool {
	return len(m.Data) > 0 && string(m.Data) != "null"
}

// DecodeData decodes the payload into v.
func (m *Message) DecodeData(v any) error {
	if !m.HasData() {
		return ErrNoData
	}
	if err := m.Codec().UnmarshalPayload(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Codec returns the codec the payload is encoded with.
func (m *Message) Codec() Codec {
	if m.codec == nil {
		return JSON
	}
	return m.codec
}

// Time returns the message timestamp.
func (m *Message) Time() time.Time {
	return FromMillis(m.Timestamp)
}

// Clone returns a shallow copy of the message with its own data slice.
func (m *Message) Clone() *Message {
	c := *m
	if m.Data != nil {
		c.Data = append([]byte(nil), m.Data...)
	}
	return &c
}

// Now returns the current time in Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// Millis converts t to Unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts Unix milliseconds to a time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
