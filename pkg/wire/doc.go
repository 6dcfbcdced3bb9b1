// Package wire defines the arena wire envelope, its message type tags and
// the zone synchronization payloads.
//
// Every frame carries one envelope:
//
//	{
//	  "type":      "arena_zone_update",
//	  "timestamp": 1718000000000,        // Unix milliseconds
//	  "data":      { ... },              // type-specific payload
//	  "messageId": "4b6f...",            // unique per send
//	  "playerId":  "p-1",                // optional
//	  "gameId":    "g-1"                 // optional
//	}
//
// # Codecs
//
// Two codecs are provided. JSONCodec sends text frames and is the default.
// CBORCodec sends binary frames; the envelope uses integer keys and
// payload structs are encoded with their json field names.
//
// The payload of a decoded Message stays in codec form until DecodeData is
// called, so handlers only pay for the payloads they look at.
//
// # Control Messages
//
// TypePing and TypePong are heartbeat control messages. The transport
// consumes them and never hands them to application listeners.
package wire
