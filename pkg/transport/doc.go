// Package transport provides the arena client's single live connection.
//
// A Channel owns one websocket connection to the arena server and keeps it
// alive across transient failures:
//   - Connect/Disconnect lifecycle with a bounded connect timeout
//   - Automatic reconnection with exponential backoff and an attempt ceiling
//   - Heartbeat ping/pong with round-trip latency measurement
//   - A bounded FIFO outbound queue flushed in order after (re)connect
//   - Typed event fan-out with panic-isolated listeners
//
// # Close Codes
//
// How a closure is handled depends on its close code:
//
//	1000         normal closure     -> disconnected, no reconnect
//	4000..4999   application error  -> terminal error, no reconnect
//	anything else                   -> reconnect with backoff
//
// # Delivery
//
// Send never blocks on the network beyond a single bounded write. While
// the connection is down, sends are queued; when the queue is full the
// oldest message is evicted with a warning. Queued messages are flushed in
// enqueue order. A message whose transmission fails is retried in place
// until its retry budget is exhausted, then dropped with a warning.
//
// Ping and pong messages are consumed by the channel and never delivered
// to listeners.
package transport
