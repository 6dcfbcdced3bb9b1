// Package geofence turns a position stream into zone membership events.
//
// A Monitor classifies every position into a spatial cell and compares it
// against the set of active (watched) cells. Crossing a boundary that
// touches a watched cell produces candidate enter and exit events; each
// candidate is debounced and settles only if membership still matches
// when its timer fires.
//
// # Debouncing
//
// Candidates are keyed by (event type, cell). A new candidate for a key
// with a live timer replaces it, so a key never has more than one pending
// timer. Once an event settles, further candidates for the same key are
// suppressed for a refractory window (twice the debounce duration by
// default). A player oscillating across a boundary therefore produces at
// most one settled event per cell rather than one per crossing.
//
// # Membership
//
// The current zone is the player's cell when that cell is active and nil
// otherwise. An enter settles only while the player is in the cell and the
// last settled event for it was not an enter. An exit settles only while
// the player is outside the cell; for a watched cell it also requires a
// previously settled enter.
//
// # Proximity
//
// With proximity enabled, every update reports the active cells within
// two hops of the player whose centers lie within the proximity
// threshold, nearest first, each with an eight-point compass direction.
//
// # Failures
//
// A location error stops monitoring and is reported to the error callback.
// The monitor never retries on its own.
package geofence
