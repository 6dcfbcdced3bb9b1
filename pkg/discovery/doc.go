// Package discovery finds arena servers on the local network via mDNS/DNS-SD.
//
// Arena servers advertise the _zkarena._tcp service. The instance name is a
// user-facing arena name; the TXT record carries everything a client needs to
// open a transport channel:
//
//	ver    protocol version (required, currently "1")
//	gid    game id (required)
//	name   display name (optional, defaults to the instance name)
//	path   websocket path (optional, defaults to /ws)
//	tls    "1" when the endpoint expects wss (optional)
//	codec  wire codec, "json" or "cbor" (optional, defaults to json)
//	pl     current player count (optional)
//
// Browsing aggregates answers per instance: a server seen on several
// interfaces is reported once, with the union of its addresses, and is
// reported removed only after every address has gone.
package discovery
