// Package location defines the position source consumed by the geofence
// monitor.
//
// A Provider answers single-shot position requests and streams continuous
// updates. Failures are reported as *Error values carrying a Code from a
// fixed taxonomy; Fatal reports whether retrying can help.
//
// Replay is a Provider that plays back a recorded track from a YAML file:
//
//	interval: 500ms
//	loop: false
//	points:
//	  - lat: 37.7759
//	    lng: -122.4179
//	    accuracy: 5
//	  - error: timeout
package location
