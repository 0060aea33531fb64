// Package model defines the shared data types of the cursor relay.
//
// Envelopes are decoded once at the transport boundary into a closed set of
// variants (Join, CursorMove, Unknown); everything downstream switches on the
// concrete type instead of re-checking string tags.
//
// Conventions:
//   - Timestamps on the wire: any JSON number of milliseconds since Unix epoch (sender-assigned), read as int64
//   - IDs: caller-supplied strings for boards and participants, uuid.UUID for connections
//   - Positions: opaque JSON to the relay, parsed only by clients
package model
