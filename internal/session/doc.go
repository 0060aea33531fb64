// Package session is the client side of the cursor relay.
//
// A Session owns one WebSocket connection to the relay for one participant on
// one board. It announces the participant with a join envelope as soon as the
// connection opens, sends cursor_move envelopes while connected, and hands
// every decoded inbound envelope to its consumer through Messages.
//
// State machine:
//
//	Disconnected -> Connecting -> Connected -> Disconnected
//	any state    -> Closed (after Close, terminal)
//
// A connection that ends with any close code other than 1000, or a dial that
// fails, schedules exactly one reconnect attempt through the ReconnectPolicy.
// The pending timer is cancelled by Close or superseded by a newer attempt.
package session
