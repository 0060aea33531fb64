// Package presence keeps the set of remote cursors a client should render.
//
// The Aggregator consumes envelopes from a session. join and cursor_move
// upsert the sender's cursor and stamp it with the local receive time; a
// periodic sweep removes any cursor that has not been refreshed within the
// stale threshold. The sweep is the only removal path, so a participant who
// disconnects fades out instead of vanishing mid-frame.
package presence
