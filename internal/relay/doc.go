// Package relay is the WebSocket transport in front of the registry and router.
//
// Each accepted connection becomes a peer with two goroutines. The read pump
// enforces frame size, read deadlines and an inbound rate limit, then hands
// frames to the router on its own goroutine so a sender's frames are routed in
// the order they were read. The write pump drains a bounded send queue and
// drives the ping heartbeat. A peer whose queue fills is closed rather than
// allowed to stall broadcasts to the rest of its board.
//
// Handshake failures are reported with WebSocket close codes after upgrade:
//
//	1008  boardId or userId missing
//	1013  board at participant capacity, or peer too slow to keep up
//	1001  relay shutting down
//	1000  connection replaced by a newer one for the same participant
package relay
