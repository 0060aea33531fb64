// Package router implements the Message Router.
//
// Each inbound frame is decoded once into a model.Envelope, checked against
// the identity the connection presented at handshake, and fanned out through
// the Connection Registry. join and cursor_move are broadcast verbatim;
// unrecognised kinds are accepted and not forwarded.
package router
