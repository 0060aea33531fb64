// Package registry implements the Connection Registry.
//
// The registry is the authoritative board → participant → handle mapping:
//   - At most one live handle per participant per board; re-registering replaces it
//   - A board entry exists only while it has participants
//   - Broadcasts snapshot recipients under the lock and send outside it
//   - One failing recipient never blocks delivery to the others
package registry
