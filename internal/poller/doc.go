// Package poller implements the periodic stats poller.
//
// The poller samples the registry, router and transport counters on a fixed
// interval, logs a one-line summary with the deltas since the previous
// sample, and keeps the board gauge current.
package poller
