// Package buffer provides a bounded, growable FIFO used to hand records from
// connection goroutines to background writers without blocking the sender.
//
// The queue starts small and doubles when it passes 70% occupancy. Once it
// reaches its maximum capacity it evicts the oldest record to make room, so a
// stalled consumer costs history rather than relay latency.
package buffer
