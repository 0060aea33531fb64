// Package writer persists finished relay connections in batches.
//
// SessionWriter drains session records from a buffer.Queue, accumulates them
// until the batch is full or the flush interval elapses, and copies each
// batch into PostgreSQL. Rows are append-only and carry no cursor data.
package writer
