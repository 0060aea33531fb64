// Package database manages the optional PostgreSQL pool used for the
// connection session audit trail.
//
// Only connection metadata is stored. Cursor positions never reach the
// database.
package database
