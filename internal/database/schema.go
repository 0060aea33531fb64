package database

// SessionsTable holds one row per finished relay connection.
const SessionsTable = "relay_sessions"

// SessionColumns is the column order used for COPY into SessionsTable.
var SessionColumns = []string{
	"conn_id",
	"board_id",
	"participant_id",
	"remote_addr",
	"connected_at",
	"disconnected_at",
	"close_code",
	"frames_in",
	"frames_out",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS relay_sessions (
		conn_id         UUID PRIMARY KEY,
		board_id        TEXT        NOT NULL,
		participant_id  TEXT        NOT NULL,
		remote_addr     TEXT        NOT NULL DEFAULT '',
		connected_at    TIMESTAMPTZ NOT NULL,
		disconnected_at TIMESTAMPTZ NOT NULL,
		close_code      INTEGER     NOT NULL,
		frames_in       BIGINT      NOT NULL DEFAULT 0,
		frames_out      BIGINT      NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS relay_sessions_board_idx
		ON relay_sessions (board_id, connected_at DESC)`,
}
