package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/whiteboard-relay/internal/buffer"
	"github.com/rickgao/whiteboard-relay/internal/database"
	"github.com/rickgao/whiteboard-relay/internal/metrics"
	"github.com/rickgao/whiteboard-relay/internal/model"
)

// SessionWriter consumes session records and copies them into relay_sessions.
type SessionWriter struct {
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.Relay

	input *buffer.Queue[model.SessionRecord]
	db    Copier

	batch   []sessionRow
	batchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats WriterMetrics
}

// sessionRow is one relay_sessions row in column order.
type sessionRow struct {
	ConnID         uuid.UUID
	BoardID        string
	ParticipantID  string
	RemoteAddr     string
	ConnectedAt    time.Time
	DisconnectedAt time.Time
	CloseCode      int32
	FramesIn       int64
	FramesOut      int64
}

func (r sessionRow) values() []any {
	return []any{
		r.ConnID,
		r.BoardID,
		r.ParticipantID,
		r.RemoteAddr,
		r.ConnectedAt,
		r.DisconnectedAt,
		r.CloseCode,
		r.FramesIn,
		r.FramesOut,
	}
}

// NewSessionWriter creates a SessionWriter. m may be nil.
func NewSessionWriter(
	cfg WriterConfig,
	input *buffer.Queue[model.SessionRecord],
	db Copier,
	m *metrics.Relay,
	logger *slog.Logger,
) *SessionWriter {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}

	return &SessionWriter{
		cfg:     cfg,
		input:   input,
		db:      db,
		metrics: m,
		logger:  logger,
		batch:   make([]sessionRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming records and writing to the database.
func (w *SessionWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("session writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop halts the loops, then drains whatever is still queued and flushes it
// using ctx.
func (w *SessionWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping session writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("session writer stop timed out")
		return ctx.Err()
	}

	for _, rec := range w.input.Drain(0) {
		w.add(rec)
	}
	w.flush(ctx)

	w.logger.Info("session writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (w *SessionWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop moves records from the queue into the batch.
func (w *SessionWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		recs := w.input.Drain(w.cfg.BatchSize)
		if len(recs) == 0 {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		full := false
		for _, rec := range recs {
			full = w.add(rec) || full
		}
		if full {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes a partial batch.
func (w *SessionWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends one record and reports whether the batch is full.
func (w *SessionWriter) add(rec model.SessionRecord) bool {
	row := transform(rec)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

func transform(rec model.SessionRecord) sessionRow {
	return sessionRow{
		ConnID:         rec.ConnID,
		BoardID:        rec.BoardID,
		ParticipantID:  rec.ParticipantID,
		RemoteAddr:     rec.RemoteAddr,
		ConnectedAt:    rec.ConnectedAt.UTC(),
		DisconnectedAt: rec.DisconnectedAt.UTC(),
		CloseCode:      int32(rec.CloseCode),
		FramesIn:       rec.FramesIn,
		FramesOut:      rec.FramesOut,
	}
}

// flush copies the current batch to the database. A failed batch is dropped
// so one bad row cannot wedge the writer.
func (w *SessionWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]sessionRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	n, err := w.db.CopyFrom(
		ctx,
		pgx.Identifier{database.SessionsTable},
		database.SessionColumns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			return batch[i].values(), nil
		}),
	)
	if err != nil {
		w.logger.Error("copy sessions failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.stats.Dropped += int64(len(batch))
		w.batchMu.Unlock()
		w.metrics.AuditDropped(len(batch))
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += n
	w.stats.Flushes++
	w.batchMu.Unlock()
	w.metrics.AuditWritten(int(n))

	w.logger.Debug("flushed sessions",
		"count", n,
		"duration", time.Since(start),
	)
}
