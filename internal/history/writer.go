package history

import (
	"context"
	"log/slog"
)

// DefaultFlushThreshold is how many buffered successes trigger a flush.
const DefaultFlushThreshold = 10

// Writer buffers successfully sent addresses and flushes them to the
// store in batches, bounding the number of persistence calls while
// keeping the crash-loss window to at most one batch. Callers must
// defer a final Flush so buffered addresses survive every exit path.
//
// A failed flush keeps the buffer for retry at the next boundary; the
// only risk of losing an entry is a future duplicate send, which is
// logged, not fatal.
type Writer struct {
	store     Store
	threshold int
	buffer    []string
	logger    *slog.Logger
}

// NewWriter creates a buffered history writer. A threshold of zero or
// less uses DefaultFlushThreshold.
func NewWriter(store Store, threshold int, logger *slog.Logger) *Writer {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	return &Writer{
		store:     store,
		threshold: threshold,
		logger:    logger,
	}
}

// Add buffers one sent address, flushing when the threshold is reached.
func (w *Writer) Add(ctx context.Context, addr string) {
	w.buffer = append(w.buffer, Normalize(addr))
	if len(w.buffer) >= w.threshold {
		w.flush(ctx)
	}
}

// Flush writes any buffered addresses to the store unconditionally.
func (w *Writer) Flush(ctx context.Context) {
	w.flush(ctx)
}

// Pending returns how many addresses are buffered but not yet persisted.
func (w *Writer) Pending() int {
	return len(w.buffer)
}

func (w *Writer) flush(ctx context.Context) {
	if len(w.buffer) == 0 {
		return
	}

	if err := w.store.Append(ctx, w.buffer); err != nil {
		w.logger.Warn("history flush failed, will retry at next boundary; unrecorded addresses risk duplicate sends",
			"pending", len(w.buffer),
			"error", err,
		)
		return
	}

	w.logger.Debug("history flushed", "count", len(w.buffer))
	w.buffer = w.buffer[:0]
}
