package querycache

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/compression"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Writer collects the result of one pipeline run. Buffering calls may come
// from the main, totals and extremes transforms concurrently. The entry
// becomes visible in the cache only on FinalizeWrite.
type Writer struct {
	cache  *Cache
	key    Key
	header types.Header

	mu        sync.Mutex
	main      []*column.Block
	totals    *column.Block
	extremes  *column.Block
	rows      int
	tooLarge  bool
	finalized bool
}

var _ processor.CacheWriter = (*Writer)(nil)

// NewWriter starts an entry for key whose blocks conform to header.
func (c *Cache) NewWriter(key Key, header types.Header) *Writer {
	return &Writer{cache: c, key: key, header: header}
}

func (w *Writer) Buffer(b *column.Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tooLarge || w.finalized {
		return
	}
	w.rows += b.NumRows()
	if limit := w.cache.cfg.MaxEntryRows; limit > 0 && w.rows > limit {
		w.tooLarge = true
		w.main = nil
		return
	}
	w.main = append(w.main, b)
}

func (w *Writer) BufferTotals(b *column.Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.totals = b
}

func (w *Writer) BufferExtremes(b *column.Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extremes = b
}

// FinalizeWrite encodes the buffered result and stores it. It may be called
// once.
func (w *Writer) FinalizeWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return errors.AssertionFailedf("query cache entry %s finalized twice", w.key)
	}
	w.finalized = true
	if w.tooLarge {
		return errors.Wrapf(ErrEntryTooLarge, "%d rows, limit %d", w.rows, w.cache.cfg.MaxEntryRows)
	}

	codec := compression.Default(w.cache.cfg.Compress)
	now := w.cache.now()
	e := &Entry{
		Key:     w.key,
		Header:  w.header,
		Rows:    w.rows,
		Created: now,
		Expires: now.Add(w.cache.cfg.TTL),
		frames:  make([][]byte, 0, len(w.main)),
	}
	for _, b := range w.main {
		f, err := encodeFrame(codec, b)
		if err != nil {
			return err
		}
		e.frames = append(e.frames, f)
		e.Bytes += len(f)
	}
	var err error
	if w.totals != nil {
		if e.totals, err = encodeFrame(codec, w.totals); err != nil {
			return err
		}
		e.Bytes += len(e.totals)
	}
	if w.extremes != nil {
		if e.extremes, err = encodeFrame(codec, w.extremes); err != nil {
			return err
		}
		e.Bytes += len(e.extremes)
	}
	w.main, w.totals, w.extremes = nil, nil, nil

	w.cache.put(e)
	w.cache.logger.Debug("stored query cache entry", "key", w.key, "rows", e.Rows, "bytes", e.Bytes)
	return nil
}
