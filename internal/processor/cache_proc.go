package processor

import (
	"log/slog"
	"sync/atomic"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/logging"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// CacheWriter receives copies of what a cached pipeline emits. It must be
// safe for concurrent use by the transforms of the three channels.
type CacheWriter interface {
	Buffer(b *column.Block)
	BufferTotals(b *column.Block)
	BufferExtremes(b *column.Block)
	FinalizeWrite() error
}

// CacheChannel names the stream a CacheWriteTransform sits on.
type CacheChannel int

const (
	ChannelMain CacheChannel = iota
	ChannelTotals
	ChannelExtremes
)

func (c CacheChannel) String() string {
	switch c {
	case ChannelTotals:
		return "totals"
	case ChannelExtremes:
		return "extremes"
	default:
		return "main"
	}
}

// CacheWriteTransform forwards every chunk unchanged and hands a copy to the
// cache writer. The transform on the main channel commits the entry when the
// pipeline succeeds; once cancellation is observed nothing more is buffered
// and nothing is committed.
type CacheWriteTransform struct {
	*SimpleTransform
	writer  CacheWriter
	channel CacheChannel
	logger  *slog.Logger

	finalized atomic.Bool
}

var _ Finalizer = (*CacheWriteTransform)(nil)

// NewCacheWriteTransform creates the write-through for one channel.
func NewCacheWriteTransform(header types.Header, writer CacheWriter, channel CacheChannel) *CacheWriteTransform {
	t := &CacheWriteTransform{
		writer:  writer,
		channel: channel,
		logger:  logging.WithComponent("querycache"),
	}
	t.SimpleTransform = NewSimpleTransform("StreamInQueryCache("+channel.String()+")", header, header, t.buffer)
	return t
}

func (t *CacheWriteTransform) buffer(c *Chunk) (*Chunk, error) {
	if t.IsCancelled() || c.NumRows() == 0 {
		return c, nil
	}
	b := c.Clone().Block
	switch t.channel {
	case ChannelTotals:
		t.writer.BufferTotals(b)
	case ChannelExtremes:
		t.writer.BufferExtremes(b)
	default:
		t.writer.Buffer(b)
	}
	return c, nil
}

// Finalize commits the entry from the main channel on success.
func (t *CacheWriteTransform) Finalize(succeeded bool) {
	if t.channel != ChannelMain || !t.finalized.CompareAndSwap(false, true) {
		return
	}
	if !succeeded || t.IsCancelled() {
		t.logger.Debug("query cache entry discarded", "succeeded", succeeded, "cancelled", t.IsCancelled())
		return
	}
	if err := t.writer.FinalizeWrite(); err != nil {
		t.logger.Warn("query cache write failed", "error", err)
	}
}
