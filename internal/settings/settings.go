// Package settings holds the knobs that shape pipeline construction and
// execution.
package settings

import (
	"flag"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
)

// JoinAlgorithm selects the physical join strategy.
type JoinAlgorithm string

const (
	JoinHash             JoinAlgorithm = "hash"
	JoinFullSortingMerge JoinAlgorithm = "full_sorting_merge"
)

const (
	defaultMaxBlockSize   = 65536
	defaultQueryCacheTTL  = 60 * time.Second
	defaultQueryCacheSize = 1024
)

// Settings for one query.
type Settings struct {
	// MaxThreads is the executor worker count.
	MaxThreads int
	// MaxStreams is the number of parallel streams after a join.
	MaxStreams int
	// MaxBlockSize caps rows per emitted chunk where a processor splits output.
	MaxBlockSize int
	// KeepLeftReadInOrder keeps the left side's stream layout for hash joins.
	KeepLeftReadInOrder bool
	JoinAlgorithm       JoinAlgorithm
	// Extremes adds a min/max row pair to every result.
	Extremes bool

	UseQueryCache            bool
	QueryCacheTTL            time.Duration
	QueryCacheMaxEntries     int
	QueryCacheMaxEntryRows   int
	QueryCacheCompress       bool
	QueryCacheEvictionPeriod time.Duration

	LogLevel  string
	LogFormat string
}

// Default returns the settings used when nothing is overridden.
func Default() Settings {
	n := runtime.NumCPU()
	return Settings{
		MaxThreads:               n,
		MaxStreams:               n,
		MaxBlockSize:             defaultMaxBlockSize,
		JoinAlgorithm:            JoinHash,
		QueryCacheTTL:            defaultQueryCacheTTL,
		QueryCacheMaxEntries:     defaultQueryCacheSize,
		QueryCacheMaxEntryRows:   1_000_000,
		QueryCacheCompress:       true,
		QueryCacheEvictionPeriod: 5 * time.Second,
		LogLevel:                 "info",
		LogFormat:                "text",
	}
}

// RegisterFlags binds every setting to fs, using the receiver's current
// values as defaults.
func (s *Settings) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&s.MaxThreads, "max-threads", s.MaxThreads, "executor worker count")
	fs.IntVar(&s.MaxStreams, "max-streams", s.MaxStreams, "parallel streams after a join")
	fs.IntVar(&s.MaxBlockSize, "max-block-size", s.MaxBlockSize, "maximum rows per emitted chunk")
	fs.BoolVar(&s.KeepLeftReadInOrder, "keep-left-read-in-order", s.KeepLeftReadInOrder,
		"do not resize the probe side of a hash join")
	fs.Func("join-algorithm", "hash or full_sorting_merge", func(v string) error {
		s.JoinAlgorithm = JoinAlgorithm(v)
		return nil
	})
	fs.BoolVar(&s.Extremes, "extremes", s.Extremes, "return extremes alongside the result")
	fs.BoolVar(&s.UseQueryCache, "use-query-cache", s.UseQueryCache, "read and write the query result cache")
	fs.DurationVar(&s.QueryCacheTTL, "query-cache-ttl", s.QueryCacheTTL, "lifetime of a cache entry")
	fs.IntVar(&s.QueryCacheMaxEntries, "query-cache-max-entries", s.QueryCacheMaxEntries, "maximum cached results")
	fs.IntVar(&s.QueryCacheMaxEntryRows, "query-cache-max-entry-rows", s.QueryCacheMaxEntryRows,
		"results with more rows are not cached")
	fs.BoolVar(&s.QueryCacheCompress, "query-cache-compress", s.QueryCacheCompress, "LZ4-compress cache entries")
	fs.DurationVar(&s.QueryCacheEvictionPeriod, "query-cache-eviction-period", s.QueryCacheEvictionPeriod,
		"how often expired cache entries are dropped")
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "debug, info, warn or error")
	fs.StringVar(&s.LogFormat, "log-format", s.LogFormat, "text or json")
}

// Validate rejects settings the engine cannot honour.
func (s Settings) Validate() error {
	if s.MaxThreads < 0 {
		return errors.Newf("max-threads must be >= 0, got %d", s.MaxThreads)
	}
	if s.MaxStreams < 1 {
		return errors.Newf("max-streams must be >= 1, got %d", s.MaxStreams)
	}
	if s.MaxBlockSize < 1 {
		return errors.Newf("max-block-size must be >= 1, got %d", s.MaxBlockSize)
	}
	switch s.JoinAlgorithm {
	case JoinHash, JoinFullSortingMerge:
	default:
		return errors.Newf("unknown join algorithm %q", s.JoinAlgorithm)
	}
	if s.UseQueryCache && s.QueryCacheTTL <= 0 {
		return errors.New("query-cache-ttl must be positive when the query cache is enabled")
	}
	return nil
}
