// Package engine runs query plans. With the query cache enabled a repeated
// query is replayed from its cached result instead of being planned again,
// and a fresh result is written through to the cache as it streams out.
package engine

import (
	"context"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/harshithgowdakt/granuleflow/internal/logging"
	"github.com/harshithgowdakt/granuleflow/internal/pipeline"
	"github.com/harshithgowdakt/granuleflow/internal/plan"
	"github.com/harshithgowdakt/granuleflow/internal/querycache"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
)

// PlanFunc builds the plan of a query, reading tables under policies. It is
// not called on a cache hit.
type PlanFunc func(policies plan.RowPolicies) (*plan.QueryPlan, error)

// RunOption configures a single Run.
type RunOption func(*runOptions)

type runOptions struct {
	policies plan.RowPolicies
}

// WithRowPolicies runs the query under policies. They are handed to the
// PlanFunc and their fingerprint is part of the cache key, so results
// computed under other policies are never replayed.
func WithRowPolicies(policies plan.RowPolicies) RunOption {
	return func(o *runOptions) { o.policies = policies }
}

// Engine executes queries with fixed settings.
type Engine struct {
	settings settings.Settings
	cache    *querycache.Cache
}

// New creates an engine. cache may be nil, which disables caching.
func New(s settings.Settings, cache *querycache.Cache) *Engine {
	return &Engine{settings: s, cache: cache}
}

// Settings returns the engine settings.
func (e *Engine) Settings() settings.Settings { return e.settings }

// Result is the outcome of one query.
type Result struct {
	*pipeline.Result
	QueryID   string
	FromCache bool
	// Explain is the step tree of the plan that ran.
	Explain string
	// Pipeline lists the processors each step created.
	Pipeline string
	Elapsed  time.Duration
}

func (e *Engine) useCache() bool {
	return e.settings.UseQueryCache && e.cache != nil
}

// Run executes query. The text only identifies the query for the cache and
// logs; build supplies the plan.
func (e *Engine) Run(ctx context.Context, query string, build PlanFunc, opts ...RunOption) (*Result, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	queryID := uuid.NewString()
	logger := logging.WithQuery("engine", queryID)
	start := time.Now()

	var key querycache.Key
	var p *plan.QueryPlan
	fromCache := false
	if e.useCache() {
		var scope []string
		if o.policies != nil {
			if fp := o.policies.Fingerprint(); fp != "" {
				scope = append(scope, "row_policies="+fp)
			}
		}
		key = querycache.NewKey(query, e.settings, scope...)
		if entry, ok := e.cache.Get(key); ok {
			step, err := plan.NewReadFromQueryCacheStep(entry)
			if err != nil {
				return nil, err
			}
			p = plan.New()
			if err := p.AddStep(step); err != nil {
				return nil, err
			}
			fromCache = true
			logger.Debug("query cache hit", "key", key, "rows", entry.Rows)
		}
	}

	if p == nil {
		var err error
		if p, err = build(o.policies); err != nil {
			return nil, errors.Wrap(err, "planning query")
		}
		if e.settings.Extremes && !p.OutputStream().HasExtremes {
			if err := p.AddStep(plan.NewExtremesStep(p.OutputStream())); err != nil {
				return nil, err
			}
		}
	}

	b, err := p.BuildPipeline(e.settings)
	if err != nil {
		return nil, errors.Wrap(err, "building pipeline")
	}
	if e.useCache() && !fromCache {
		if err := b.StreamIntoQueryCache(e.cache.NewWriter(key, b.Header())); err != nil {
			return nil, err
		}
	}

	threads := e.settings.MaxThreads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	res, err := b.WithLogger(logger).Execute(ctx, threads)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("query cancelled")
		} else {
			logger.Error("query failed", "error", err)
		}
		return nil, err
	}

	elapsed := time.Since(start)
	logger.Info("query finished", "rows", res.NumRows(), "from_cache", fromCache, "elapsed", elapsed)
	return &Result{
		Result:    res,
		QueryID:   queryID,
		FromCache: fromCache,
		Explain:   p.Explain(),
		Pipeline:  p.ExplainPipeline(),
		Elapsed:   elapsed,
	}, nil
}
