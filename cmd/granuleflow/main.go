// Command granuleflow runs a demo query over in-memory tables: events joined
// to users, aggregated per country with totals. The query is run several
// times so that repeated runs are served from the query cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/engine"
	"github.com/harshithgowdakt/granuleflow/internal/format"
	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/logging"
	"github.com/harshithgowdakt/granuleflow/internal/plan"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/querycache"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

const query = `SELECT country, count() AS events, uniq(uid) AS users, sum(clicks) AS clicks, max(age) AS oldest
FROM web.events JOIN web.users ON events.uid = users.id
GROUP BY country WITH TOTALS ORDER BY country`

func main() {
	s := settings.Default()
	s.UseQueryCache = true
	s.RegisterFlags(flag.CommandLine)
	outFormat := flag.String("format", "Pretty", "TabSeparated, CSV, JSON or Pretty")
	repeat := flag.Int("repeat", 2, "how many times to run the query")
	minClicks := flag.Int64("min-clicks", 0, "row policy on web.events: hide rows with fewer clicks")
	explain := flag.Bool("explain", true, "print the plan and its processors")
	flag.Parse()

	if err := s.Validate(); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}
	f, err := format.Parse(*outFormat)
	if err != nil {
		log.Fatal(err)
	}
	logging.Init(logging.Config{Level: s.LogLevel, Format: s.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := querycache.New(querycache.ConfigFromSettings(s))
	go querycache.NewEvictor(cache, s.QueryCacheEvictionPeriod).Run(ctx)

	var policies plan.RowPolicies
	if *minClicks > 0 {
		policies = plan.StaticRowPolicies{
			"web.events": {processor.Compare{Column: "clicks", Op: processor.OpGte, Value: *minClicks}},
		}
	}

	e := engine.New(s, cache)
	title := color.New(color.FgYellow, color.Bold)
	for i := 0; i < *repeat; i++ {
		res, err := e.Run(ctx, query, func(rp plan.RowPolicies) (*plan.QueryPlan, error) {
			return buildPlan(s, rp)
		}, engine.WithRowPolicies(policies))
		if err != nil {
			log.Fatalf("query failed: %v", err)
		}

		title.Printf("Run %d (query %s, from cache: %t, %v)\n", i+1, res.QueryID, res.FromCache, res.Elapsed)
		if *explain {
			fmt.Println(res.Pipeline)
		}
		if err := format.Write(os.Stdout, res.Result, f); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%d rows\n\n", res.NumRows())
	}
}

func buildPlan(s settings.Settings, policies plan.RowPolicies) (*plan.QueryPlan, error) {
	events, users := demoTables()
	left, err := plan.ReadTable(events, policies)
	if err != nil {
		return nil, err
	}
	right, err := plan.ReadTable(users, policies)
	if err != nil {
		return nil, err
	}

	tj := join.TableJoin{
		Kind:        join.KindInner,
		LeftKeys:    []string{"uid"},
		RightKeys:   []string{"id"},
		RightHeader: users.Header,
	}
	var algorithm join.Algorithm
	switch s.JoinAlgorithm {
	case settings.JoinFullSortingMerge:
		algorithm, err = join.NewFullSortingMergeJoin(tj, join.SortSettings{MaxBlockSize: s.MaxBlockSize})
	default:
		algorithm, err = join.NewHashJoin(tj)
	}
	if err != nil {
		return nil, err
	}

	p, err := plan.NewJoinPlan(left, right, algorithm)
	if err != nil {
		return nil, err
	}
	agg, err := plan.NewAggregatingStep(p.OutputStream(), []string{"country"}, []processor.AggregateFunc{
		{Name: "count", Alias: "events"},
		{Name: "uniq", Column: "uid", Alias: "users"},
		{Name: "sum", Column: "clicks", Alias: "clicks"},
		{Name: "max", Column: "age", Alias: "oldest"},
	}, true)
	if err != nil {
		return nil, err
	}
	if err := p.AddStep(agg); err != nil {
		return nil, err
	}
	sorting := plan.NewSortingStep(p.OutputStream(), join.NewSortDescription([]string{"country"}), s.MaxBlockSize)
	if err := p.AddStep(sorting); err != nil {
		return nil, err
	}
	return p, nil
}

func demoTables() (events, users *plan.Table) {
	eventsHeader := types.Header{{Name: "uid", Type: types.TypeInt64}, {Name: "clicks", Type: types.TypeInt64}}
	usersHeader := types.Header{
		{Name: "id", Type: types.TypeInt64},
		{Name: "country", Type: types.TypeString},
		{Name: "age", Type: types.TypeUInt8},
	}

	events = &plan.Table{Database: "web", Name: "events", Header: eventsHeader}
	for part := 0; part < 4; part++ {
		uids := make([]int64, 0, 8)
		clicks := make([]int64, 0, 8)
		for i := 0; i < 8; i++ {
			n := int64(part*8 + i)
			uids = append(uids, n%6+1)
			clicks = append(clicks, n%5)
		}
		events.Blocks = append(events.Blocks, column.NewBlock(eventsHeader.Names(), []column.Column{
			column.FromSlice(types.TypeInt64, uids),
			column.FromSlice(types.TypeInt64, clicks),
		}))
	}

	users = &plan.Table{
		Database: "web",
		Name:     "users",
		Header:   usersHeader,
		Blocks: []*column.Block{column.NewBlock(usersHeader.Names(), []column.Column{
			column.FromSlice(types.TypeInt64, []int64{1, 2, 3, 4, 5, 6}),
			column.FromSlice(types.TypeString, []string{"de", "fr", "de", "jp", "fr", "br"}),
			column.FromSlice(types.TypeUInt8, []uint8{34, 27, 45, 22, 51, 38}),
		})},
		SortedBy: join.NewSortDescription([]string{"id"}),
	}
	return events, users
}
