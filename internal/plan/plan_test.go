package plan_test

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/pipeline"
	"github.com/harshithgowdakt/granuleflow/internal/plan"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/querycache"
	"github.com/harshithgowdakt/granuleflow/internal/settings"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

var (
	ordersHeader = types.Header{{Name: "id", Type: types.TypeInt64}, {Name: "amount", Type: types.TypeInt64}}
	usersHeader  = types.Header{{Name: "uid", Type: types.TypeInt64}, {Name: "age", Type: types.TypeInt64}}
)

func block(h types.Header, cols ...[]int64) *column.Block {
	columns := make([]column.Column, len(cols))
	for i, c := range cols {
		columns[i] = column.FromSlice(types.TypeInt64, c)
	}
	return column.NewBlock(h.Names(), columns)
}

func ints(blocks []*column.Block, name string) []int64 {
	var out []int64
	for _, b := range blocks {
		if c, ok := b.GetColumn(name); ok {
			out = append(out, c.(*column.Vector[int64]).Data...)
		}
	}
	return out
}

func testSettings(streams int) settings.Settings {
	s := settings.Default()
	s.MaxThreads = 4
	s.MaxStreams = streams
	s.MaxBlockSize = 2
	return s
}

func ordersTable() *plan.Table {
	return &plan.Table{
		Database: "shop",
		Name:     "orders",
		Header:   ordersHeader,
		Blocks: []*column.Block{
			block(ordersHeader, []int64{3, 1}, []int64{30, 10}),
			block(ordersHeader, []int64{2, 1, 4}, []int64{20, 11, 40}),
		},
	}
}

func usersTable() *plan.Table {
	return &plan.Table{
		Database: "shop",
		Name:     "users",
		Header:   usersHeader,
		Blocks: []*column.Block{
			block(usersHeader, []int64{1, 2}, []int64{21, 22}),
			block(usersHeader, []int64{3}, []int64{23}),
		},
		SortedBy: join.NewSortDescription([]string{"uid"}),
	}
}

func tableJoin(kind join.Kind) join.TableJoin {
	return join.TableJoin{Kind: kind, LeftKeys: []string{"id"}, RightKeys: []string{"uid"}, RightHeader: usersHeader}
}

type pair struct{ id, v int64 }

func pairs(res *pipeline.Result, a, b string) []pair {
	ids, vs := ints(res.Blocks, a), ints(res.Blocks, b)
	out := make([]pair, len(ids))
	for i := range ids {
		out[i] = pair{ids[i], vs[i]}
	}
	slices.SortFunc(out, func(x, y pair) int {
		if x.id != y.id {
			return int(x.id - y.id)
		}
		return int(x.v - y.v)
	})
	return out
}

func TestJoinStepRequiresTwoPipelines(t *testing.T) {
	table, err := join.NewHashJoin(tableJoin(join.KindInner))
	require.NoError(t, err)
	step := plan.NewJoinStep(plan.DataStream{Header: ordersHeader}, plan.DataStream{Header: usersHeader}, table)

	for _, n := range []int{0, 1, 3} {
		pipelines := make([]*pipeline.Builder, n)
		for i := range pipelines {
			pipelines[i] = pipeline.New(ordersHeader)
		}
		_, err := step.UpdatePipeline(pipelines, testSettings(2))
		require.Error(t, err)
		assert.True(t, errors.HasAssertionFailure(err), "n=%d: %v", n, err)
	}
}

func TestJoinStepOutputStream(t *testing.T) {
	table, err := join.NewHashJoin(tableJoin(join.KindLeft))
	require.NoError(t, err)
	left := plan.DataStream{Header: ordersHeader, HasTotals: true}
	step := plan.NewJoinStep(left, plan.DataStream{Header: usersHeader}, table)

	assert.Equal(t, []string{"id", "amount", "age"}, step.OutputStream().Header.Names())
	assert.True(t, step.OutputStream().HasTotals)
	assert.False(t, step.AllowPushDownToRight())

	wider := types.Header{{Name: "id", Type: types.TypeInt64}, {Name: "age", Type: types.TypeInt64}}
	require.NoError(t, step.UpdateInputStream(plan.DataStream{Header: wider}, 0))
	assert.Equal(t, []string{"id", "age", "right.age"}, step.OutputStream().Header.Names())
	assert.False(t, step.OutputStream().HasTotals)

	require.NoError(t, step.UpdateInputStream(plan.DataStream{Header: usersHeader}, 1))
	assert.Equal(t, []string{"id", "age", "right.age"}, step.OutputStream().Header.Names())

	err = step.UpdateInputStream(plan.DataStream{}, 2)
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestHashJoinPlan(t *testing.T) {
	left, err := plan.ReadTable(ordersTable(), nil)
	require.NoError(t, err)
	right, err := plan.ReadTable(usersTable(), nil)
	require.NoError(t, err)
	table, err := join.NewHashJoin(tableJoin(join.KindLeft))
	require.NoError(t, err)

	p, err := plan.NewJoinPlan(left, right, table)
	require.NoError(t, err)
	assert.Equal(t, "Join (LEFT, build-then-probe)\n  ReadFromMemory (shop.orders)\n  ReadFromMemory (shop.users)\n", p.Explain())

	b, err := p.BuildPipeline(testSettings(3))
	require.NoError(t, err)
	assert.Equal(t, 3, b.NumStreams())
	assert.Contains(t, p.Root().DescribePipeline(), "JoiningTransform × 3")
	assert.Contains(t, p.Root().DescribePipeline(), "FillingRightJoinSideTransform")
	assert.Contains(t, p.ExplainPipeline(), "  · JoiningTransform × 3")

	res, err := b.Execute(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []pair{{1, 21}, {1, 21}, {2, 22}, {3, 23}, {4, 0}}, pairs(res, "id", "age"))
}

func TestMergeJoinPlanInsertsSorting(t *testing.T) {
	left, err := plan.ReadTable(ordersTable(), nil)
	require.NoError(t, err)
	right, err := plan.ReadTable(usersTable(), nil)
	require.NoError(t, err)
	j, err := join.NewFullSortingMergeJoin(tableJoin(join.KindInner), join.SortSettings{MaxBlockSize: 2})
	require.NoError(t, err)

	p, err := plan.NewJoinPlan(left, right, j)
	require.NoError(t, err)
	// users is stored sorted on uid, so only orders is sorted.
	assert.Equal(t, "Join (INNER, lockstep-merge)\n"+
		"  Sort left before JOIN\n"+
		"    ReadFromMemory (shop.orders)\n"+
		"  ReadFromMemory (shop.users)\n", p.Explain())

	b, err := p.BuildPipeline(testSettings(2))
	require.NoError(t, err)
	assert.Equal(t, 2, b.NumStreams())
	assert.True(t, p.Root().(*plan.JoinStep).AllowPushDownToRight())

	res, err := b.Execute(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []pair{{1, 21}, {1, 21}, {2, 22}, {3, 23}}, pairs(res, "id", "age"))
	assert.Equal(t, []pair{{1, 10}, {1, 11}, {2, 20}, {3, 30}}, pairs(res, "id", "amount"))
}

func TestMergeJoinPlanUsesSortedPrefix(t *testing.T) {
	h := types.Header{{Name: "a", Type: types.TypeInt64}, {Name: "b", Type: types.TypeInt64}}
	rh := types.Header{{Name: "ra", Type: types.TypeInt64}, {Name: "rb", Type: types.TypeInt64}, {Name: "v", Type: types.TypeInt64}}

	leftTable := &plan.Table{Database: "d", Name: "l", Header: h,
		Blocks:   []*column.Block{block(h, []int64{1, 1, 2, 2}, []int64{2, 1, 2, 1})},
		SortedBy: join.NewSortDescription([]string{"a"}),
	}
	rightTable := &plan.Table{Database: "d", Name: "r", Header: rh,
		Blocks: []*column.Block{block(rh, []int64{2, 1, 1}, []int64{1, 1, 2}, []int64{21, 11, 12})},
	}
	left, err := plan.ReadTable(leftTable, nil)
	require.NoError(t, err)
	right, err := plan.ReadTable(rightTable, nil)
	require.NoError(t, err)

	tj := join.TableJoin{Kind: join.KindInner, LeftKeys: []string{"a", "b"}, RightKeys: []string{"ra", "rb"}, RightHeader: rh}
	j, err := join.NewFullSortingMergeJoin(tj, join.SortSettings{MaxBlockSize: 16})
	require.NoError(t, err)

	p, err := plan.NewJoinPlan(left, right, j)
	require.NoError(t, err)
	explain := p.Explain()
	assert.Contains(t, explain, "Sorting (optimized to use sorted prefix) for left side of JOIN")
	assert.Contains(t, explain, "Sort right before JOIN")
	assert.Equal(t, "a", j.SortedPrefix(join.SideLeft).String())

	b, err := p.BuildPipeline(testSettings(1))
	require.NoError(t, err)
	res, err := b.Execute(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 2}, ints(res.Blocks, "a"))
	assert.Equal(t, []int64{1, 2, 1}, ints(res.Blocks, "b"))
	assert.Equal(t, []int64{11, 12, 21}, ints(res.Blocks, "v"))
}

func TestCreateSorting(t *testing.T) {
	j, err := join.NewFullSortingMergeJoin(tableJoin(join.KindInner), join.SortSettings{MaxBlockSize: 8})
	require.NoError(t, err)
	in := plan.DataStream{Header: usersHeader}

	full := plan.CreateSorting(j, join.SideRight, in)
	assert.False(t, full.IsFinishSort())
	assert.Equal(t, "Sort right before JOIN", full.Description())
	assert.Equal(t, "uid", full.OutputStream().SortedBy.String())

	j.SetSortedPrefix(join.SideRight, join.NewSortDescription([]string{"uid"}))
	finish := plan.CreateSorting(j, join.SideRight, in)
	assert.True(t, finish.IsFinishSort())
	assert.Equal(t, "Sorting (optimized to use sorted prefix) for right side of JOIN", finish.Description())
}

func TestFinishSortWithSeveralStreamsFallsBackToFullSort(t *testing.T) {
	h := types.Header{{Name: "a", Type: types.TypeInt64}}
	b := pipeline.New(h)
	for _, vals := range [][]int64{{3, 1}, {2}} {
		src := processor.NewChunksSource(h, []*processor.Chunk{processor.NewChunk(block(h, vals))}, nil, nil)
		require.NoError(t, b.AddSource(src))
	}
	desc := join.NewSortDescription([]string{"a"})
	step := plan.NewFinishSortingStep(plan.DataStream{Header: h}, desc, desc, 0)

	out, err := step.UpdatePipeline([]*pipeline.Builder{b}, testSettings(1))
	require.NoError(t, err)
	assert.Contains(t, step.DescribePipeline(), "SortTransform")
	res, err := out.Execute(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ints(res.Blocks, "a"))
}

func TestRowPolicyAppliedBeforeJoin(t *testing.T) {
	policies := plan.StaticRowPolicies{
		"shop.orders": {processor.Compare{Column: "amount", Op: processor.OpLt, Value: int64(30)}},
	}
	left, err := plan.ReadTable(ordersTable(), policies)
	require.NoError(t, err)
	right, err := plan.ReadTable(usersTable(), policies)
	require.NoError(t, err)
	table, err := join.NewHashJoin(tableJoin(join.KindInner))
	require.NoError(t, err)

	p, err := plan.NewJoinPlan(left, right, table)
	require.NoError(t, err)
	assert.Equal(t, "Join (INNER, build-then-probe)\n"+
		"  Row policy filter ((amount < 30))\n"+
		"    ReadFromMemory (shop.orders)\n"+
		"  ReadFromMemory (shop.users)\n", p.Explain())

	b, err := p.BuildPipeline(testSettings(2))
	require.NoError(t, err)
	res, err := b.Execute(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []pair{{1, 10}, {1, 11}, {2, 20}}, pairs(res, "id", "amount"))
}

func TestStaticRowPoliciesCombine(t *testing.T) {
	extra := processor.Compare{Column: "id", Op: processor.OpGt, Value: int64(1)}
	policies := plan.StaticRowPolicies{
		"shop.orders": {processor.Compare{Column: "amount", Op: processor.OpLt, Value: int64(30)}},
	}
	assert.Nil(t, policies.Filter("shop", "users", plan.PolicySelect, nil))
	assert.Equal(t, extra, policies.Filter("shop", "users", plan.PolicySelect, extra))
	assert.Equal(t, "(amount < 30) AND (id > 1)", policies.Filter("shop", "orders", plan.PolicySelect, extra).String())
}

func TestStaticRowPoliciesFingerprint(t *testing.T) {
	cheap := processor.Compare{Column: "amount", Op: processor.OpLt, Value: int64(30)}
	a := plan.StaticRowPolicies{"shop.orders": {cheap}, "shop.users": nil}
	b := plan.StaticRowPolicies{"shop.orders": {cheap}}

	assert.Empty(t, plan.StaticRowPolicies{}.Fingerprint())
	assert.Empty(t, plan.StaticRowPolicies{"shop.users": nil}.Fingerprint())
	assert.NotEmpty(t, a.Fingerprint())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	other := plan.StaticRowPolicies{"shop.orders": {processor.Compare{Column: "amount", Op: processor.OpLt, Value: int64(20)}}}
	assert.NotEqual(t, a.Fingerprint(), other.Fingerprint())
	asString := plan.StaticRowPolicies{"shop.orders": {processor.Compare{Column: "amount", Op: processor.OpLt, Value: "30"}}}
	assert.NotEqual(t, a.Fingerprint(), asString.Fingerprint())
	elsewhere := plan.StaticRowPolicies{"shop.items": {cheap}}
	assert.NotEqual(t, a.Fingerprint(), elsewhere.Fingerprint())
}

func TestFilledJoinStepRequiresFilledTable(t *testing.T) {
	table, err := join.NewHashJoin(tableJoin(join.KindInner))
	require.NoError(t, err)
	_, err = plan.NewFilledJoinStep(plan.DataStream{Header: ordersHeader}, table)
	require.Error(t, err)
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestFilledJoinStepUpdateInputStream(t *testing.T) {
	table, err := join.NewFilledHashJoin(tableJoin(join.KindLeft), usersTable().Blocks, nil)
	require.NoError(t, err)
	step, err := plan.NewFilledJoinStep(plan.DataStream{Header: ordersHeader}, table)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "amount", "age"}, step.OutputStream().Header.Names())
	assert.False(t, step.OutputStream().HasTotals)

	wider := types.Header{{Name: "id", Type: types.TypeInt64}, {Name: "age", Type: types.TypeInt64}}
	step.UpdateInputStream(plan.DataStream{Header: wider, HasTotals: true, HasExtremes: true})
	assert.Equal(t, []string{"id", "age", "right.age"}, step.OutputStream().Header.Names())
	assert.True(t, step.OutputStream().HasTotals)
	assert.True(t, step.OutputStream().HasExtremes)
	assert.Equal(t, wider, step.InputStreams()[0].Header)
}

func TestFilledJoinStepEmitsTableTotalsOnce(t *testing.T) {
	table, err := join.NewFilledHashJoin(tableJoin(join.KindLeft), usersTable().Blocks,
		block(usersHeader, []int64{0}, []int64{66}))
	require.NoError(t, err)

	for run := 0; run < 20; run++ {
		b := pipeline.New(ordersHeader)
		for _, blk := range ordersTable().Blocks {
			src := processor.NewChunksSource(ordersHeader, []*processor.Chunk{processor.NewChunk(blk)}, nil, nil)
			require.NoError(t, b.AddSource(src))
		}
		step, err := plan.NewFilledJoinStep(plan.DataStream{Header: ordersHeader}, table)
		require.NoError(t, err)
		assert.True(t, step.OutputStream().HasTotals)

		out, err := step.UpdatePipeline([]*pipeline.Builder{b}, testSettings(2))
		require.NoError(t, err)
		require.True(t, out.HasTotals())
		assert.Contains(t, step.DescribePipeline(), "JoiningTransform × 2")

		res, err := out.Execute(context.Background(), 4)
		require.NoError(t, err)
		assert.Len(t, ints(res.Blocks, "id"), 5)
		require.NotNil(t, res.Totals)
		assert.Equal(t, []int64{66}, ints([]*column.Block{res.Totals}, "age"))
		assert.Equal(t, []int64{0}, ints([]*column.Block{res.Totals}, "id"))
	}
}

func TestAggregationOverJoinWithTotalsAndExtremes(t *testing.T) {
	left, err := plan.ReadTable(ordersTable(), nil)
	require.NoError(t, err)
	right, err := plan.ReadTable(usersTable(), nil)
	require.NoError(t, err)
	table, err := join.NewHashJoin(tableJoin(join.KindInner))
	require.NoError(t, err)
	p, err := plan.NewJoinPlan(left, right, table)
	require.NoError(t, err)

	agg, err := plan.NewAggregatingStep(p.OutputStream(), []string{"age"},
		[]processor.AggregateFunc{{Name: "sum", Column: "amount", Alias: "total"}}, true)
	require.NoError(t, err)
	require.NoError(t, p.AddStep(agg))
	sorting := plan.NewSortingStep(p.OutputStream(), join.NewSortDescription([]string{"age"}), 0)
	require.NoError(t, p.AddStep(sorting))
	require.NoError(t, p.AddStep(plan.NewLimitStep(p.OutputStream(), 2)))
	require.NoError(t, p.AddStep(plan.NewExtremesStep(p.OutputStream())))

	b, err := p.BuildPipeline(testSettings(3))
	require.NoError(t, err)
	res, err := b.Execute(context.Background(), 4)
	require.NoError(t, err)

	assert.Equal(t, []int64{21, 22}, ints(res.Blocks, "age"))
	assert.Equal(t, []int64{21, 20}, ints(res.Blocks, "total"))
	require.NotNil(t, res.Totals)
	assert.Equal(t, []int64{71}, ints([]*column.Block{res.Totals}, "total"))
	require.NotNil(t, res.Extremes)
	assert.Equal(t, []int64{21, 22}, ints([]*column.Block{res.Extremes}, "age"))
	assert.Equal(t, []int64{20, 21}, ints([]*column.Block{res.Extremes}, "total"))
}

func TestProjectionStepKeepsSurvivingOrder(t *testing.T) {
	in := plan.DataStream{Header: ordersHeader, SortedBy: join.NewSortDescription([]string{"id", "amount"})}
	step, err := plan.NewProjectionStep(in, []processor.ProjectionColumn{{Column: "id"}, {Column: "amount", Alias: "x"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "x"}, step.OutputStream().Header.Names())
	assert.Equal(t, "id", step.OutputStream().SortedBy.String())

	_, err = plan.NewProjectionStep(in, []processor.ProjectionColumn{{Column: "missing"}})
	require.Error(t, err)
}

func TestAddStepChecksHeaders(t *testing.T) {
	p := plan.New()
	err := p.AddStep(plan.NewLimitStep(plan.DataStream{Header: ordersHeader}, 1))
	assert.True(t, errors.HasAssertionFailure(err))

	require.NoError(t, p.AddStep(plan.NewReadFromChunksStep(ordersHeader, nil, nil, nil)))
	err = p.AddStep(plan.NewLimitStep(plan.DataStream{Header: usersHeader}, 1))
	assert.True(t, errors.HasAssertionFailure(err))

	_, err = plan.New().BuildPipeline(testSettings(1))
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestReadFromQueryCacheStep(t *testing.T) {
	cache := querycache.New(querycache.Config{TTL: time.Minute, Compress: true})
	key := querycache.NewKey("SELECT * FROM shop.orders", settings.Default())
	w := cache.NewWriter(key, ordersHeader)
	for _, b := range ordersTable().Blocks {
		w.Buffer(b)
	}
	w.BufferTotals(block(ordersHeader, []int64{0}, []int64{111}))
	require.NoError(t, w.FinalizeWrite())

	entry, ok := cache.Get(key)
	require.True(t, ok)
	step, err := plan.NewReadFromQueryCacheStep(entry)
	require.NoError(t, err)
	assert.Equal(t, "ReadFromQueryCache", step.Name())
	assert.True(t, step.OutputStream().HasTotals)
	assert.False(t, step.OutputStream().HasExtremes)

	p := plan.New()
	require.NoError(t, p.AddStep(step))
	b, err := p.BuildPipeline(testSettings(1))
	require.NoError(t, err)
	res, err := b.Execute(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2, 1, 4}, ints(res.Blocks, "id"))
	assert.Equal(t, []int64{111}, ints([]*column.Block{res.Totals}, "amount"))
	assert.True(t, strings.HasPrefix(p.ExplainPipeline(), "ReadFromQueryCache\n  · ChunksSource"))
}
