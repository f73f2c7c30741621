package processor_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

var idHeader = types.Header{{Name: "id", Type: types.TypeInt64}}

func idChunk(ids ...int64) *processor.Chunk {
	return processor.NewChunk(column.NewBlock([]string{"id"},
		[]column.Column{column.FromSlice(types.TypeInt64, ids)}))
}

func connect(t testing.TB, out *processor.OutputPort, in *processor.InputPort) {
	t.Helper()
	if err := processor.Connect(out, in); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func execute(t testing.TB, ctx context.Context, procs ...processor.Processor) error {
	t.Helper()
	g, err := processor.NewExecutingGraph(procs)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	return processor.NewPipelineExecutor(g, 4).Execute(ctx)
}

func int64s(blocks []*column.Block, name string) []int64 {
	var out []int64
	for _, b := range blocks {
		c, ok := b.GetColumn(name)
		if !ok {
			continue
		}
		out = append(out, c.(*column.Vector[int64]).Data...)
	}
	return out
}

func chunkBlocks(chunks []*processor.Chunk) []*column.Block {
	blocks := make([]*column.Block, 0, len(chunks))
	for _, c := range chunks {
		blocks = append(blocks, c.Block)
	}
	return blocks
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// event is one chunk observed by a recorder.
type event struct {
	port         int
	chunk        *processor.Chunk
	mainFinished bool
}

// recorder is a sink remembering the order in which chunks arrive on its
// inputs.
type recorder struct {
	processor.BaseProcessor
	events []event
	// onPull runs for every pulled chunk.
	onPull func(port int)
}

func newRecorder(hs ...types.Header) *recorder {
	return &recorder{BaseProcessor: processor.NewBaseProcessor("Recorder", hs, nil)}
}

func (r *recorder) Prepare() processor.Status {
	finished := true
	for i, in := range r.Inputs() {
		if c := in.Pull(); c != nil {
			r.events = append(r.events, event{port: i, chunk: c, mainFinished: r.Input(0).IsFinished()})
			if r.onPull != nil {
				r.onPull(i)
			}
		}
		if !in.IsFinished() {
			finished = false
		}
	}
	if finished {
		return processor.StatusFinished
	}
	return processor.StatusNeedData
}

func (r *recorder) Work() error { return nil }

func (r *recorder) chunks(port int) []*processor.Chunk {
	var out []*processor.Chunk
	for _, e := range r.events {
		if e.port == port {
			out = append(out, e.chunk)
		}
	}
	return out
}

// stalled never makes progress.
type stalled struct {
	processor.BaseProcessor
}

func (s *stalled) Prepare() processor.Status {
	if s.IsCancelled() {
		return s.FinishAll()
	}
	return processor.StatusNeedData
}

func (s *stalled) Work() error { return nil }

type fakeWriter struct {
	mu        sync.Mutex
	main      []*column.Block
	totals    []*column.Block
	extremes  []*column.Block
	finalized int
}

func (w *fakeWriter) Buffer(b *column.Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.main = append(w.main, b)
}

func (w *fakeWriter) BufferTotals(b *column.Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.totals = append(w.totals, b)
}

func (w *fakeWriter) BufferExtremes(b *column.Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.extremes = append(w.extremes, b)
}

func (w *fakeWriter) FinalizeWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized++
	return nil
}

func TestProcessorPortStates(t *testing.T) {
	out := processor.NewOutputPort(idHeader)
	inp := processor.NewInputPort(idHeader)

	if err := processor.Connect(out, processor.NewInputPort(types.Header{{Name: "x", Type: types.TypeString}})); err == nil {
		t.Fatal("connect should reject differing headers")
	} else if !errors.HasAssertionFailure(err) {
		t.Fatalf("expected assertion failure, got %v", err)
	}

	connect(t, out, inp)
	if err := processor.Connect(out, inp); err == nil {
		t.Fatal("second connect should fail")
	}

	if !out.CanPush() {
		t.Fatal("after connect, output should be pushable")
	}
	if inp.HasData() {
		t.Fatal("after connect, input should not have data yet")
	}

	chunk := idChunk(1)
	if !out.Push(chunk) {
		t.Fatal("push should succeed on an empty port")
	}
	if out.CanPush() {
		t.Fatal("after push, output should not be pushable")
	}
	if !inp.HasData() {
		t.Fatal("after push, input should have data")
	}

	// Data pushed before finishing stays pullable.
	out.Finish()
	if inp.IsFinished() {
		t.Fatal("input must not report finished while holding data")
	}
	if got := inp.Pull(); got != chunk {
		t.Fatal("pulled chunk should match pushed chunk")
	}
	if !inp.IsFinished() {
		t.Fatal("after output finish and pull, input should see finished")
	}
	if out.Push(idChunk(2)) {
		t.Fatal("push into a finished port should be rejected")
	}
}

func TestProcessorPortCloseAndMismatch(t *testing.T) {
	out := processor.NewOutputPort(idHeader)
	inp := processor.NewInputPort(idHeader)
	connect(t, out, inp)

	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("pushing a mismatched header should panic")
			}
			if err, ok := r.(error); !ok || !errors.HasAssertionFailure(err) {
				t.Fatalf("expected assertion failure, got %v", r)
			}
		}()
		bad := processor.NewChunk(column.NewBlock([]string{"x"},
			[]column.Column{column.FromSlice(types.TypeString, []string{"a"})}))
		out.Push(bad)
	}()

	inp.Close()
	if out.CanPush() || !out.IsFinished() {
		t.Fatal("closing the input should finish the output side")
	}
}

func TestChunksSourceRoundTrip(t *testing.T) {
	chunks := []*processor.Chunk{idChunk(1, 2), idChunk(), idChunk(3), idChunk(4, 5, 6)}
	totals := idChunk(21)
	extremes := idChunk(1)

	src := processor.NewChunksSource(idHeader, chunks, totals, extremes)
	sink := newRecorder(idHeader, idHeader, idHeader)
	connect(t, src.Output(0), sink.Input(0))
	connect(t, src.Totals(), sink.Input(1))
	connect(t, src.Extremes(), sink.Input(2))

	if err := execute(t, context.Background(), src, sink); err != nil {
		t.Fatalf("execute: %v", err)
	}

	want := []*processor.Chunk{chunks[0], chunks[1], chunks[2], chunks[3], totals, extremes}
	if len(sink.events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(sink.events))
	}
	for i, e := range sink.events {
		if e.chunk != want[i] {
			t.Fatalf("event %d: unexpected chunk on port %d", i, e.port)
		}
	}
	for _, e := range sink.events[4:] {
		if !e.mainFinished {
			t.Fatalf("side chunk on port %d arrived before the main output finished", e.port)
		}
	}
}

func TestChunksSourceWithoutSideOutputs(t *testing.T) {
	src := processor.NewSourceFromSingleChunk(idHeader, idChunk(7))
	if src.Totals() != nil || src.Extremes() != nil {
		t.Fatal("side outputs must not exist without values")
	}
	if len(src.Outputs()) != 1 {
		t.Fatalf("expected 1 output, got %d", len(src.Outputs()))
	}
	sink := processor.NewResultSink(idHeader, false, false)
	connect(t, src.Output(0), sink.Input(0))
	if err := execute(t, context.Background(), src, sink); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := int64s(sink.ResultBlocks(), "id"); !equalInts(got, []int64{7}) {
		t.Fatalf("got %v", got)
	}
}

func TestExecutorFilterLimit(t *testing.T) {
	var chunks []*processor.Chunk
	for i := int64(0); i < 10; i++ {
		chunks = append(chunks, idChunk(i*10, i*10+1, i*10+2))
	}
	src := processor.NewChunksSource(idHeader, chunks, nil, nil)
	filter := processor.NewFilterTransform(idHeader, processor.And{
		processor.Compare{Column: "id", Op: processor.OpGte, Value: int64(20)},
		processor.Compare{Column: "id", Op: processor.OpNeq, Value: int64(21)},
	})
	limit := processor.NewLimitTransform(idHeader, 5)
	sink := processor.NewResultSink(idHeader, false, false)
	connect(t, src.Output(0), filter.Input(0))
	connect(t, filter.Output(0), limit.Input(0))
	connect(t, limit.Output(0), sink.Input(0))

	if err := execute(t, context.Background(), src, filter, limit, sink); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := int64s(sink.ResultBlocks(), "id"); !equalInts(got, []int64{20, 22, 30, 31, 32}) {
		t.Fatalf("got %v", got)
	}
}

func TestExecutorStuck(t *testing.T) {
	s := &stalled{BaseProcessor: processor.NewBaseProcessor("Stalled", nil, []types.Header{idHeader})}
	sink := processor.NewResultSink(idHeader, false, false)
	connect(t, s.Output(0), sink.Input(0))

	err := execute(t, context.Background(), s, sink)
	if err == nil {
		t.Fatal("expected stuck pipeline error")
	}
	if !errors.HasAssertionFailure(err) || !strings.Contains(err.Error(), "stuck") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecutorUnconnectedPort(t *testing.T) {
	src := processor.NewSourceFromSingleChunk(idHeader, idChunk(1))
	if _, err := processor.NewExecutingGraph([]processor.Processor{src}); err == nil {
		t.Fatal("expected error for an unconnected output")
	}
}

func TestExecutorWorkErrorSkipsCacheCommit(t *testing.T) {
	src := processor.NewChunksSource(idHeader, []*processor.Chunk{idChunk(1), idChunk(2)}, nil, nil)
	w := &fakeWriter{}
	cache := processor.NewCacheWriteTransform(idHeader, w, processor.ChannelMain)
	failing := processor.NewSimpleTransform("Exploding", idHeader, idHeader, func(c *processor.Chunk) (*processor.Chunk, error) {
		return nil, errors.New("boom")
	})
	sink := processor.NewResultSink(idHeader, false, false)
	connect(t, src.Output(0), cache.Input(0))
	connect(t, cache.Output(0), failing.Input(0))
	connect(t, failing.Output(0), sink.Input(0))

	err := execute(t, context.Background(), src, cache, failing, sink)
	if err == nil || !strings.Contains(err.Error(), "Exploding") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected wrapped work error, got %v", err)
	}
	if w.finalized != 0 {
		t.Fatal("a failed pipeline must not commit the cache entry")
	}
}

func TestExecutorPanicAndHeaderMismatch(t *testing.T) {
	src := processor.NewSourceFromSingleChunk(idHeader, idChunk(1))
	wrong := processor.NewSimpleTransform("Wrong", idHeader, idHeader, func(c *processor.Chunk) (*processor.Chunk, error) {
		return processor.NewChunk(column.NewBlock([]string{"other"},
			[]column.Column{column.FromSlice(types.TypeInt64, []int64{1})})), nil
	})
	sink := processor.NewResultSink(idHeader, false, false)
	connect(t, src.Output(0), wrong.Input(0))
	connect(t, wrong.Output(0), sink.Input(0))

	err := execute(t, context.Background(), src, wrong, sink)
	if err == nil || !errors.HasAssertionFailure(err) {
		t.Fatalf("expected assertion failure from header mismatch, got %v", err)
	}
}

func TestExecutorCancellation(t *testing.T) {
	src := processor.NewSource("Endless", idHeader, func() (*processor.Chunk, error) {
		return idChunk(1), nil
	})
	w := &fakeWriter{}
	cache := processor.NewCacheWriteTransform(idHeader, w, processor.ChannelMain)
	sink := newRecorder(idHeader)
	sink.onPull = func(int) { sink.events = sink.events[:0] }
	connect(t, src.Output(0), cache.Input(0))
	connect(t, cache.Output(0), sink.Input(0))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := execute(t, ctx, src, cache, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if w.finalized != 0 {
		t.Fatal("a cancelled pipeline must not commit the cache entry")
	}
	if !cache.IsCancelled() {
		t.Fatal("processors should be cancelled")
	}
}

func TestCacheWriteThrough(t *testing.T) {
	chunks := []*processor.Chunk{idChunk(1, 2), idChunk(3), idChunk(4, 5)}
	src := processor.NewChunksSource(idHeader, chunks, idChunk(15), idChunk(1))
	w := &fakeWriter{}
	mainT := processor.NewCacheWriteTransform(idHeader, w, processor.ChannelMain)
	totalsT := processor.NewCacheWriteTransform(idHeader, w, processor.ChannelTotals)
	extremesT := processor.NewCacheWriteTransform(idHeader, w, processor.ChannelExtremes)
	sink := processor.NewResultSink(idHeader, true, true)

	connect(t, src.Output(0), mainT.Input(0))
	connect(t, src.Totals(), totalsT.Input(0))
	connect(t, src.Extremes(), extremesT.Input(0))
	connect(t, mainT.Output(0), sink.Input(0))
	connect(t, totalsT.Output(0), sink.TotalsInput())
	connect(t, extremesT.Output(0), sink.ExtremesInput())

	if err := execute(t, context.Background(), src, mainT, totalsT, extremesT, sink); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if w.finalized != 1 {
		t.Fatalf("expected exactly one commit, got %d", w.finalized)
	}
	if len(w.main) != len(sink.Chunks) {
		t.Fatalf("writer saw %d chunks, consumer %d", len(w.main), len(sink.Chunks))
	}
	for i, c := range sink.Chunks {
		if c != chunks[i] {
			t.Fatalf("chunk %d was not forwarded unchanged", i)
		}
		if w.main[i] == c.Block {
			t.Fatalf("chunk %d was buffered without a copy", i)
		}
	}
	if got, want := int64s(w.main, "id"), int64s(chunkBlocks(sink.Chunks), "id"); !equalInts(got, want) {
		t.Fatalf("writer saw %v, consumer %v", got, want)
	}
	if len(w.totals) != 1 || len(w.extremes) != 1 {
		t.Fatalf("expected one totals and one extremes copy, got %d/%d", len(w.totals), len(w.extremes))
	}
	if sink.Totals == nil || sink.Extremes == nil {
		t.Fatal("sink should receive totals and extremes")
	}
}

func TestResizePreservesPerStreamOrder(t *testing.T) {
	const sources, perSource = 3, 6
	var procs []processor.Processor
	resize := processor.NewResizeProcessor(idHeader, sources, 2)
	for s := 0; s < sources; s++ {
		var chunks []*processor.Chunk
		for i := 0; i < perSource; i++ {
			chunks = append(chunks, idChunk(int64(s*100+i)))
		}
		src := processor.NewChunksSource(idHeader, chunks, nil, nil)
		connect(t, src.Output(0), resize.Input(s))
		procs = append(procs, src)
	}
	procs = append(procs, resize)
	sinks := []*recorder{newRecorder(idHeader), newRecorder(idHeader)}
	for i, s := range sinks {
		connect(t, resize.Output(i), s.Input(0))
		procs = append(procs, s)
	}

	if err := execute(t, context.Background(), procs...); err != nil {
		t.Fatalf("execute: %v", err)
	}

	total := 0
	for _, s := range sinks {
		last := map[int64]int64{}
		for _, v := range int64s(chunkBlocks(s.chunks(0)), "id") {
			total++
			src, seq := v/100, v%100
			if prev, ok := last[src]; ok && seq <= prev {
				t.Fatalf("stream %d out of order: %d after %d", src, seq, prev)
			}
			last[src] = seq
		}
	}
	if total != sources*perSource {
		t.Fatalf("expected %d chunks, got %d", sources*perSource, total)
	}
}

func TestSortTransforms(t *testing.T) {
	header := types.Header{{Name: "a", Type: types.TypeInt64}, {Name: "b", Type: types.TypeInt64}}
	mk := func(a, b []int64) *processor.Chunk {
		return processor.NewChunk(column.NewBlock(header.Names(),
			[]column.Column{column.FromSlice(types.TypeInt64, a), column.FromSlice(types.TypeInt64, b)}))
	}
	input := func() []*processor.Chunk {
		return []*processor.Chunk{
			mk([]int64{1, 1}, []int64{3, 1}),
			mk([]int64{1, 2}, []int64{2, 9}),
			mk([]int64{2, 3}, []int64{1, 5}),
		}
	}
	keys := []column.SortKey{{Column: "a"}, {Column: "b"}}
	wantA := []int64{1, 1, 1, 2, 2, 3}
	wantB := []int64{1, 2, 3, 1, 9, 5}

	for name, mkTransform := range map[string]func() processor.Processor{
		"full":   func() processor.Processor { return processor.NewSortTransform(header, keys, 4) },
		"finish": func() processor.Processor { return processor.NewFinishSortingTransform(header, keys[:1], keys) },
	} {
		t.Run(name, func(t *testing.T) {
			src := processor.NewChunksSource(header, input(), nil, nil)
			sorter := mkTransform()
			sink := processor.NewResultSink(header, false, false)
			connect(t, src.Output(0), sorter.Inputs()[0])
			connect(t, sorter.Outputs()[0], sink.Input(0))
			if err := execute(t, context.Background(), src, sorter, sink); err != nil {
				t.Fatalf("execute: %v", err)
			}
			blocks := sink.ResultBlocks()
			if got := int64s(blocks, "a"); !equalInts(got, wantA) {
				t.Fatalf("a = %v", got)
			}
			if got := int64s(blocks, "b"); !equalInts(got, wantB) {
				t.Fatalf("b = %v", got)
			}
		})
	}
}

var (
	leftHeader  = types.Header{{Name: "id", Type: types.TypeInt64}}
	rightHeader = types.Header{{Name: "uid", Type: types.TypeInt64}, {Name: "score", Type: types.TypeInt64}}
)

func rightChunk(ids, scores []int64) *processor.Chunk {
	return processor.NewChunk(column.NewBlock(rightHeader.Names(), []column.Column{
		column.FromSlice(types.TypeInt64, ids),
		column.FromSlice(types.TypeInt64, scores),
	}))
}

func tableJoin() join.TableJoin {
	return join.TableJoin{Kind: join.KindInner, LeftKeys: []string{"id"}, RightKeys: []string{"uid"}, RightHeader: rightHeader}
}

// spyTable records the order of build and probe calls.
type spyTable struct {
	*join.HashJoin
	mu          sync.Mutex
	built       bool
	earlyProbes int
	probes      int
}

func (s *spyTable) FinishBuild() error {
	s.mu.Lock()
	s.built = true
	s.mu.Unlock()
	return s.HashJoin.FinishBuild()
}

func (s *spyTable) JoinBlock(b *column.Block) (*column.Block, error) {
	s.mu.Lock()
	s.probes++
	if !s.built {
		s.earlyProbes++
	}
	s.mu.Unlock()
	return s.HashJoin.JoinBlock(b)
}

func TestBuildThenProbe(t *testing.T) {
	hj, err := join.NewHashJoin(tableJoin())
	if err != nil {
		t.Fatal(err)
	}
	table := &spyTable{HashJoin: hj}

	right := processor.NewChunksSource(rightHeader,
		[]*processor.Chunk{rightChunk([]int64{1, 2}, []int64{10, 20}), rightChunk([]int64{3}, []int64{30})},
		rightChunk([]int64{0}, []int64{60}), nil)
	filling := processor.NewFillingRightJoinSideTransform(rightHeader, table, true)
	connect(t, right.Output(0), filling.Input(0))
	connect(t, right.Totals(), filling.TotalsInput())

	const streams = 3
	signal := processor.NewResizeProcessor(types.Header{}, 1, streams)
	connect(t, filling.Output(0), signal.Input(0))

	procs := []processor.Processor{right, filling, signal}
	var sinks []*processor.ResultSink
	for s := 0; s < streams; s++ {
		left := processor.NewChunksSource(leftHeader,
			[]*processor.Chunk{idChunk(int64(s + 1)), idChunk(9)}, nil, nil)
		probe := processor.NewJoiningTransform(leftHeader, table, processor.JoiningOptions{WaitForBuild: true})
		sink := processor.NewResultSink(probe.Outputs()[0].Header(), false, false)
		connect(t, left.Output(0), probe.Input(0))
		connect(t, signal.Output(s), probe.SignalInput())
		connect(t, probe.Output(0), sink.Input(0))
		procs = append(procs, left, probe, sink)
		sinks = append(sinks, sink)
	}

	if err := execute(t, context.Background(), procs...); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if table.earlyProbes != 0 {
		t.Fatalf("%d probes ran before the build finished", table.earlyProbes)
	}
	if table.probes != streams*2 {
		t.Fatalf("expected %d probes, got %d", streams*2, table.probes)
	}
	for s, sink := range sinks {
		if got := int64s(sink.ResultBlocks(), "score"); !equalInts(got, []int64{int64(s+1) * 10}) {
			t.Fatalf("stream %d: score = %v", s, got)
		}
	}
	if table.Totals() == nil {
		t.Fatal("right totals should become the table totals")
	}
}

// closer walks away from its input at once, like a satisfied LIMIT.
type closer struct {
	processor.BaseProcessor
}

func newCloser(h types.Header) *closer {
	return &closer{BaseProcessor: processor.NewBaseProcessor("Closer", []types.Header{h}, nil)}
}

func (c *closer) Prepare() processor.Status { return c.FinishAll() }

func (c *closer) Work() error { return nil }

func TestBuildStopsWhenEveryJoinerCloses(t *testing.T) {
	hj, err := join.NewHashJoin(tableJoin())
	if err != nil {
		t.Fatal(err)
	}
	table := &spyTable{HashJoin: hj}

	var generated atomic.Int64
	right := processor.NewSource("Endless", rightHeader, func() (*processor.Chunk, error) {
		n := generated.Add(1)
		return rightChunk([]int64{n}, []int64{n * 10}), nil
	})
	filling := processor.NewFillingRightJoinSideTransform(rightHeader, table, false)
	connect(t, right.Output(0), filling.Input(0))

	const streams = 2
	signal := processor.NewResizeProcessor(types.Header{}, 1, streams)
	connect(t, filling.Output(0), signal.Input(0))

	procs := []processor.Processor{right, filling, signal}
	for s := 0; s < streams; s++ {
		left := processor.NewChunksSource(leftHeader, []*processor.Chunk{idChunk(1)}, nil, nil)
		joiner := processor.NewJoiningTransform(leftHeader, table, processor.JoiningOptions{WaitForBuild: true})
		done := newCloser(joiner.Outputs()[0].Header())
		connect(t, left.Output(0), joiner.Input(0))
		connect(t, signal.Output(s), joiner.SignalInput())
		connect(t, joiner.Output(0), done.Input(0))
		procs = append(procs, left, joiner, done)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := execute(t, ctx, procs...); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if table.built {
		t.Fatal("build finished although no joiner was left to read the table")
	}
	if table.probes != 0 {
		t.Fatalf("expected no joins, got %d", table.probes)
	}
}

func TestPrefilledProbeTotalsAfterAllStreams(t *testing.T) {
	for run := 0; run < 20; run++ {
		table, err := join.NewFilledHashJoin(tableJoin(),
			[]*column.Block{rightChunk([]int64{1, 2, 3}, []int64{10, 20, 30}).Block},
			rightChunk([]int64{0}, []int64{60}).Block)
		if err != nil {
			t.Fatal(err)
		}

		const streams = 4
		counter := processor.NewFinishCounter(streams)
		var procs []processor.Processor
		for s := 0; s < streams; s++ {
			var chunks []*processor.Chunk
			for i := 0; i <= s*3; i++ {
				chunks = append(chunks, idChunk(int64(i%3+1)))
			}
			src := processor.NewChunksSource(leftHeader, chunks, nil, nil)
			probe := processor.NewJoiningTransform(leftHeader, table, processor.JoiningOptions{Counter: counter})
			sink := processor.NewResultSink(probe.Outputs()[0].Header(), false, false)
			connect(t, src.Output(0), probe.Input(0))
			connect(t, probe.Output(0), sink.Input(0))
			procs = append(procs, src, probe, sink)
		}

		totalsSrc := processor.NewSourceFromSingleChunk(leftHeader, idChunk(0))
		totals := processor.NewJoiningTransform(leftHeader, table,
			processor.JoiningOptions{Counter: counter, OnTotals: true, DefaultTotals: true})
		sink := newRecorder(totals.Outputs()[0].Header())
		doneAtArrival := true
		sink.onPull = func(int) { doneAtArrival = doneAtArrival && counter.IsDone() }
		connect(t, totalsSrc.Output(0), totals.Input(0))
		connect(t, totals.Output(0), sink.Input(0))
		procs = append(procs, totalsSrc, totals, sink)

		if err := execute(t, context.Background(), procs...); err != nil {
			t.Fatalf("execute: %v", err)
		}
		if len(sink.events) != 1 {
			t.Fatalf("expected exactly one totals chunk, got %d", len(sink.events))
		}
		if !doneAtArrival {
			t.Fatal("totals emitted before every stream finished")
		}
		if got := int64s([]*column.Block{sink.events[0].chunk.Block}, "score"); !equalInts(got, []int64{60}) {
			t.Fatalf("totals score = %v", got)
		}
	}
}

func TestMergeJoinTransform(t *testing.T) {
	mj, err := join.NewFullSortingMergeJoin(tableJoin(), join.SortSettings{})
	if err != nil {
		t.Fatal(err)
	}
	left := processor.NewChunksSource(leftHeader,
		[]*processor.Chunk{idChunk(1, 2), idChunk(2, 3), idChunk(5)}, nil, nil)
	right := processor.NewChunksSource(rightHeader, []*processor.Chunk{
		rightChunk([]int64{2}, []int64{1}),
		rightChunk([]int64{2, 3, 4}, []int64{2, 3, 4}),
		rightChunk([]int64{5, 5}, []int64{5, 6}),
	}, nil, nil)
	merge := processor.NewMergeJoinTransform(leftHeader, rightHeader, mj)
	sink := processor.NewResultSink(merge.Outputs()[0].Header(), false, false)
	connect(t, left.Output(0), merge.Input(0))
	connect(t, right.Output(0), merge.Input(1))
	connect(t, merge.Output(0), sink.Input(0))

	if err := execute(t, context.Background(), left, right, merge, sink); err != nil {
		t.Fatalf("execute: %v", err)
	}
	blocks := sink.ResultBlocks()
	if got := int64s(blocks, "id"); !equalInts(got, []int64{2, 2, 2, 2, 3, 5, 5}) {
		t.Fatalf("id = %v", got)
	}
	if got := int64s(blocks, "score"); !equalInts(got, []int64{1, 2, 1, 2, 3, 5, 6}) {
		t.Fatalf("score = %v", got)
	}
}
