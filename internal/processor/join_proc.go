package processor

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// FinishCounter is shared by the parallel probe streams of one join. Done is
// closed once every stream has reported finishing.
type FinishCounter struct {
	total    int64
	finished atomic.Int64
	done     chan struct{}
	once     sync.Once
}

// NewFinishCounter creates a counter for n streams.
func NewFinishCounter(n int) *FinishCounter {
	c := &FinishCounter{total: int64(n), done: make(chan struct{})}
	if n <= 0 {
		c.once.Do(func() { close(c.done) })
	}
	return c
}

// Finish records one finished stream.
func (c *FinishCounter) Finish() {
	if c.finished.Add(1) >= c.total {
		c.once.Do(func() { close(c.done) })
	}
}

// IsDone reports whether every stream has finished.
func (c *FinishCounter) IsDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed when every stream has finished.
func (c *FinishCounter) Done() <-chan struct{} { return c.done }

// JoiningTransform probes a filled join table with the chunks of one left
// stream. When the table is built by the same pipeline, the transform has a
// second input carrying no data: the build signal. No left chunk is pulled
// before the signal port has finished.
//
// In totals mode the transform waits for the finish counter, reads the single
// totals chunk of its stream and emits it joined with the table totals.
type JoiningTransform struct {
	BaseProcessor
	table   join.Table
	counter *FinishCounter

	onTotals      bool
	defaultTotals bool
	signal        *InputPort

	inputChunk  *Chunk
	outputChunk *Chunk
	totalsRead  bool
	counted     bool
}

var _ AsyncProcessor = (*JoiningTransform)(nil)

// JoiningOptions configure a JoiningTransform.
type JoiningOptions struct {
	// Counter is shared by all probe streams; main streams report to it and
	// the totals stream waits on it.
	Counter *FinishCounter
	// WaitForBuild adds the build signal input.
	WaitForBuild bool
	// OnTotals selects totals mode.
	OnTotals bool
	// DefaultTotals marks a totals stream synthesized for the table totals.
	DefaultTotals bool
}

// NewJoiningTransform creates a probe over table for a stream with header in.
func NewJoiningTransform(in types.Header, table join.Table, opts JoiningOptions) *JoiningTransform {
	ins := []types.Header{in}
	if opts.WaitForBuild {
		ins = append(ins, types.Header{})
	}
	name := "JoiningTransform"
	if opts.OnTotals {
		name = "JoiningTransform(totals)"
	}
	t := &JoiningTransform{
		BaseProcessor: NewBaseProcessor(name, ins, []types.Header{table.ResultHeader(in)}),
		table:         table,
		counter:       opts.Counter,
		onTotals:      opts.OnTotals,
		defaultTotals: opts.DefaultTotals,
	}
	if opts.WaitForBuild {
		t.signal = t.Input(1)
	}
	return t
}

// SignalInput returns the build signal input, or nil.
func (t *JoiningTransform) SignalInput() *InputPort { return t.signal }

// Schedule is closed when the totals stream may proceed.
func (t *JoiningTransform) Schedule() <-chan struct{} {
	if t.counter == nil {
		return NewFinishCounter(0).Done()
	}
	return t.counter.Done()
}

func (t *JoiningTransform) Prepare() Status {
	if t.IsCancelled() {
		return t.finish(t.FinishAll())
	}

	out := t.Output(0)
	inp := t.Input(0)

	if out.IsFinished() {
		inp.Close()
		if t.signal != nil {
			t.signal.Close()
		}
		return t.finish(StatusFinished)
	}

	if t.signal != nil && !t.signal.IsFinished() {
		// The signal carries no data; anything pushed is discarded.
		t.signal.Pull()
		return StatusNeedData
	}

	if t.onTotals {
		return t.prepareTotals()
	}

	if !out.CanPush() {
		return StatusPortFull
	}
	if t.outputChunk != nil {
		out.Push(t.outputChunk)
		t.outputChunk = nil
	}

	if t.inputChunk != nil {
		return StatusReady
	}
	if inp.IsFinished() {
		out.Finish()
		return t.finish(StatusFinished)
	}
	if !inp.HasData() {
		return StatusNeedData
	}
	t.inputChunk = inp.Pull()
	return StatusReady
}

func (t *JoiningTransform) prepareTotals() Status {
	out := t.Output(0)
	inp := t.Input(0)

	if t.counter != nil && !t.counter.IsDone() {
		return StatusAsync
	}
	if !out.CanPush() {
		return StatusPortFull
	}
	if t.outputChunk != nil {
		out.Push(t.outputChunk)
		t.outputChunk = nil
		inp.Close()
		out.Finish()
		return StatusFinished
	}
	if t.totalsRead {
		out.Finish()
		return StatusFinished
	}
	if c := inp.Pull(); c != nil {
		t.inputChunk = c
		return StatusReady
	}
	if inp.IsFinished() {
		t.inputChunk = NewChunk(column.NewDefaultBlock(inp.Header(), 1))
		return StatusReady
	}
	return StatusNeedData
}

// finish reports a main stream to the counter exactly once.
func (t *JoiningTransform) finish(s Status) Status {
	if !t.onTotals && t.counter != nil && !t.counted {
		t.counted = true
		t.counter.Finish()
	}
	return s
}

func (t *JoiningTransform) Work() error {
	c := t.inputChunk
	t.inputChunk = nil

	if t.onTotals {
		t.totalsRead = true
		left := c.Block
		if t.defaultTotals {
			left = column.NewDefaultBlock(t.Input(0).Header(), 1)
		}
		res, err := t.table.JoinTotals(left)
		if err != nil {
			return err
		}
		t.outputChunk = NewChunk(res)
		return nil
	}

	res, err := t.table.JoinBlock(c.Block)
	if err != nil {
		return err
	}
	if res.NumRows() > 0 {
		t.outputChunk = NewChunk(res)
	}
	return nil
}

// FillingRightJoinSideTransform drains the right side of a join into the
// table. Its only output is the build signal: it carries no data and
// finishes once the table is built.
type FillingRightJoinSideTransform struct {
	BaseProcessor
	table join.Table

	totalsPort *InputPort

	inputChunk  *Chunk
	totalsChunk *Chunk
	dataDone    bool
	totalsDone  bool
	built       bool
}

// NewFillingRightJoinSideTransform creates the build side. withTotals adds an
// input for the right side totals, which become the table totals.
func NewFillingRightJoinSideTransform(right types.Header, table join.Table, withTotals bool) *FillingRightJoinSideTransform {
	ins := []types.Header{right}
	if withTotals {
		ins = append(ins, right)
	}
	f := &FillingRightJoinSideTransform{
		BaseProcessor: NewBaseProcessor("FillingRightJoinSide", ins, []types.Header{{}}),
		table:         table,
		totalsDone:    !withTotals,
	}
	if withTotals {
		f.totalsPort = f.Input(1)
	}
	return f
}

// TotalsInput returns the right totals input, or nil.
func (f *FillingRightJoinSideTransform) TotalsInput() *InputPort { return f.totalsPort }

func (f *FillingRightJoinSideTransform) Prepare() Status {
	if f.IsCancelled() {
		return f.FinishAll()
	}

	if f.built {
		f.Output(0).Finish()
		return StatusFinished
	}
	// Every joiner has gone away; the table would never be read.
	if f.Output(0).IsFinished() {
		return f.FinishAll()
	}
	if f.inputChunk != nil || f.totalsChunk != nil {
		return StatusReady
	}

	if !f.dataDone {
		inp := f.Input(0)
		if c := inp.Pull(); c != nil {
			f.inputChunk = c
			return StatusReady
		}
		if !inp.IsFinished() {
			return StatusNeedData
		}
		f.dataDone = true
	}
	if !f.totalsDone {
		if c := f.totalsPort.Pull(); c != nil {
			f.totalsChunk = c
			return StatusReady
		}
		if !f.totalsPort.IsFinished() {
			return StatusNeedData
		}
		f.totalsDone = true
	}
	return StatusReady
}

func (f *FillingRightJoinSideTransform) Work() error {
	switch {
	case f.inputChunk != nil:
		c := f.inputChunk
		f.inputChunk = nil
		return f.table.AddBlock(c.Block)
	case f.totalsChunk != nil:
		c := f.totalsChunk
		f.totalsChunk = nil
		return f.table.SetTotals(c.Block)
	default:
		f.built = true
		return f.table.FinishBuild()
	}
}

// MergeJoinTransform joins two key-sorted streams in lockstep. Rows are
// joined once no further input can extend their key group: both sides are
// cut at the smallest last key among the sides still open, and the sides
// whose last key equals that bound are asked for more data.
type MergeJoinTransform struct {
	BaseProcessor
	join join.Sorting

	headers [2]types.Header
	pending [2]*Chunk
	buffers [2]*column.Block
	done    [2]bool
	need    [2]bool
	changed bool

	outputChunk *Chunk
}

// NewMergeJoinTransform creates a merge over the left and right headers.
func NewMergeJoinTransform(left, right types.Header, j join.Sorting) *MergeJoinTransform {
	return &MergeJoinTransform{
		BaseProcessor: NewBaseProcessor("MergeJoinTransform",
			[]types.Header{left, right}, []types.Header{j.ResultHeader(left)}),
		join:    j,
		headers: [2]types.Header{left, right},
		buffers: [2]*column.Block{column.NewEmptyBlock(left), column.NewEmptyBlock(right)},
		need:    [2]bool{true, true},
	}
}

func (m *MergeJoinTransform) Prepare() Status {
	if m.IsCancelled() {
		return m.FinishAll()
	}
	out := m.Output(0)
	if out.IsFinished() {
		m.closeInputs()
		return StatusFinished
	}
	if !out.CanPush() {
		return StatusPortFull
	}
	if m.outputChunk != nil {
		out.Push(m.outputChunk)
		m.outputChunk = nil
	}

	for s := range m.pending {
		if m.pending[s] != nil || m.done[s] || !m.need[s] {
			continue
		}
		inp := m.Input(s)
		if c := inp.Pull(); c != nil {
			m.pending[s] = c
			m.changed = true
		} else if inp.IsFinished() {
			m.done[s] = true
			m.changed = true
		}
	}

	if m.exhausted() {
		m.closeInputs()
		out.Finish()
		return StatusFinished
	}
	if m.changed {
		return StatusReady
	}
	return StatusNeedData
}

// exhausted reports that no further output is possible.
func (m *MergeJoinTransform) exhausted() bool {
	leftEmpty := m.done[join.SideLeft] && m.pending[join.SideLeft] == nil && m.buffers[join.SideLeft].NumRows() == 0
	rightEmpty := m.done[join.SideRight] && m.pending[join.SideRight] == nil && m.buffers[join.SideRight].NumRows() == 0
	if leftEmpty {
		return true
	}
	return rightEmpty && m.join.Kind() == join.KindInner
}

func (m *MergeJoinTransform) closeInputs() {
	for _, in := range m.Inputs() {
		in.Close()
	}
}

func (m *MergeJoinTransform) Work() error {
	m.changed = false
	for s, c := range m.pending {
		if c == nil {
			continue
		}
		m.pending[s] = nil
		if err := m.buffers[s].AppendBlock(c.Block); err != nil {
			return err
		}
	}

	var keys [2][]int
	for s := range keys {
		idx, err := m.buffers[s].KeyIndices(m.join.KeyNames(join.Side(s)))
		if err != nil {
			return errors.WithAssertionFailure(err)
		}
		keys[s] = idx
	}

	// An open side with nothing buffered blocks any progress.
	waiting := false
	for s := range m.buffers {
		m.need[s] = !m.done[s] && m.buffers[s].NumRows() == 0
		waiting = waiting || m.need[s]
	}
	if waiting {
		return nil
	}

	// Pick the bound: the smallest last key among the open sides.
	bound := -1
	for s := range m.buffers {
		if m.done[s] {
			continue
		}
		n := m.buffers[s].NumRows()
		if bound < 0 || column.CompareRows(m.buffers[s], n-1, keys[s], m.buffers[bound], m.buffers[bound].NumRows()-1, keys[bound]) < 0 {
			bound = s
		}
	}

	var cut [2]int
	if bound < 0 {
		cut = [2]int{m.buffers[0].NumRows(), m.buffers[1].NumRows()}
	} else {
		bb, br := m.buffers[bound], m.buffers[bound].NumRows()-1
		for s := range m.buffers {
			b := m.buffers[s]
			cut[s] = sort.Search(b.NumRows(), func(i int) bool {
				return column.CompareRows(b, i, keys[s], bb, br, keys[bound]) >= 0
			})
			m.need[s] = !m.done[s] && column.CompareRows(b, b.NumRows()-1, keys[s], bb, br, keys[bound]) == 0
		}
	}

	res, err := m.join.MergeBlocks(m.buffers[0].SliceRows(0, cut[0]), m.buffers[1].SliceRows(0, cut[1]))
	if err != nil {
		return err
	}
	for s := range m.buffers {
		m.buffers[s] = m.buffers[s].SliceRows(cut[s], m.buffers[s].NumRows())
	}
	if res.NumRows() > 0 {
		m.outputChunk = NewChunk(res)
	}
	return nil
}
