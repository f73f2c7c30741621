package processor

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// AggregatingTransform implements hash-based GROUP BY aggregation over a
// single stream. With totals enabled it has a second output carrying one row
// aggregated over all input, with default values in the key columns; that
// row is pushed only after the main output has finished.
// Phase 0: accumulate, Phase 1: build result (Work), Phase 2: push main,
// Phase 3: push totals.
type AggregatingTransform struct {
	BaseProcessor
	keys       []string
	aggregates []AggregateFunc
	aggTypes   []types.DataType

	groups     map[string]*aggGroupState
	groupOrder []string
	totals     *aggGroupState

	pending      *Chunk
	resultChunk  *Chunk
	totalsChunk  *Chunk
	totalsPort   *OutputPort
	totalsPushed bool
	phase        int
}

type aggGroupState struct {
	keys   []types.Value
	accums []Accumulator
}

// AggregateHeader returns the output header of grouping in by keys.
func AggregateHeader(in types.Header, keys []string, aggregates []AggregateFunc) (types.Header, error) {
	out := make(types.Header, 0, len(keys)+len(aggregates))
	for _, k := range keys {
		idx, ok := in.Index(k)
		if !ok {
			return nil, errors.Newf("GROUP BY column %s not found in %s", k, in)
		}
		out = append(out, in[idx])
	}
	for _, agg := range aggregates {
		dt, err := agg.resultType(in)
		if err != nil {
			return nil, err
		}
		out = append(out, types.ColumnDef{Name: agg.Alias, Type: dt})
	}
	return out, nil
}

// NewAggregatingTransform creates an aggregation of in grouped by keys.
func NewAggregatingTransform(in types.Header, keys []string, aggregates []AggregateFunc, withTotals bool) (*AggregatingTransform, error) {
	out, err := AggregateHeader(in, keys, aggregates)
	if err != nil {
		return nil, err
	}
	outs := []types.Header{out}
	if withTotals {
		outs = append(outs, out)
	}
	a := &AggregatingTransform{
		BaseProcessor: NewBaseProcessor("AggregatingTransform", []types.Header{in}, outs),
		keys:          keys,
		aggregates:    aggregates,
		aggTypes:      out.Types()[len(keys):],
		groups:        make(map[string]*aggGroupState),
	}
	if withTotals {
		a.totalsPort = a.Output(1)
		a.totals = a.newGroup(nil)
	}
	return a, nil
}

// Totals returns the totals output, or nil.
func (a *AggregatingTransform) Totals() *OutputPort { return a.totalsPort }

func (a *AggregatingTransform) newGroup(keys []types.Value) *aggGroupState {
	accums := make([]Accumulator, len(a.aggregates))
	for j, agg := range a.aggregates {
		accums[j] = newAccumulator(agg.Name, a.aggTypes[j])
	}
	return &aggGroupState{keys: keys, accums: accums}
}

func (a *AggregatingTransform) Prepare() Status {
	if a.IsCancelled() {
		return a.FinishAll()
	}
	out := a.Output(0)
	inp := a.Input(0)

	switch a.phase {
	case 0: // Accumulate
		if out.IsFinished() {
			inp.Close()
			return a.FinishAll()
		}
		if a.pending != nil {
			return StatusReady
		}
		if c := inp.Pull(); c != nil {
			a.pending = c
			return StatusReady
		}
		if inp.IsFinished() {
			a.phase = 1
			return StatusReady
		}
		return StatusNeedData

	case 1: // Build result (Work)
		return StatusReady

	case 2: // Push main
		if out.IsFinished() {
			a.phase = 3
			return a.Prepare()
		}
		if !out.CanPush() {
			return StatusPortFull
		}
		if a.resultChunk != nil {
			out.Push(a.resultChunk)
			a.resultChunk = nil
			return StatusPortFull
		}
		out.Finish()
		a.phase = 3
		return a.Prepare()

	default: // Push totals
		return pushOnce(a.totalsPort, a.totalsChunk, &a.totalsPushed)
	}
}

func (a *AggregatingTransform) Work() error {
	if a.phase == 0 {
		c := a.pending
		a.pending = nil
		return a.consume(c.Block)
	}

	if len(a.keys) == 0 && len(a.groups) == 0 {
		// Aggregation without keys yields one row even for empty input.
		a.groups[""] = a.newGroup(nil)
		a.groupOrder = append(a.groupOrder, "")
	}
	header := a.Output(0).Header()
	a.resultChunk = NewChunk(a.buildBlock(header, a.groupOrder, a.groups))
	if a.totals != nil {
		a.totalsChunk = NewChunk(a.buildBlock(header, []string{""}, map[string]*aggGroupState{"": a.totals}))
	}
	a.groups = nil
	a.phase = 2
	return nil
}

func (a *AggregatingTransform) consume(block *column.Block) error {
	keyCols := make([]column.Column, len(a.keys))
	for i, k := range a.keys {
		col, ok := block.GetColumn(k)
		if !ok {
			return errors.Newf("GROUP BY column %s not found", k)
		}
		keyCols[i] = col
	}
	argCols := make([]column.Column, len(a.aggregates))
	for j, agg := range a.aggregates {
		if agg.Column == "" {
			continue
		}
		col, ok := block.GetColumn(agg.Column)
		if !ok {
			return errors.Newf("aggregate column %s not found", agg.Column)
		}
		argCols[j] = col
	}

	var sb strings.Builder
	for row := range block.NumRows() {
		sb.Reset()
		for i, col := range keyCols {
			if i > 0 {
				sb.WriteByte(0)
			}
			sb.WriteString(types.KeyString(col.DataType(), col.Value(row)))
		}
		key := sb.String()

		gs, ok := a.groups[key]
		if !ok {
			keys := make([]types.Value, len(keyCols))
			for i, col := range keyCols {
				keys[i] = col.Value(row)
			}
			gs = a.newGroup(keys)
			a.groups[key] = gs
			a.groupOrder = append(a.groupOrder, key)
		}
		a.add(gs, argCols, row)
		if a.totals != nil {
			a.add(a.totals, argCols, row)
		}
	}
	return nil
}

func (a *AggregatingTransform) add(gs *aggGroupState, argCols []column.Column, row int) {
	for j, col := range argCols {
		if col == nil {
			gs.accums[j].Add(nil)
			continue
		}
		gs.accums[j].Add(col.Value(row))
	}
}

func (a *AggregatingTransform) buildBlock(header types.Header, order []string, groups map[string]*aggGroupState) *column.Block {
	cols := make([]column.Column, len(header))
	for i, def := range header {
		cols[i] = column.NewColumnWithCapacity(def.Type, len(order))
	}
	for _, key := range order {
		gs := groups[key]
		for i := range a.keys {
			if gs.keys == nil {
				cols[i].Append(types.DefaultValue(header[i].Type))
				continue
			}
			cols[i].Append(gs.keys[i])
		}
		for j, acc := range gs.accums {
			cols[len(a.keys)+j].Append(acc.Result())
		}
	}
	return column.NewBlock(header.Names(), cols)
}
