package pipeline

import (
	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/join"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// JoinPipelinesRightLeft builds a build-then-probe join. The right pipeline
// is funnelled into one stream and drained into table; its totals, if any,
// become the table totals. Every left stream is probed by a JoiningTransform
// that pulls no left data until the table is built. Left extremes are
// dropped, left totals are joined once all main streams have finished.
//
// The returned builder is left, now owning every processor of right; right
// must not be used again.
func JoinPipelinesRightLeft(left, right *Builder, table join.Table, maxStreams int, keepLeftReadInOrder bool) (*Builder, error) {
	if err := left.checkOpen(); err != nil {
		return nil, err
	}
	if err := right.checkOpen(); err != nil {
		return nil, err
	}
	if table.Shape() != join.ShapeBuildThenProbe {
		return nil, errors.AssertionFailedf("join %s cannot be built right-left", table.Shape())
	}

	// Build side.
	if err := right.DropExtremes(); err != nil {
		return nil, err
	}
	if err := right.Resize(1); err != nil {
		return nil, err
	}
	filling := processor.NewFillingRightJoinSideTransform(right.header, table, right.HasTotals())
	if err := connect(right.streams[0], filling.Input(0)); err != nil {
		return nil, err
	}
	if right.HasTotals() {
		if err := connect(right.totals, filling.TotalsInput()); err != nil {
			return nil, err
		}
	}
	right.addProcessor(filling)

	// Probe side.
	if err := left.DropExtremes(); err != nil {
		return nil, err
	}
	if !keepLeftReadInOrder {
		if err := left.Resize(maxStreams); err != nil {
			return nil, err
		}
	}
	left.absorb(right)

	numProbes := len(left.streams)
	if left.HasTotals() {
		numProbes++
	}
	signal := processor.NewResizeProcessor(types.Header{}, 1, numProbes)
	if err := connect(filling.Output(0), signal.Input(0)); err != nil {
		return nil, err
	}
	left.addProcessor(signal)

	var counter *processor.FinishCounter
	if left.HasTotals() {
		counter = processor.NewFinishCounter(len(left.streams))
	}
	inHeader := left.header
	for i, port := range left.streams {
		jt := processor.NewJoiningTransform(inHeader, table, processor.JoiningOptions{Counter: counter, WaitForBuild: true})
		if err := connect(port, jt.Input(0)); err != nil {
			return nil, err
		}
		if err := connect(signal.Output(i), jt.SignalInput()); err != nil {
			return nil, err
		}
		left.addProcessor(jt)
		left.streams[i] = jt.Output(0)
	}
	if left.HasTotals() {
		jt := processor.NewJoiningTransform(inHeader, table,
			processor.JoiningOptions{Counter: counter, WaitForBuild: true, OnTotals: true})
		if err := connect(left.totals, jt.Input(0)); err != nil {
			return nil, err
		}
		if err := connect(signal.Output(numProbes-1), jt.SignalInput()); err != nil {
			return nil, err
		}
		left.addProcessor(jt)
		left.totals = jt.Output(0)
	}
	left.header = table.ResultHeader(inHeader)
	return left, nil
}

// JoinPipelinesYShaped builds a lockstep-merge join of two single-stream
// pipelines sorted on their join keys, then resizes the result to
// maxStreams. Totals and extremes of both sides are dropped.
//
// The returned builder is left, now owning every processor of right; right
// must not be used again.
func JoinPipelinesYShaped(left, right *Builder, j join.Sorting, maxStreams int) (*Builder, error) {
	if err := left.checkOpen(); err != nil {
		return nil, err
	}
	if err := right.checkOpen(); err != nil {
		return nil, err
	}
	if j.Shape() != join.ShapeLockstepMerge {
		return nil, errors.AssertionFailedf("join %s cannot be built Y-shaped", j.Shape())
	}
	if left.NumStreams() != 1 || right.NumStreams() != 1 {
		return nil, errors.AssertionFailedf("Y-shaped join needs single-stream inputs, got %d and %d",
			left.NumStreams(), right.NumStreams())
	}
	for _, b := range []*Builder{left, right} {
		if err := b.DropTotals(); err != nil {
			return nil, err
		}
		if err := b.DropExtremes(); err != nil {
			return nil, err
		}
	}

	merge := processor.NewMergeJoinTransform(left.header, right.header, j)
	if err := connect(left.streams[0], merge.Input(0)); err != nil {
		return nil, err
	}
	if err := connect(right.streams[0], merge.Input(1)); err != nil {
		return nil, err
	}
	left.absorb(right)
	left.addProcessor(merge)
	left.streams = []*processor.OutputPort{merge.Output(0)}
	left.header = merge.Output(0).Header()

	if err := left.Resize(maxStreams); err != nil {
		return nil, err
	}
	return left, nil
}
