package processor

import (
	"github.com/cockroachdb/errors"
)

// Edge represents a connection from one processor's output to another's input.
type Edge struct {
	OutputProcessor int
	OutputPortIdx   int
	InputProcessor  int
	InputPortIdx    int
}

// ExecutingGraph holds the compiled processor DAG. Edges are recovered from
// the port connections, so processors only need to be connected before the
// graph is built.
type ExecutingGraph struct {
	Processors []Processor
	Edges      []Edge

	// upstreamOf[p][i] is the producer feeding input i of p.
	upstreamOf [][]int
	// downstreamOf[p][o] is the consumer reading output o of p.
	downstreamOf [][]int
}

// NewExecutingGraph builds the graph from connected processors. Every port of
// every processor must be connected to a port of another listed processor.
func NewExecutingGraph(procs []Processor) (*ExecutingGraph, error) {
	type portRef struct{ proc, idx int }
	producers := make(map[*portData]portRef)
	for p, proc := range procs {
		for o, out := range proc.Outputs() {
			if !out.IsConnected() {
				return nil, errors.AssertionFailedf("output %d of %s is not connected", o, proc.Name())
			}
			producers[out.data] = portRef{p, o}
		}
	}

	g := &ExecutingGraph{
		Processors:   procs,
		upstreamOf:   make([][]int, len(procs)),
		downstreamOf: make([][]int, len(procs)),
	}
	for p, proc := range procs {
		g.downstreamOf[p] = make([]int, len(proc.Outputs()))
		for o := range g.downstreamOf[p] {
			g.downstreamOf[p][o] = -1
		}
	}
	for p, proc := range procs {
		g.upstreamOf[p] = make([]int, len(proc.Inputs()))
		for i, in := range proc.Inputs() {
			ref, ok := producers[in.data]
			if !ok {
				return nil, errors.AssertionFailedf("input %d of %s is not connected to a processor in the graph", i, proc.Name())
			}
			g.upstreamOf[p][i] = ref.proc
			g.downstreamOf[ref.proc][ref.idx] = p
			g.Edges = append(g.Edges, Edge{
				OutputProcessor: ref.proc,
				OutputPortIdx:   ref.idx,
				InputProcessor:  p,
				InputPortIdx:    i,
			})
		}
	}
	for p, outs := range g.downstreamOf {
		for o, c := range outs {
			if c < 0 {
				return nil, errors.AssertionFailedf("output %d of %s is not consumed by a processor in the graph", o, procs[p].Name())
			}
		}
	}
	return g, nil
}
