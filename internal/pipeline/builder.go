// Package pipeline assembles processors into a runnable graph. A Builder
// tracks the open ends of a partially built pipeline: the main streams and
// the optional totals and extremes ports. Plan steps grow it one
// transformation at a time until Complete attaches the sink.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/column"
	"github.com/harshithgowdakt/granuleflow/internal/logging"
	"github.com/harshithgowdakt/granuleflow/internal/processor"
	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// StreamType tells a simple transform factory which channel it is wiring.
type StreamType int

const (
	StreamMain StreamType = iota
	StreamTotals
	StreamExtremes
)

func (s StreamType) String() string {
	switch s {
	case StreamTotals:
		return "totals"
	case StreamExtremes:
		return "extremes"
	default:
		return "main"
	}
}

// TransformFactory creates the 1:1 processor for one stream. Returning a nil
// processor leaves the stream unchanged.
type TransformFactory func(header types.Header, stream StreamType) (processor.Processor, error)

// Builder is a pipeline under construction.
type Builder struct {
	header     types.Header
	processors []processor.Processor
	streams    []*processor.OutputPort
	totals     *processor.OutputPort
	extremes   *processor.OutputPort

	collector *[]processor.Processor
	sink      *processor.ResultSink
	completed bool
	logger    *slog.Logger
}

// New creates an empty builder whose streams will carry header.
func New(header types.Header) *Builder {
	return &Builder{header: header, logger: logging.WithComponent("pipeline")}
}

// FromChunksSource starts a single-stream pipeline replaying src, including
// its totals and extremes outputs.
func FromChunksSource(src *processor.ChunksSource) *Builder {
	b := New(src.Output(0).Header())
	b.addProcessor(src)
	b.streams = []*processor.OutputPort{src.Output(0)}
	b.totals = src.Totals()
	b.extremes = src.Extremes()
	return b
}

// Header is the schema of every open port.
func (b *Builder) Header() types.Header { return b.header }

// NumStreams returns the number of main streams.
func (b *Builder) NumStreams() int { return len(b.streams) }

func (b *Builder) HasTotals() bool   { return b.totals != nil }
func (b *Builder) HasExtremes() bool { return b.extremes != nil }

// Processors returns every processor added so far.
func (b *Builder) Processors() []processor.Processor { return b.processors }

// WithLogger replaces the logger used by Execute.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Collect additionally records every processor added from now on into dst,
// until the returned function is called.
func (b *Builder) Collect(dst *[]processor.Processor) (stop func()) {
	prev := b.collector
	b.collector = dst
	return func() { b.collector = prev }
}

func (b *Builder) addProcessor(p processor.Processor) {
	b.processors = append(b.processors, p)
	if b.collector != nil {
		*b.collector = append(*b.collector, p)
	}
}

func (b *Builder) checkOpen() error {
	if b.completed {
		return errors.AssertionFailedf("pipeline is already completed")
	}
	return nil
}

func connect(out *processor.OutputPort, in *processor.InputPort) error {
	return errors.Wrap(processor.Connect(out, in), "connecting pipeline ports")
}

// AddSource adds a source whose first output becomes a new main stream.
func (b *Builder) AddSource(src processor.Processor) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	outs := src.Outputs()
	if len(outs) == 0 {
		return errors.AssertionFailedf("source %s has no outputs", src.Name())
	}
	if h := outs[0].Header(); !h.Equal(b.header) {
		return errors.AssertionFailedf("source %s header %s does not match pipeline header %s", src.Name(), h, b.header)
	}
	b.addProcessor(src)
	b.streams = append(b.streams, outs[0])
	return nil
}

// AddTotalsPort installs a totals port produced by an already added
// processor.
func (b *Builder) AddTotalsPort(port *processor.OutputPort) error {
	if b.totals != nil {
		return errors.AssertionFailedf("pipeline already has totals")
	}
	if h := port.Header(); !h.Equal(b.header) {
		return errors.AssertionFailedf("totals header %s does not match pipeline header %s", h, b.header)
	}
	b.totals = port
	return nil
}

// AddSimpleTransform applies a 1:1 processor to every main stream and to
// the totals and extremes ports. All created processors must agree on the
// output header, and streams left unchanged must already have it.
func (b *Builder) AddSimpleTransform(factory TransformFactory) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	var newHeader types.Header
	haveHeader := false

	apply := func(port *processor.OutputPort, stream StreamType) (*processor.OutputPort, error) {
		p, err := factory(b.header, stream)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return port, nil
		}
		if len(p.Inputs()) != 1 || len(p.Outputs()) != 1 {
			return nil, errors.AssertionFailedf("%s is not a simple transform: %d inputs, %d outputs",
				p.Name(), len(p.Inputs()), len(p.Outputs()))
		}
		if err := connect(port, p.Inputs()[0]); err != nil {
			return nil, err
		}
		b.addProcessor(p)
		out := p.Outputs()[0]
		if !haveHeader {
			newHeader, haveHeader = out.Header(), true
		} else if h := out.Header(); !h.Equal(newHeader) {
			return nil, errors.AssertionFailedf("%s produces %s, expected %s", p.Name(), h, newHeader)
		}
		return out, nil
	}

	for i, port := range b.streams {
		out, err := apply(port, StreamMain)
		if err != nil {
			return err
		}
		b.streams[i] = out
	}
	if b.totals != nil {
		out, err := apply(b.totals, StreamTotals)
		if err != nil {
			return err
		}
		b.totals = out
	}
	if b.extremes != nil {
		out, err := apply(b.extremes, StreamExtremes)
		if err != nil {
			return err
		}
		b.extremes = out
	}

	if !haveHeader {
		return nil
	}
	for _, port := range b.openPorts() {
		if h := port.Header(); !h.Equal(newHeader) {
			return errors.AssertionFailedf("stream left unchanged with header %s, pipeline header is now %s", h, newHeader)
		}
	}
	b.header = newHeader
	return nil
}

func (b *Builder) openPorts() []*processor.OutputPort {
	ports := append([]*processor.OutputPort(nil), b.streams...)
	if b.totals != nil {
		ports = append(ports, b.totals)
	}
	if b.extremes != nil {
		ports = append(ports, b.extremes)
	}
	return ports
}

// AddTransform connects every main stream, in order, to the inputs of p.
// All outputs of p become the new main streams.
func (b *Builder) AddTransform(p processor.Processor) error {
	return b.addTransform(p, nil)
}

// AddTransformWithTotals is AddTransform for a processor that also produces
// totals on the given output. The pipeline must not have totals yet.
func (b *Builder) AddTransformWithTotals(p processor.Processor, totals *processor.OutputPort) error {
	if b.totals != nil {
		return errors.AssertionFailedf("pipeline already has totals")
	}
	return b.addTransform(p, totals)
}

func (b *Builder) addTransform(p processor.Processor, totals *processor.OutputPort) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	ins := p.Inputs()
	if len(ins) != len(b.streams) {
		return errors.AssertionFailedf("%s has %d inputs, pipeline has %d streams", p.Name(), len(ins), len(b.streams))
	}
	for i, port := range b.streams {
		if err := connect(port, ins[i]); err != nil {
			return err
		}
	}
	b.addProcessor(p)

	var streams []*processor.OutputPort
	for _, out := range p.Outputs() {
		if out != totals {
			streams = append(streams, out)
		}
	}
	if len(streams) == 0 {
		return errors.AssertionFailedf("%s has no main outputs", p.Name())
	}
	b.streams = streams
	b.header = streams[0].Header()
	if totals != nil {
		b.totals = totals
	}
	for _, port := range b.openPorts() {
		if h := port.Header(); !h.Equal(b.header) {
			return errors.AssertionFailedf("%s leaves a port with header %s, pipeline header is %s", p.Name(), h, b.header)
		}
	}
	return nil
}

// Resize changes the number of main streams to n. It is a no-op when the
// count already matches.
func (b *Builder) Resize(n int) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if n < 1 {
		return errors.AssertionFailedf("cannot resize to %d streams", n)
	}
	if len(b.streams) == n {
		return nil
	}
	if len(b.streams) == 0 {
		return errors.AssertionFailedf("cannot resize a pipeline without streams")
	}
	return b.AddTransform(processor.NewResizeProcessor(b.header, len(b.streams), n))
}

// AddDefaultTotals gives the pipeline a totals port carrying one row of
// default values.
func (b *Builder) AddDefaultTotals() error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.totals != nil {
		return errors.AssertionFailedf("pipeline already has totals")
	}
	src := processor.NewSourceFromSingleChunk(b.header, processor.NewChunk(column.NewDefaultBlock(b.header, 1)))
	b.addProcessor(src)
	b.totals = src.Output(0)
	return nil
}

// AddExtremes computes extremes over the main streams, which are resized to
// one. It is a no-op if the pipeline already has extremes.
func (b *Builder) AddExtremes() error {
	if b.extremes != nil {
		return nil
	}
	if err := b.Resize(1); err != nil {
		return err
	}
	t := processor.NewExtremesTransform(b.header)
	if err := connect(b.streams[0], t.Input(0)); err != nil {
		return err
	}
	b.addProcessor(t)
	b.streams[0] = t.Output(0)
	b.extremes = t.Extremes()
	return nil
}

// DropTotals discards the totals port, if any.
func (b *Builder) DropTotals() error {
	if b.totals == nil {
		return nil
	}
	err := b.drop(b.totals)
	b.totals = nil
	return err
}

// DropExtremes discards the extremes port, if any.
func (b *Builder) DropExtremes() error {
	if b.extremes == nil {
		return nil
	}
	err := b.drop(b.extremes)
	b.extremes = nil
	return err
}

func (b *Builder) drop(port *processor.OutputPort) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	sink := processor.NewNullSink(port.Header())
	if err := connect(port, sink.Input(0)); err != nil {
		return err
	}
	b.addProcessor(sink)
	return nil
}

// StreamIntoQueryCache inserts write-through transforms in front of the
// consumer. Main is resized to one stream first so the writer sees exactly
// the order the consumer receives.
func (b *Builder) StreamIntoQueryCache(w processor.CacheWriter) error {
	if err := b.Resize(1); err != nil {
		return err
	}
	return b.AddSimpleTransform(func(h types.Header, stream StreamType) (processor.Processor, error) {
		ch := processor.ChannelMain
		switch stream {
		case StreamTotals:
			ch = processor.ChannelTotals
		case StreamExtremes:
			ch = processor.ChannelExtremes
		}
		return processor.NewCacheWriteTransform(h, w, ch), nil
	})
}

// absorb takes over every processor of other, which must not be used again.
// They are not reported to b's collector.
func (b *Builder) absorb(other *Builder) {
	b.processors = append(b.processors, other.processors...)
	other.processors = nil
	other.streams = nil
	other.totals = nil
	other.extremes = nil
	other.completed = true
}

// Complete resizes main to one stream and attaches the result sink. No
// further transforms can be added afterwards.
func (b *Builder) Complete() (*processor.ResultSink, error) {
	if err := b.Resize(1); err != nil {
		return nil, err
	}
	sink := processor.NewResultSink(b.header, b.totals != nil, b.extremes != nil)
	if err := connect(b.streams[0], sink.Input(0)); err != nil {
		return nil, err
	}
	if b.totals != nil {
		if err := connect(b.totals, sink.TotalsInput()); err != nil {
			return nil, err
		}
	}
	if b.extremes != nil {
		if err := connect(b.extremes, sink.ExtremesInput()); err != nil {
			return nil, err
		}
	}
	b.addProcessor(sink)
	b.sink = sink
	b.completed = true
	return sink, nil
}

// Result is the materialized output of a completed pipeline.
type Result struct {
	Header   types.Header
	Blocks   []*column.Block
	Totals   *column.Block
	Extremes *column.Block
}

// NumRows returns the number of main rows.
func (r *Result) NumRows() int {
	n := 0
	for _, b := range r.Blocks {
		n += b.NumRows()
	}
	return n
}

// Execute completes the pipeline if needed and runs it with numThreads
// workers.
func (b *Builder) Execute(ctx context.Context, numThreads int) (*Result, error) {
	if b.sink == nil {
		if _, err := b.Complete(); err != nil {
			return nil, err
		}
	}
	g, err := processor.NewExecutingGraph(b.processors)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("executing pipeline", "processors", len(b.processors), "threads", numThreads)
	if err := processor.NewPipelineExecutor(g, numThreads).WithLogger(b.logger).Execute(ctx); err != nil {
		return nil, err
	}

	res := &Result{Header: b.header, Blocks: b.sink.ResultBlocks()}
	if b.sink.Totals != nil {
		res.Totals = b.sink.Totals.Block
	}
	if b.sink.Extremes != nil {
		res.Extremes = b.sink.Extremes.Block
	}
	return res, nil
}

// Describe lists the processors in the order they were added, collapsing
// runs of the same processor into one line with a count.
func (b *Builder) Describe() string {
	return DescribeProcessors(b.processors)
}

// DescribeProcessors renders procs one per line, collapsing adjacent
// processors of the same name as "Name × n".
func DescribeProcessors(procs []processor.Processor) string {
	var sb strings.Builder
	for i := 0; i < len(procs); {
		j := i + 1
		for j < len(procs) && procs[j].Name() == procs[i].Name() {
			j++
		}
		sb.WriteString(procs[i].Name())
		if n := j - i; n > 1 {
			sb.WriteString(" × ")
			sb.WriteString(strconv.Itoa(n))
		}
		sb.WriteByte('\n')
		i = j
	}
	return sb.String()
}
