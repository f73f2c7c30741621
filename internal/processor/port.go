package processor

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/harshithgowdakt/granuleflow/internal/types"
)

// Port flags. finished is set at most once and never cleared; a chunk pushed
// before the producer finished stays pullable.
const (
	portHasData uint32 = 1 << iota
	portFinished
)

// portData is shared between a connected OutputPort and InputPort.
//
// The chunk field is written by the producer only while hasData is clear and
// read by the consumer only while it is set, so the atomic flag orders every
// access. pushVer and pullVer count changes made by each side; the executor
// compares them against its snapshots to wake only the peer that has
// something new to look at.
type portData struct {
	state     atomic.Uint32
	pushVer   atomic.Uint64
	pullVer   atomic.Uint64
	chunk     *Chunk
	connected bool
}

// OutputPort is the output side of a processor.
type OutputPort struct {
	data   *portData
	header types.Header
}

// NewOutputPort creates a disconnected output port carrying header.
func NewOutputPort(header types.Header) *OutputPort {
	return &OutputPort{data: &portData{}, header: header}
}

func (p *OutputPort) Header() types.Header { return p.header }

// IsConnected reports whether Connect has been called on the port.
func (p *OutputPort) IsConnected() bool { return p.data.connected }

// CanPush reports whether the slot is free and the consumer still wants data.
func (p *OutputPort) CanPush() bool {
	return p.data.state.Load()&(portHasData|portFinished) == 0
}

// Push places a chunk into the port. It returns false, dropping the chunk, if
// the port is finished. Pushing into a full port or pushing a chunk whose
// header differs from the port header is a programming error and panics; the
// executor turns the panic into a pipeline error.
func (p *OutputPort) Push(c *Chunk) bool {
	s := p.data.state.Load()
	if s&portFinished != 0 {
		return false
	}
	if s&portHasData != 0 {
		panic(errors.AssertionFailedf("push into a full port"))
	}
	if h := c.Header(); !h.Equal(p.header) {
		panic(errors.AssertionFailedf("pushed chunk header %s does not match port header %s", h, p.header))
	}
	p.data.chunk = c
	p.data.state.Or(portHasData)
	p.data.pushVer.Add(1)
	return true
}

// Finish signals that this output will never produce more data.
func (p *OutputPort) Finish() {
	if p.data.state.Or(portFinished)&portFinished == 0 {
		p.data.pushVer.Add(1)
	}
}

// IsFinished reports whether the port was finished by either side.
func (p *OutputPort) IsFinished() bool {
	return p.data.state.Load()&portFinished != 0
}

// HasData reports whether a pushed chunk is still waiting to be pulled.
func (p *OutputPort) HasData() bool {
	return p.data.state.Load()&portHasData != 0
}

// InputPort is the input side of a processor.
type InputPort struct {
	data   *portData
	header types.Header
}

// NewInputPort creates a disconnected input port accepting header.
func NewInputPort(header types.Header) *InputPort {
	return &InputPort{data: &portData{}, header: header}
}

func (p *InputPort) Header() types.Header { return p.header }

func (p *InputPort) IsConnected() bool { return p.data.connected }

// Pull extracts the chunk from the port, or returns nil if there is none.
func (p *InputPort) Pull() *Chunk {
	if p.data.state.Load()&portHasData == 0 {
		return nil
	}
	c := p.data.chunk
	p.data.chunk = nil
	p.data.state.And(^portHasData)
	p.data.pullVer.Add(1)
	return c
}

// HasData returns true if a chunk is available for pulling.
func (p *InputPort) HasData() bool {
	return p.data.state.Load()&portHasData != 0
}

// IsFinished returns true once the upstream finished and every chunk it
// pushed has been pulled.
func (p *InputPort) IsFinished() bool {
	s := p.data.state.Load()
	return s&portFinished != 0 && s&portHasData == 0
}

// Close tells the producer no more data is wanted (early cancellation, e.g.
// when a limit has enough rows). A pending chunk is abandoned.
func (p *InputPort) Close() {
	if p.data.state.Or(portFinished)&portFinished == 0 {
		p.data.pullVer.Add(1)
	}
}

// Connect links an OutputPort to an InputPort by sharing one portData. The
// two headers must be equal.
func Connect(output *OutputPort, input *InputPort) error {
	if output.data.connected || input.data.connected {
		return errors.AssertionFailedf("port already connected")
	}
	if !output.header.Equal(input.header) {
		return errors.AssertionFailedf("cannot connect output %s to input %s: headers differ",
			output.header, input.header)
	}
	shared := &portData{connected: true}
	output.data = shared
	input.data = shared
	return nil
}
