package inproc

import (
    "io"
    "net"
    "sync"
    "sync/atomic"

    "github.com/Dmdv/redfoxmq/pkg/transport"
)

// Conn is one end of an in-process connection pair. Each end reads from an
// unbounded byte queue fed by the other end's writes, so the pair behaves
// like a loss-free ordered duplex stream without touching the OS.
type Conn struct {
    r *pipeBuf // fed by the peer's writes
    w *pipeBuf // feeds the peer's reads

    laddr net.Addr
    raddr net.Addr

    readOff   atomic.Bool
    closeOnce sync.Once
    doneOnce  sync.Once
    doneCh    chan struct{}
}

// NewPair builds both ends of an in-process connection for the named
// endpoint. The first return is the accepter-facing end.
func NewPair(name string) (*Conn, *Conn) {
    a2c := newPipeBuf()
    c2a := newPipeBuf()
    accepter := &Conn{
        r: c2a, w: a2c,
        laddr: addr(name + "#accepter"), raddr: addr(name + "#connector"),
        doneCh: make(chan struct{}),
    }
    connector := &Conn{
        r: a2c, w: c2a,
        laddr: addr(name + "#connector"), raddr: addr(name + "#accepter"),
        doneCh: make(chan struct{}),
    }
    return accepter, connector
}

func (c *Conn) Read(p []byte) (int, error) {
    n, err := c.r.Read(p)
    if err != nil && !c.readOff.Load() {
        // Peer hung up (or this end was fully closed): one-shot disconnect.
        c.markDone()
    }
    return n, err
}

func (c *Conn) Write(p []byte) (int, error) {
    n, err := c.w.Write(p)
    if err != nil {
        c.markDone()
    }
    return n, err
}

// CloseRead unblocks a pending Read without hanging up the peer; used by
// the receive loop for cancellation.
func (c *Conn) CloseRead() error {
    c.readOff.Store(true)
    c.r.closeRead()
    return nil
}

// Close hangs up both directions. The peer drains buffered bytes and then
// sees EOF. Idempotent.
func (c *Conn) Close() error {
    c.closeOnce.Do(func() {
        c.w.closeWrite() // peer reads drain, then EOF
        c.r.closeRead()  // peer writes fail fast
        c.markDone()
    })
    return nil
}

func (c *Conn) Done() <-chan struct{} { return c.doneCh }

func (c *Conn) LocalAddr() net.Addr  { return c.laddr }
func (c *Conn) RemoteAddr() net.Addr { return c.raddr }

// Config reports zero tuning: in-process streams have no socket to tune.
func (c *Conn) Config() transport.SocketConfig { return transport.SocketConfig{} }

func (c *Conn) markDone() {
    c.doneOnce.Do(func() { close(c.doneCh) })
}

type addr string

func (a addr) Network() string { return "inproc" }
func (a addr) String() string  { return string(a) }

var _ transport.Conn = (*Conn)(nil)
var _ io.ReadWriteCloser = (*Conn)(nil)
