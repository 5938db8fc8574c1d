// Package quicconn provides the QUIC variant of the network transport. A
// connection maps to one bidirectional control stream on a QUIC session,
// exposing the same Conn surface the TCP and inproc transports do.
package quicconn

import (
    "context"
    "errors"
    "net"
    "sync"
    "sync/atomic"
    "time"

    quicgo "github.com/quic-go/quic-go"

    "github.com/Dmdv/redfoxmq/pkg/transport"
)

const alpnProto = "redfoxmq"

// Dial opens a QUIC session to a network endpoint and its control stream.
// Certificate verification is skipped: peers are authenticated at the
// application layer, as with the other transports.
func Dial(ctx context.Context, ep transport.Endpoint, nt transport.NodeType, cfg transport.SocketConfig) (transport.Conn, error) {
    if ep.Kind != transport.KindQUIC {
        return nil, transport.ErrInvalidTransport
    }
    if err := ep.Validate(); err != nil {
        return nil, err
    }
    if cfg == (transport.SocketConfig{}) {
        cfg = transport.DefaultSocketConfig()
    }
    qc, err := quicgo.DialAddr(ctx, ep.Addr(), clientTLS(), &quicgo.Config{})
    if err != nil {
        return nil, err
    }
    st, err := qc.OpenStreamSync(ctx)
    if err != nil {
        _ = qc.CloseWithError(0, "")
        return nil, err
    }
    return newConn(qc, st, nt, cfg), nil
}

// conn adapts one QUIC stream to transport.Conn. Buffer sizes do not apply
// here: QUIC flow control replaces socket buffers.
type conn struct {
    qc  quicgo.Connection
    st  quicgo.Stream
    nt  transport.NodeType
    cfg transport.SocketConfig

    readOff   atomic.Bool
    closeOnce sync.Once
    doneOnce  sync.Once
    doneCh    chan struct{}
}

func newConn(qc quicgo.Connection, st quicgo.Stream, nt transport.NodeType, cfg transport.SocketConfig) *conn {
    c := &conn{qc: qc, st: st, nt: nt, cfg: cfg, doneCh: make(chan struct{})}
    // The session context ends when either side closes the session.
    go func() {
        <-qc.Context().Done()
        if !c.readOff.Load() {
            c.markDone()
        }
    }()
    return c
}

func (c *conn) Read(p []byte) (int, error) {
    if c.nt.UsesReceiveTimeout() && c.cfg.ReceiveTimeout > 0 {
        if err := c.st.SetReadDeadline(time.Now().Add(c.cfg.ReceiveTimeout)); err != nil {
            return 0, err
        }
    }
    n, err := c.st.Read(p)
    if err != nil && !isTimeout(err) && !c.readOff.Load() {
        c.markDone()
    }
    return n, err
}

func (c *conn) Write(p []byte) (int, error) {
    if c.cfg.SendTimeout > 0 {
        if err := c.st.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout)); err != nil {
            return 0, err
        }
    }
    n, err := c.st.Write(p)
    if err != nil && !isTimeout(err) {
        c.markDone()
    }
    return n, err
}

func (c *conn) CloseRead() error {
    c.readOff.Store(true)
    c.st.CancelRead(0)
    return nil
}

func (c *conn) Close() error {
    var err error
    c.closeOnce.Do(func() {
        err = c.qc.CloseWithError(0, "")
        c.markDone()
    })
    return err
}

func (c *conn) Done() <-chan struct{} { return c.doneCh }

func (c *conn) LocalAddr() net.Addr  { return c.qc.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.qc.RemoteAddr() }

func (c *conn) Config() transport.SocketConfig { return c.cfg }

func (c *conn) markDone() {
    c.doneOnce.Do(func() { close(c.doneCh) })
}

func isTimeout(err error) bool {
    var ne net.Error
    return errors.As(err, &ne) && ne.Timeout()
}
