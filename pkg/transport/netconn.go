package transport

import (
    "context"
    "errors"
    "io"
    "net"
    "sync"
    "sync/atomic"
    "time"
)

// netConn wraps an accepted or dialed TCP connection with the tuning the
// socket configuration asks for. Send coalescing is disabled on creation;
// deadlines are armed per call so an idle connection carries no timer.
type netConn struct {
    c   *net.TCPConn
    nt  NodeType
    cfg SocketConfig

    readOff   atomic.Bool
    closeOnce sync.Once
    doneOnce  sync.Once
    doneCh    chan struct{}
}

func newNetConn(c *net.TCPConn, nt NodeType, cfg SocketConfig) (*netConn, error) {
    if err := c.SetNoDelay(true); err != nil {
        return nil, err
    }
    if cfg.SendBufferSize > 0 {
        if err := c.SetWriteBuffer(cfg.SendBufferSize); err != nil {
            return nil, err
        }
    }
    if cfg.ReceiveBufferSize > 0 {
        if err := c.SetReadBuffer(cfg.ReceiveBufferSize); err != nil {
            return nil, err
        }
    }
    return &netConn{c: c, nt: nt, cfg: cfg, doneCh: make(chan struct{})}, nil
}

// Dial opens a TCP connection to a network endpoint and applies the socket
// configuration to it. A zero cfg is replaced with DefaultSocketConfig.
func Dial(ctx context.Context, ep Endpoint, nt NodeType, cfg SocketConfig) (Conn, error) {
    if ep.Kind != KindTCP {
        return nil, ErrInvalidTransport
    }
    if err := ep.Validate(); err != nil {
        return nil, err
    }
    if cfg == (SocketConfig{}) {
        cfg = DefaultSocketConfig()
    }
    d := &net.Dialer{}
    c, err := d.DialContext(ctx, "tcp", ep.Addr())
    if err != nil {
        return nil, err
    }
    nc, err := newNetConn(c.(*net.TCPConn), nt, cfg)
    if err != nil {
        _ = c.Close()
        return nil, err
    }
    return nc, nil
}

func (n *netConn) Read(p []byte) (int, error) {
    if n.nt.UsesReceiveTimeout() && n.cfg.ReceiveTimeout > 0 {
        if err := n.c.SetReadDeadline(time.Now().Add(n.cfg.ReceiveTimeout)); err != nil {
            return 0, err
        }
    }
    m, err := n.c.Read(p)
    // An EOF provoked by our own CloseRead is loop cancellation, not a
    // disconnect; only a genuine stream end may fire Done.
    if err != nil && streamEnded(err) && !n.readOff.Load() {
        n.markDone()
    }
    return m, err
}

func (n *netConn) Write(p []byte) (int, error) {
    if n.cfg.SendTimeout > 0 {
        if err := n.c.SetWriteDeadline(time.Now().Add(n.cfg.SendTimeout)); err != nil {
            return 0, err
        }
    }
    m, err := n.c.Write(p)
    if err != nil && streamEnded(err) {
        n.markDone()
    }
    return m, err
}

func (n *netConn) CloseRead() error {
    n.readOff.Store(true)
    return n.c.CloseRead()
}

func (n *netConn) Close() error {
    var err error
    n.closeOnce.Do(func() {
        err = n.c.Close()
        n.markDone()
    })
    return err
}

func (n *netConn) Done() <-chan struct{} { return n.doneCh }

func (n *netConn) LocalAddr() net.Addr  { return n.c.LocalAddr() }
func (n *netConn) RemoteAddr() net.Addr { return n.c.RemoteAddr() }
func (n *netConn) Config() SocketConfig { return n.cfg }

func (n *netConn) markDone() {
    n.doneOnce.Do(func() { close(n.doneCh) })
}

// streamEnded reports whether err means the stream is gone for good, as
// opposed to a deadline expiry the caller may choose to survive.
func streamEnded(err error) bool {
    if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
        errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
        return true
    }
    var ne net.Error
    if errors.As(err, &ne) && ne.Timeout() {
        return false
    }
    // Remaining net errors (reset, broken pipe) end the stream.
    return errors.As(err, &ne)
}
