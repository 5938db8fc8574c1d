package quicconn

import (
    "context"
    "errors"
    "net"
    "sync"
    "time"

    quicgo "github.com/quic-go/quic-go"
    "github.com/someonegg/gox/syncx"
    "go.uber.org/zap"

    "github.com/Dmdv/redfoxmq/pkg/transport"
)

// Acceptor listens on a QUIC endpoint and hands each session's control
// stream to the application as a transport.Conn. Same bind/unbind contract
// as the TCP acceptor; the control stream is the one the dialer opens, so
// a connection surfaces when its first frame arrives.
type Acceptor struct {
    log *zap.Logger

    mu    sync.Mutex
    ln    *quicgo.Listener
    quitF context.CancelFunc
    doneD syncx.DoneChan
}

func NewAcceptor(log *zap.Logger) *Acceptor {
    if log == nil {
        log = zap.NewNop()
    }
    return &Acceptor{log: log}
}

// Bind starts listening synchronously with an ephemeral self-signed
// certificate and launches the accept loop. Fails with ErrAlreadyBound
// while a previous bind is active or its loop has not fully exited.
func (a *Acceptor) Bind(ep transport.Endpoint, nt transport.NodeType, cfg transport.SocketConfig, onConnected transport.ConnHandler, onDisconnected transport.DisconnectHandler) error {
    if ep.Kind != transport.KindQUIC {
        return transport.ErrInvalidTransport
    }
    if err := ep.Validate(); err != nil {
        return err
    }
    if onConnected == nil {
        return errors.New("quicconn: nil connect handler")
    }
    if cfg == (transport.SocketConfig{}) {
        cfg = transport.DefaultSocketConfig()
    }

    a.mu.Lock()
    defer a.mu.Unlock()
    if a.ln != nil || (a.doneD != nil && !a.doneD.R().Done()) {
        return transport.ErrAlreadyBound
    }

    tlsConf, err := serverTLS()
    if err != nil {
        return err
    }
    ln, err := quicgo.ListenAddr(ep.Addr(), tlsConf, &quicgo.Config{})
    if err != nil {
        return err
    }

    ctx, quitF := context.WithCancel(context.Background())
    a.ln = ln
    a.quitF = quitF
    a.doneD = syncx.NewDoneChan()

    a.log.Info("bound", zap.Stringer("endpoint", ep), zap.Stringer("addr", ln.Addr()))
    go a.acceptLoop(ctx, ln, nt, cfg, onConnected, onDisconnected, a.doneD)
    return nil
}

// Addr returns the listener address, useful when binding port 0.
func (a *Acceptor) Addr() net.Addr {
    a.mu.Lock()
    defer a.mu.Unlock()
    if a.ln == nil {
        return nil
    }
    return a.ln.Addr()
}

// Unbind detaches and closes the listener, cancels the accept loop and, if
// wait is set, blocks until the loop exits. A second call is a no-op.
func (a *Acceptor) Unbind(wait bool) {
    a.mu.Lock()
    ln, quitF, doneD := a.ln, a.quitF, a.doneD
    a.ln, a.quitF = nil, nil
    a.mu.Unlock()

    if ln != nil {
        quitF()
        _ = ln.Close()
    }
    if wait && doneD != nil {
        <-doneD.R()
    }
}

func (a *Acceptor) acceptLoop(ctx context.Context, ln *quicgo.Listener, nt transport.NodeType, cfg transport.SocketConfig, onConnected transport.ConnHandler, onDisconnected transport.DisconnectHandler, doneD syncx.DoneChan) {
    defer doneD.SetDone()
    for {
        qc, err := ln.Accept(ctx)
        if err != nil {
            if ctx.Err() != nil || errors.Is(err, quicgo.ErrServerClosed) {
                a.log.Debug("accept loop stopped")
                return
            }
            a.log.Warn("accept failed, retrying", zap.Error(err))
            select {
            case <-ctx.Done():
                return
            case <-time.After(50 * time.Millisecond):
            }
            continue
        }
        // The control stream materializes with the dialer's first frame;
        // wait for it off the accept path so one slow dialer cannot stall
        // the listener.
        go a.adoptSession(ctx, qc, nt, cfg, onConnected, onDisconnected)
    }
}

func (a *Acceptor) adoptSession(ctx context.Context, qc quicgo.Connection, nt transport.NodeType, cfg transport.SocketConfig, onConnected transport.ConnHandler, onDisconnected transport.DisconnectHandler) {
    st, err := qc.AcceptStream(ctx)
    if err != nil {
        _ = qc.CloseWithError(0, "")
        return
    }
    c := newConn(qc, st, nt, cfg)
    a.dispatchConnected(onConnected, c, cfg)
    if onDisconnected != nil {
        go a.watchDisconnect(c, onDisconnected)
    }
}

func (a *Acceptor) dispatchConnected(h transport.ConnHandler, c transport.Conn, cfg transport.SocketConfig) {
    defer func() {
        if e := recover(); e != nil {
            a.log.Error("connect handler panicked", zap.Any("panic", e), zap.Stringer("remote", c.RemoteAddr()))
        }
    }()
    h(c, cfg)
}

func (a *Acceptor) watchDisconnect(c transport.Conn, h transport.DisconnectHandler) {
    <-c.Done()
    defer func() {
        if e := recover(); e != nil {
            a.log.Error("disconnect handler panicked", zap.Any("panic", e))
        }
    }()
    h(c)
}
