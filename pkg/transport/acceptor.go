package transport

import (
    "context"
    "errors"
    "net"
    "sync"
    "time"

    "github.com/someonegg/gox/syncx"
    "go.uber.org/zap"
)

// ConnHandler is invoked once per accepted connection, together with the
// socket configuration that was applied to it. The acceptor owns the
// connection only until the handler returns; from then on the handler does.
type ConnHandler func(c Conn, cfg SocketConfig)

// DisconnectHandler is invoked exactly once when an accepted connection
// stops being usable.
type DisconnectHandler func(c Conn)

// Acceptor listens on a TCP endpoint and hands accepted connections to the
// application. Bind is synchronous up to the OS listen call; the accept loop
// itself runs in the background until Unbind.
type Acceptor struct {
    log *zap.Logger

    mu    sync.Mutex
    ln    *net.TCPListener
    quitF context.CancelFunc
    doneD syncx.DoneChan
}

func NewAcceptor(log *zap.Logger) *Acceptor {
    if log == nil {
        log = zap.NewNop()
    }
    return &Acceptor{log: log}
}

// Bind resolves the endpoint, starts listening synchronously and launches
// the accept loop. When Bind returns nil the OS socket is already accepting;
// the loop's first accept is not waited for.
//
// Fails with ErrAlreadyBound while a previous bind is active or its loop has
// not fully exited yet. A zero cfg is replaced with DefaultSocketConfig.
func (a *Acceptor) Bind(ep Endpoint, nt NodeType, cfg SocketConfig, onConnected ConnHandler, onDisconnected DisconnectHandler) error {
    if ep.Kind != KindTCP {
        return ErrInvalidTransport
    }
    if err := ep.Validate(); err != nil {
        return err
    }
    if onConnected == nil {
        return errors.New("transport: nil connect handler")
    }
    if cfg == (SocketConfig{}) {
        cfg = DefaultSocketConfig()
    }

    a.mu.Lock()
    defer a.mu.Unlock()
    if a.ln != nil || (a.doneD != nil && !a.doneD.R().Done()) {
        return ErrAlreadyBound
    }

    addr, err := net.ResolveTCPAddr("tcp", ep.Addr())
    if err != nil {
        return err
    }
    ln, err := net.ListenTCP("tcp", addr)
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

// Unbind detaches and closes the listening socket, cancels the accept loop
// and, if wait is set, blocks until the loop has fully exited. A second call
// is a no-op.
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

func (a *Acceptor) acceptLoop(ctx context.Context, ln *net.TCPListener, nt NodeType, cfg SocketConfig, onConnected ConnHandler, onDisconnected DisconnectHandler, doneD syncx.DoneChan) {
    defer doneD.SetDone()
    for {
        c, err := ln.AcceptTCP()
        if err != nil {
            if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
                a.log.Debug("accept loop stopped")
                return
            }
            // Transient accept failure: back off and keep listening.
            a.log.Warn("accept failed, retrying", zap.Error(err))
            select {
            case <-ctx.Done():
                return
            case <-time.After(50 * time.Millisecond):
            }
            continue
        }

        nc, err := newNetConn(c, nt, cfg)
        if err != nil {
            a.log.Warn("socket tuning failed, dropping connection", zap.Error(err))
            _ = c.Close()
            continue
        }

        a.dispatchConnected(onConnected, nc, cfg)
        if onDisconnected != nil {
            go a.watchDisconnect(nc, onDisconnected)
        }
    }
}

// dispatchConnected shields the accept loop from a misbehaving handler.
func (a *Acceptor) dispatchConnected(h ConnHandler, c Conn, cfg SocketConfig) {
    defer func() {
        if e := recover(); e != nil {
            a.log.Error("connect handler panicked", zap.Any("panic", e), zap.Stringer("remote", c.RemoteAddr()))
        }
    }()
    h(c, cfg)
}

// watchDisconnect waits for the connection's one-shot Done signal. Conn
// guarantees Done fires at most once, so the handler runs at most once.
func (a *Acceptor) watchDisconnect(c Conn, h DisconnectHandler) {
    <-c.Done()
    defer func() {
        if e := recover(); e != nil {
            a.log.Error("disconnect handler panicked", zap.Any("panic", e))
        }
    }()
    h(c)
}
