// Package pump runs the per-connection receive loop: it pulls whole frames
// off a connection, resolves them to typed messages through a codec registry
// and dispatches them to the application, one frame at a time, in arrival
// order, on a single background goroutine.
package pump

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"

    "github.com/someonegg/gox/syncx"
    "go.uber.org/zap"

    "github.com/Dmdv/redfoxmq/pkg/codec"
    "github.com/Dmdv/redfoxmq/pkg/protocol"
    "github.com/Dmdv/redfoxmq/pkg/transport"
)

// State is the pump lifecycle phase: Idle -> Starting -> Running ->
// Stopping -> Idle.
type State int32

const (
    Idle State = iota
    Starting
    Running
    Stopping
)

func (s State) String() string {
    switch s {
    case Starting:
        return "starting"
    case Running:
        return "running"
    case Stopping:
        return "stopping"
    default:
        return "idle"
    }
}

// ErrNotIdle is returned by Start while a previous run is still active.
var ErrNotIdle = errors.New("pump: not idle")

// Handler receives each successfully decoded message. It runs on the pump
// goroutine: a slow handler delays subsequent frames on this connection
// only, and a panicking handler is isolated, never killing the loop.
type Handler interface {
    OnMessage(c transport.Conn, m any)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(c transport.Conn, m any)

func (f HandlerFunc) OnMessage(c transport.Conn, m any) { f(c, m) }

// TrapFunc receives socket exceptions: recoverable per-frame decode
// failures (the loop continues) and connection-fatal I/O errors (the loop
// exits right after). The embedding application decides retry/log/alert.
type TrapFunc func(c transport.Conn, err error)

// Pump is the receive loop for one connection. It borrows the connection
// for reading; it never owns it. Safe for concurrent Start/Stop/Close.
type Pump struct {
    conn transport.Conn
    reg  *codec.Registry
    h    Handler
    trap TrapFunc
    log  *zap.Logger

    mu    sync.Mutex
    state atomic.Int32
    quitF context.CancelFunc
    stopD syncx.DoneChan

    closeOnce sync.Once
}

// Option tweaks a Pump at construction time.
type Option func(*Pump)

// WithTrap installs the socket-exception callback.
func WithTrap(t TrapFunc) Option { return func(p *Pump) { p.trap = t } }

// WithLogger replaces the no-op default logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pump) { p.log = l } }

func New(c transport.Conn, reg *codec.Registry, h Handler, opts ...Option) *Pump {
    p := &Pump{conn: c, reg: reg, h: h, log: zap.NewNop()}
    for _, o := range opts {
        o(p)
    }
    return p
}

// State reports the current lifecycle phase.
func (p *Pump) State() State { return State(p.state.Load()) }

// Start launches the loop and blocks until it is actually consuming frames:
// a frame sent as soon as Start returns will be observed by the handler.
// Fails with ErrNotIdle while a previous run has not fully stopped.
func (p *Pump) Start(parent context.Context) error {
    p.mu.Lock()
    if State(p.state.Load()) != Idle {
        p.mu.Unlock()
        return ErrNotIdle
    }
    p.state.Store(int32(Starting))
    if parent == nil {
        parent = context.Background()
    }
    ctx, quitF := context.WithCancel(parent)
    runD := syncx.NewDoneChan()
    p.quitF = quitF
    p.stopD = syncx.NewDoneChan()
    stopD := p.stopD
    p.mu.Unlock()

    go p.run(ctx, quitF, runD, stopD)
    <-runD.R() // startup barrier
    return nil
}

// Stop signals cancellation and, if wait is set, blocks until the loop has
// reached Idle again — after which no further handler invocation occurs.
func (p *Pump) Stop(wait bool) {
    p.mu.Lock()
    quitF, stopD := p.quitF, p.stopD
    p.mu.Unlock()
    if quitF == nil {
        return
    }
    p.state.CompareAndSwap(int32(Running), int32(Stopping))
    quitF()
    if wait {
        <-stopD.R()
    }
}

// Close is the idempotent dispose path: it closes the connection for
// reading and requests stop without waiting, which keeps it deadlock-free
// when called from the loop's own goroutine (e.g. inside a handler).
func (p *Pump) Close() error {
    p.closeOnce.Do(func() {
        _ = p.conn.CloseRead()
        p.Stop(false)
    })
    return nil
}

func (p *Pump) run(ctx context.Context, quitF context.CancelFunc, runD, stopD syncx.DoneChan) {
    defer func() {
        quitF() // release the cancellation watcher on every exit path
        p.state.Store(int32(Idle))
        stopD.SetDone()
    }()

    // A blocked frame read does not observe ctx by itself; unblock it.
    go func() {
        <-ctx.Done()
        _ = p.conn.CloseRead()
    }()

    r := protocol.NewReceiver(p.conn)
    p.state.Store(int32(Running))
    runD.SetDone()

    for {
        f, err := r.Receive(ctx)
        if err != nil {
            switch {
            case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
                return // requested stop
            case errors.Is(err, transport.ErrConnClosed):
                p.log.Debug("connection closed", zap.Stringer("remote", p.conn.RemoteAddr()))
                return
            default:
                p.trapErr(err) // connection-fatal
                return
            }
        }

        m, err := p.reg.Deserialize(f.Type, f.Payload)
        if err != nil {
            // Unknown type or malformed payload: drop the frame, report it,
            // keep the connection and the loop alive.
            p.trapErr(err)
            continue
        }
        p.dispatch(m)
    }
}

func (p *Pump) dispatch(m any) {
    defer func() {
        if e := recover(); e != nil {
            p.log.Error("message handler panicked", zap.Any("panic", e))
            p.trapErr(fmt.Errorf("pump: handler panic: %v", e))
        }
    }()
    p.h.OnMessage(p.conn, m)
}

func (p *Pump) trapErr(err error) {
    if p.trap == nil {
        p.log.Warn("socket exception", zap.Error(err))
        return
    }
    defer func() {
        if e := recover(); e != nil {
            p.log.Error("exception handler panicked", zap.Any("panic", e))
        }
    }()
    p.trap(p.conn, err)
}
