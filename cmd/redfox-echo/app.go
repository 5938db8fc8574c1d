package main

import (
    "context"
    "os"
    "os/signal"
    "sync"
    "syscall"

    "go.uber.org/zap"
    "google.golang.org/protobuf/types/known/structpb"

    "github.com/Dmdv/redfoxmq/pkg/codec"
    "github.com/Dmdv/redfoxmq/pkg/config"
    "github.com/Dmdv/redfoxmq/pkg/observability"
    "github.com/Dmdv/redfoxmq/pkg/protocol"
    "github.com/Dmdv/redfoxmq/pkg/pump"
    "github.com/Dmdv/redfoxmq/pkg/transport"
    "github.com/Dmdv/redfoxmq/pkg/transport/inproc"
    "github.com/Dmdv/redfoxmq/pkg/transport/quicconn"
)

// typeEcho is the frame type the echo node understands: a structpb.Struct
// payload it sends straight back.
const typeEcho uint32 = 1

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("redfox-echo started", zap.String("app", cfg.AppName))

    reg := codec.NewRegistry()
    echoSer, echoDes := codec.Proto(func() *structpb.Struct { return &structpb.Struct{} })
    reg.Register(typeEcho, echoSer, echoDes)

    ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer cancel()

    e := &echoNode{reg: reg, log: logger}
    sc := cfg.Socket.Transport()

    var tcpAcceptors []*transport.Acceptor
    var quicAcceptors []*quicconn.Acceptor
    for _, lc := range cfg.Listeners {
        ep, err := lc.Endpoint()
        if err != nil {
            logger.Error("bad listener", zap.Error(err))
            return 1
        }
        switch ep.Kind {
        case transport.KindTCP:
            a := transport.NewAcceptor(logger.Named("tcp"))
            if err := a.Bind(ep, lc.Node(), sc, e.onConnected(ctx), e.onDisconnected); err != nil {
                logger.Error("bind failed", zap.Stringer("endpoint", ep), zap.Error(err))
                return 1
            }
            tcpAcceptors = append(tcpAcceptors, a)
        case transport.KindQUIC:
            a := quicconn.NewAcceptor(logger.Named("quic"))
            if err := a.Bind(ep, lc.Node(), sc, e.onConnected(ctx), e.onDisconnected); err != nil {
                logger.Error("bind failed", zap.Stringer("endpoint", ep), zap.Error(err))
                return 1
            }
            quicAcceptors = append(quicAcceptors, a)
        case transport.KindInProc:
            q, err := inproc.Default.RegisterAccepter(ep)
            if err != nil {
                logger.Error("register failed", zap.Stringer("endpoint", ep), zap.Error(err))
                return 1
            }
            go e.acceptInProc(ctx, ep, q)
        }
    }

    <-ctx.Done()
    logger.Info("shutting down")
    for _, a := range tcpAcceptors {
        a.Unbind(true)
    }
    for _, a := range quicAcceptors {
        a.Unbind(true)
    }
    for _, lc := range cfg.Listeners {
        if ep, err := lc.Endpoint(); err == nil && ep.Kind == transport.KindInProc {
            inproc.Default.UnregisterAccepter(ep)
        }
    }
    e.stopAll()
    return 0
}

// echoNode runs one pump per connection and writes every decoded message
// back to its sender.
type echoNode struct {
    reg *codec.Registry
    log *zap.Logger

    mu    sync.Mutex
    pumps map[transport.Conn]*pump.Pump
}

func (e *echoNode) onConnected(ctx context.Context) transport.ConnHandler {
    return func(c transport.Conn, _ transport.SocketConfig) {
        e.log.Info("client connected", zap.Stringer("remote", c.RemoteAddr()))
        p := pump.New(c, e.reg, pump.HandlerFunc(e.echo),
            pump.WithLogger(e.log), pump.WithTrap(e.trap))
        e.mu.Lock()
        if e.pumps == nil {
            e.pumps = make(map[transport.Conn]*pump.Pump)
        }
        e.pumps[c] = p
        e.mu.Unlock()
        if err := p.Start(ctx); err != nil {
            e.log.Error("pump start failed", zap.Error(err))
        }
    }
}

func (e *echoNode) onDisconnected(c transport.Conn) {
    e.log.Info("client disconnected", zap.Stringer("remote", c.RemoteAddr()))
    e.mu.Lock()
    p := e.pumps[c]
    delete(e.pumps, c)
    e.mu.Unlock()
    if p != nil {
        _ = p.Close()
    }
}

func (e *echoNode) acceptInProc(ctx context.Context, ep transport.Endpoint, q *inproc.Queue) {
    onConn := e.onConnected(ctx)
    for {
        c, err := q.Dequeue(ctx)
        if err != nil {
            e.log.Debug("inproc accept loop stopped", zap.Stringer("endpoint", ep), zap.Error(err))
            return
        }
        onConn(c, transport.SocketConfig{})
        go func(c transport.Conn) {
            <-c.Done()
            e.onDisconnected(c)
        }(c)
    }
}

func (e *echoNode) echo(c transport.Conn, m any) {
    b, err := e.reg.Serialize(typeEcho, m)
    if err != nil {
        e.log.Warn("echo serialize failed", zap.Error(err))
        return
    }
    if err := protocol.Write(c, typeEcho, b); err != nil {
        e.log.Warn("echo write failed", zap.Error(err))
    }
}

func (e *echoNode) trap(c transport.Conn, err error) {
    e.log.Warn("socket exception", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
}

func (e *echoNode) stopAll() {
    e.mu.Lock()
    pumps := e.pumps
    e.pumps = nil
    e.mu.Unlock()
    for c, p := range pumps {
        p.Stop(true)
        _ = c.Close()
    }
}
