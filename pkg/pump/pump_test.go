package pump

import (
    "context"
    "errors"
    "sync/atomic"
    "testing"
    "time"

    "github.com/Dmdv/redfoxmq/pkg/codec"
    "github.com/Dmdv/redfoxmq/pkg/protocol"
    "github.com/Dmdv/redfoxmq/pkg/transport"
    "github.com/Dmdv/redfoxmq/pkg/transport/inproc"
)

type echoMsg struct {
    N int `json:"n"`
}

func testRegistry(t *testing.T) *codec.Registry {
    t.Helper()
    r := codec.NewRegistry()
    s, d := codec.JSON[echoMsg]()
    r.Register(1, s, d)
    return r
}

func send(t *testing.T, c transport.Conn, typeID uint32, payload []byte) {
    t.Helper()
    if err := protocol.Write(c, typeID, payload); err != nil {
        t.Fatalf("send frame: %v", err)
    }
}

func TestStartBarrier(t *testing.T) {
    a, c := inproc.NewPair("start")
    got := make(chan any, 1)
    p := New(a, testRegistry(t), HandlerFunc(func(_ transport.Conn, m any) { got <- m }))
    if err := p.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }
    defer p.Stop(true)

    if s := p.State(); s != Running {
        t.Fatalf("state after Start = %v", s)
    }

    // A frame sent right after Start returns must be observed.
    send(t, c, 1, []byte(`{"n":42}`))
    select {
    case m := <-got:
        if m.(*echoMsg).N != 42 {
            t.Fatalf("got %#v", m)
        }
    case <-time.After(time.Second):
        t.Fatalf("frame not dispatched after Start returned")
    }
}

func TestStartNotIdle(t *testing.T) {
    a, _ := inproc.NewPair("busy")
    p := New(a, testRegistry(t), HandlerFunc(func(transport.Conn, any) {}))
    if err := p.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }
    defer p.Stop(true)
    if err := p.Start(context.Background()); !errors.Is(err, ErrNotIdle) {
        t.Fatalf("want ErrNotIdle, got %v", err)
    }
}

func TestStopBarrier(t *testing.T) {
    a, c := inproc.NewPair("stop")
    var delivered atomic.Int64
    p := New(a, testRegistry(t), HandlerFunc(func(transport.Conn, any) { delivered.Add(1) }))
    if err := p.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }

    send(t, c, 1, []byte(`{"n":1}`))
    p.Stop(true)
    if s := p.State(); s != Idle {
        t.Fatalf("state after Stop = %v", s)
    }

    // A frame sent after Stop returned must never be dispatched. The write
    // itself may already fail; either way counts as "never delivered".
    n := delivered.Load()
    _ = protocol.Write(c, 1, []byte(`{"n":2}`))
    time.Sleep(50 * time.Millisecond)
    if m := delivered.Load(); m != n {
        t.Fatalf("dispatch after Stop: %d -> %d", n, m)
    }
}

func TestUnknownTypeKeepsLoopAlive(t *testing.T) {
    a, c := inproc.NewPair("unknown")
    got := make(chan any, 1)
    traps := make(chan error, 4)
    p := New(a, testRegistry(t),
        HandlerFunc(func(_ transport.Conn, m any) { got <- m }),
        WithTrap(func(_ transport.Conn, err error) { traps <- err }))
    if err := p.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }
    defer p.Stop(true)

    send(t, c, 77, []byte("whatever"))
    select {
    case err := <-traps:
        if !errors.Is(err, codec.ErrUnknownType) {
            t.Fatalf("want ErrUnknownType, got %v", err)
        }
    case <-time.After(time.Second):
        t.Fatalf("no exception callback for unknown type")
    }

    // The bad frame was dropped; the connection still delivers.
    send(t, c, 1, []byte(`{"n":5}`))
    select {
    case m := <-got:
        if m.(*echoMsg).N != 5 {
            t.Fatalf("got %#v", m)
        }
    case <-time.After(time.Second):
        t.Fatalf("valid frame after unknown type not delivered")
    }
    if len(traps) != 0 {
        t.Fatalf("expected exactly one exception callback, %d extra", len(traps))
    }
}

func TestMalformedPayloadKeepsLoopAlive(t *testing.T) {
    a, c := inproc.NewPair("malformed")
    got := make(chan any, 1)
    traps := make(chan error, 4)
    p := New(a, testRegistry(t),
        HandlerFunc(func(_ transport.Conn, m any) { got <- m }),
        WithTrap(func(_ transport.Conn, err error) { traps <- err }))
    if err := p.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }
    defer p.Stop(true)

    send(t, c, 1, []byte("{broken"))
    select {
    case err := <-traps:
        if !errors.Is(err, codec.ErrBadPayload) {
            t.Fatalf("want ErrBadPayload, got %v", err)
        }
    case <-time.After(time.Second):
        t.Fatalf("no exception callback for malformed payload")
    }

    send(t, c, 1, []byte(`{"n":6}`))
    select {
    case <-got:
    case <-time.After(time.Second):
        t.Fatalf("valid frame after malformed payload not delivered")
    }
}

func TestHandlerPanicIsolated(t *testing.T) {
    a, c := inproc.NewPair("panic")
    calls := make(chan int, 2)
    first := true
    p := New(a, testRegistry(t), HandlerFunc(func(_ transport.Conn, m any) {
        calls <- m.(*echoMsg).N
        if first {
            first = false
            panic("handler bug")
        }
    }))
    if err := p.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }
    defer p.Stop(true)

    send(t, c, 1, []byte(`{"n":1}`))
    send(t, c, 1, []byte(`{"n":2}`))

    for want := 1; want <= 2; want++ {
        select {
        case n := <-calls:
            if n != want {
                t.Fatalf("dispatch order: want %d, got %d", want, n)
            }
        case <-time.After(time.Second):
            t.Fatalf("frame %d not delivered after handler panic", want)
        }
    }
}

func TestArrivalOrder(t *testing.T) {
    a, c := inproc.NewPair("order")
    const n = 100
    got := make(chan int, n)
    p := New(a, testRegistry(t), HandlerFunc(func(_ transport.Conn, m any) { got <- m.(*echoMsg).N }))
    if err := p.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }
    defer p.Stop(true)

    reg := testRegistry(t)
    for i := 0; i < n; i++ {
        b, err := reg.Serialize(1, &echoMsg{N: i})
        if err != nil {
            t.Fatalf("serialize: %v", err)
        }
        send(t, c, 1, b)
    }
    for i := 0; i < n; i++ {
        select {
        case v := <-got:
            if v != i {
                t.Fatalf("frame %d arrived as %d", i, v)
            }
        case <-time.After(time.Second):
            t.Fatalf("frame %d never arrived", i)
        }
    }
}

func TestPeerCloseExitsQuietly(t *testing.T) {
    a, c := inproc.NewPair("quiet")
    traps := make(chan error, 1)
    p := New(a, testRegistry(t),
        HandlerFunc(func(transport.Conn, any) {}),
        WithTrap(func(_ transport.Conn, err error) { traps <- err }))
    if err := p.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }

    _ = c.Close()
    // Stop(wait) doubles as a barrier for the self-terminated loop.
    p.Stop(true)
    if s := p.State(); s != Idle {
        t.Fatalf("state after peer close = %v", s)
    }
    select {
    case err := <-traps:
        t.Fatalf("peer close is expected shutdown, got exception %v", err)
    default:
    }
}

func TestCloseIdempotent(t *testing.T) {
    a, _ := inproc.NewPair("dispose")
    p := New(a, testRegistry(t), HandlerFunc(func(transport.Conn, any) {}))
    if err := p.Start(context.Background()); err != nil {
        t.Fatalf("start: %v", err)
    }
    if err := p.Close(); err != nil {
        t.Fatalf("close: %v", err)
    }
    if err := p.Close(); err != nil {
        t.Fatalf("second close: %v", err)
    }
    p.Stop(true)
    if s := p.State(); s != Idle {
        t.Fatalf("state after dispose = %v", s)
    }
}
