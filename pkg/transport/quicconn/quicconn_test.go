package quicconn

import (
    "context"
    "errors"
    "io"
    "net"
    "testing"
    "time"

    "github.com/Dmdv/redfoxmq/pkg/transport"
)

func TestDialAcceptRoundtrip(t *testing.T) {
    a := NewAcceptor(nil)
    conns := make(chan transport.Conn, 1)
    err := a.Bind(transport.QUICEndpoint("127.0.0.1", 0), transport.NodeBackbone, transport.SocketConfig{},
        func(c transport.Conn, _ transport.SocketConfig) { conns <- c }, nil)
    if err != nil {
        t.Fatalf("bind: %v", err)
    }
    defer a.Unbind(true)

    addr := a.Addr().(*net.UDPAddr)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    client, err := Dial(ctx, transport.QUICEndpoint("127.0.0.1", addr.Port), transport.NodeBackbone, transport.SocketConfig{})
    if err != nil {
        t.Fatalf("dial: %v", err)
    }
    defer client.Close()

    // The control stream (and so the accept callback) materializes with
    // the first bytes from the dialer.
    if _, err := client.Write([]byte("ping")); err != nil {
        t.Fatalf("client write: %v", err)
    }
    var server transport.Conn
    select {
    case server = <-conns:
    case <-time.After(5 * time.Second):
        t.Fatalf("connect callback not invoked")
    }
    defer server.Close()

    buf := make([]byte, 4)
    if _, err := io.ReadFull(server, buf); err != nil {
        t.Fatalf("server read: %v", err)
    }
    if string(buf) != "ping" {
        t.Fatalf("got %q", buf)
    }

    if _, err := server.Write([]byte("pong")); err != nil {
        t.Fatalf("server write: %v", err)
    }
    if _, err := io.ReadFull(client, buf); err != nil {
        t.Fatalf("client read: %v", err)
    }
    if string(buf) != "pong" {
        t.Fatalf("got %q", buf)
    }
}

func TestBindTwice(t *testing.T) {
    a := NewAcceptor(nil)
    if err := a.Bind(transport.QUICEndpoint("127.0.0.1", 0), transport.NodeBackbone, transport.SocketConfig{}, func(transport.Conn, transport.SocketConfig) {}, nil); err != nil {
        t.Fatalf("bind: %v", err)
    }
    if err := a.Bind(transport.QUICEndpoint("127.0.0.1", 0), transport.NodeBackbone, transport.SocketConfig{}, func(transport.Conn, transport.SocketConfig) {}, nil); !errors.Is(err, transport.ErrAlreadyBound) {
        t.Fatalf("want ErrAlreadyBound, got %v", err)
    }
    a.Unbind(true)
}

func TestDialWrongKind(t *testing.T) {
    if _, err := Dial(context.Background(), transport.TCPEndpoint("127.0.0.1", 1), transport.NodeBackbone, transport.SocketConfig{}); !errors.Is(err, transport.ErrInvalidTransport) {
        t.Fatalf("want ErrInvalidTransport, got %v", err)
    }
}
