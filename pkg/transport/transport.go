// Package transport defines the connection abstraction shared by every
// transport kind: an Endpoint address value, the Conn byte-stream interface,
// socket tuning parameters and the node-type policy that selects them.
package transport

import (
    "fmt"
    "io"
    "net"
    "strconv"
    "time"
)

// Kind identifies the transport behind an endpoint.
type Kind int

const (
    KindUnknown Kind = iota
    KindTCP
    KindQUIC
    KindInProc
)

func (k Kind) String() string {
    switch k {
    case KindTCP:
        return "tcp"
    case KindQUIC:
        return "quic"
    case KindInProc:
        return "inproc"
    default:
        return "unknown"
    }
}

// ParseKind maps a config string to a Kind.
func ParseKind(s string) (Kind, error) {
    switch s {
    case "tcp":
        return KindTCP, nil
    case "quic":
        return KindQUIC, nil
    case "inproc", "mem":
        return KindInProc, nil
    }
    return KindUnknown, fmt.Errorf("%w: %q", ErrInvalidTransport, s)
}

// NodeType classifies the local node's role on a link. It selects the
// per-connection socket policy: backbone links read without a deadline,
// leaf links idle out via the configured receive timeout.
type NodeType int

const (
    NodeBackbone NodeType = iota
    NodeLeaf
)

func (t NodeType) String() string {
    if t == NodeLeaf {
        return "leaf"
    }
    return "backbone"
}

// UsesReceiveTimeout reports whether connections of this node type bound
// their reads with SocketConfig.ReceiveTimeout.
func (t NodeType) UsesReceiveTimeout() bool { return t == NodeLeaf }

// Endpoint is an immutable address value: host/port for network kinds,
// a logical name for the in-process kind. Comparable, usable as a map key.
type Endpoint struct {
    Kind Kind
    Host string
    Port int
    Name string
}

// TCPEndpoint returns a network endpoint for the TCP transport.
func TCPEndpoint(host string, port int) Endpoint {
    return Endpoint{Kind: KindTCP, Host: host, Port: port}
}

// QUICEndpoint returns a network endpoint for the QUIC transport.
func QUICEndpoint(host string, port int) Endpoint {
    return Endpoint{Kind: KindQUIC, Host: host, Port: port}
}

// InProcEndpoint returns an in-process endpoint with the given logical name.
func InProcEndpoint(name string) Endpoint {
    return Endpoint{Kind: KindInProc, Name: name}
}

// Validate checks that the fields relevant to the endpoint's kind are set.
func (e Endpoint) Validate() error {
    switch e.Kind {
    case KindTCP, KindQUIC:
        // Port 0 asks the OS for an ephemeral port when binding.
        if e.Host == "" || e.Port < 0 || e.Port > 65535 {
            return fmt.Errorf("%w: %s endpoint needs host and port, got %q:%d", ErrInvalidTransport, e.Kind, e.Host, e.Port)
        }
        if e.Name != "" {
            return fmt.Errorf("%w: %s endpoint must not carry a name", ErrInvalidTransport, e.Kind)
        }
    case KindInProc:
        if e.Name == "" {
            return fmt.Errorf("%w: inproc endpoint needs a name", ErrInvalidTransport)
        }
        if e.Host != "" || e.Port != 0 {
            return fmt.Errorf("%w: inproc endpoint must not carry host/port", ErrInvalidTransport)
        }
    default:
        return fmt.Errorf("%w: kind %d", ErrInvalidTransport, int(e.Kind))
    }
    return nil
}

// Addr returns the host:port form for network endpoints.
func (e Endpoint) Addr() string {
    return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
    if e.Kind == KindInProc {
        return "inproc://" + e.Name
    }
    return e.Kind.String() + "://" + e.Addr()
}

// SocketConfig carries per-connection tuning, supplied at bind/connect time.
// Zero values leave the OS defaults in place. ReceiveTimeout only takes
// effect when the connection's node type asks for it.
type SocketConfig struct {
    SendTimeout       time.Duration
    ReceiveTimeout    time.Duration
    SendBufferSize    int
    ReceiveBufferSize int
}

// DefaultSocketConfig returns the tuning applied when the caller passes a
// zero SocketConfig to Bind or Dial.
func DefaultSocketConfig() SocketConfig {
    return SocketConfig{
        SendTimeout:       30 * time.Second,
        ReceiveTimeout:    30 * time.Second,
        SendBufferSize:    16384,
        ReceiveBufferSize: 16384,
    }
}

// Conn is one established bidirectional ordered byte stream between two
// parties. Exactly one reader goroutine is expected; Close is idempotent.
//
// Done is closed exactly once, when the connection stops being usable
// (local close or peer disconnect), no matter how many observers wait on it.
// CloseRead unblocks a pending Read without tearing down the write side;
// the receive loop uses it to bound its shutdown time.
type Conn interface {
    io.Reader
    io.Writer
    CloseRead() error
    Close() error
    Done() <-chan struct{}
    LocalAddr() net.Addr
    RemoteAddr() net.Addr
    Config() SocketConfig
}
