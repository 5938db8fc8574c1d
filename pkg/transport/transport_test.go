package transport

import (
    "errors"
    "testing"
)

func TestEndpointValidate(t *testing.T) {
    cases := []struct {
        ep Endpoint
        ok bool
    }{
        {TCPEndpoint("127.0.0.1", 7055), true},
        {TCPEndpoint("127.0.0.1", 0), true}, // ephemeral bind
        {QUICEndpoint("::1", 7056), true},
        {InProcEndpoint("broker"), true},
        {Endpoint{Kind: KindTCP, Port: 7055}, false},                       // no host
        {Endpoint{Kind: KindTCP, Host: "h", Port: 70555}, false},           // bad port
        {Endpoint{Kind: KindTCP, Host: "h", Port: 1, Name: "x"}, false},    // stray name
        {Endpoint{Kind: KindInProc}, false},                                // no name
        {Endpoint{Kind: KindInProc, Name: "n", Host: "h"}, false},          // stray host
        {Endpoint{Kind: KindUnknown, Host: "h", Port: 1}, false},
    }
    for _, c := range cases {
        err := c.ep.Validate()
        if c.ok && err != nil {
            t.Errorf("%v: unexpected error %v", c.ep, err)
        }
        if !c.ok {
            if err == nil {
                t.Errorf("%v: expected error", c.ep)
            } else if !errors.Is(err, ErrInvalidTransport) {
                t.Errorf("%v: want ErrInvalidTransport, got %v", c.ep, err)
            }
        }
    }
}

func TestEndpointAsMapKey(t *testing.T) {
    m := map[Endpoint]int{}
    m[InProcEndpoint("a")] = 1
    m[InProcEndpoint("a")] = 2
    m[TCPEndpoint("h", 1)] = 3
    if len(m) != 2 || m[InProcEndpoint("a")] != 2 {
        t.Fatalf("endpoint equality broken: %#v", m)
    }
}

func TestParseKind(t *testing.T) {
    for s, k := range map[string]Kind{"tcp": KindTCP, "quic": KindQUIC, "inproc": KindInProc, "mem": KindInProc} {
        got, err := ParseKind(s)
        if err != nil || got != k {
            t.Errorf("ParseKind(%q) = %v, %v", s, got, err)
        }
    }
    if _, err := ParseKind("carrier-pigeon"); !errors.Is(err, ErrInvalidTransport) {
        t.Errorf("want ErrInvalidTransport, got %v", err)
    }
}

func TestEndpointString(t *testing.T) {
    if s := TCPEndpoint("127.0.0.1", 7055).String(); s != "tcp://127.0.0.1:7055" {
        t.Errorf("got %q", s)
    }
    if s := InProcEndpoint("broker").String(); s != "inproc://broker" {
        t.Errorf("got %q", s)
    }
}

func TestNodeTypePolicy(t *testing.T) {
    if NodeBackbone.UsesReceiveTimeout() {
        t.Errorf("backbone links must read without a deadline")
    }
    if !NodeLeaf.UsesReceiveTimeout() {
        t.Errorf("leaf links must honor the receive timeout")
    }
}
