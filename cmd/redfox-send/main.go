package main

import (
    "context"
    "flag"
    "fmt"
    "os"
    "strconv"
    "strings"
    "time"

    "go.uber.org/zap"
    "google.golang.org/protobuf/types/known/structpb"

    "github.com/Dmdv/redfoxmq/pkg/codec"
    "github.com/Dmdv/redfoxmq/pkg/protocol"
    "github.com/Dmdv/redfoxmq/pkg/transport"
    "github.com/Dmdv/redfoxmq/pkg/transport/quicconn"
)

const typeEcho uint32 = 1

func main() {
    kind := flag.String("kind", "tcp", "transport kind: tcp|quic")
    addr := flag.String("addr", "127.0.0.1:7055", "address to connect to")
    text := flag.String("message", "hello redfox", "message to send")
    timeout := flag.Duration("timeout", 5*time.Second, "dial/echo timeout")
    flag.Parse()

    logger, _ := zap.NewDevelopment()
    zap.ReplaceGlobals(logger)
    defer logger.Sync()

    ctx, cancel := context.WithTimeout(context.Background(), *timeout)
    defer cancel()

    ep, err := parseEndpoint(*kind, *addr)
    if err != nil {
        fatalf("endpoint: %v", err)
    }

    var conn transport.Conn
    switch ep.Kind {
    case transport.KindTCP:
        conn, err = transport.Dial(ctx, ep, transport.NodeLeaf, transport.SocketConfig{})
    case transport.KindQUIC:
        conn, err = quicconn.Dial(ctx, ep, transport.NodeLeaf, transport.SocketConfig{})
    }
    if err != nil {
        fatalf("dial: %v", err)
    }
    defer conn.Close()

    reg := codec.NewRegistry()
    echoSer, echoDes := codec.Proto(func() *structpb.Struct { return &structpb.Struct{} })
    reg.Register(typeEcho, echoSer, echoDes)

    msg, err := structpb.NewStruct(map[string]any{
        "text": *text,
        "sent": time.Now().Format(time.RFC3339Nano),
    })
    if err != nil {
        fatalf("build message: %v", err)
    }
    payload, err := reg.Serialize(typeEcho, msg)
    if err != nil {
        fatalf("serialize: %v", err)
    }
    if err := protocol.Write(conn, typeEcho, payload); err != nil {
        fatalf("send: %v", err)
    }

    r := protocol.NewReceiver(conn)
    f, err := r.Receive(ctx)
    if err != nil {
        fatalf("receive echo: %v", err)
    }
    m, err := reg.Deserialize(f.Type, f.Payload)
    if err != nil {
        fatalf("decode echo: %v", err)
    }
    fmt.Printf("echo: %v\n", m.(*structpb.Struct).AsMap())
}

func parseEndpoint(kind, addr string) (transport.Endpoint, error) {
    k, err := transport.ParseKind(kind)
    if err != nil {
        return transport.Endpoint{}, err
    }
    i := strings.LastIndex(addr, ":")
    if i < 0 {
        return transport.Endpoint{}, fmt.Errorf("address %q has no port", addr)
    }
    port, err := strconv.Atoi(addr[i+1:])
    if err != nil {
        return transport.Endpoint{}, fmt.Errorf("address %q has a bad port", addr)
    }
    host := strings.Trim(addr[:i], "[]")
    ep := transport.Endpoint{Kind: k, Host: host, Port: port}
    return ep, ep.Validate()
}

func fatalf(format string, args ...any) {
    fmt.Fprintf(os.Stderr, format+"\n", args...)
    os.Exit(1)
}
