package codec

import (
    "errors"
    "sync"
    "testing"

    "google.golang.org/protobuf/types/known/structpb"
)

type note struct {
    From string `json:"from"`
    Body string `json:"body"`
}

func TestJSONRoundtrip(t *testing.T) {
    r := NewRegistry()
    s, d := JSON[note]()
    r.Register(1, s, d)

    b, err := r.Serialize(1, &note{From: "a", Body: "hi"})
    if err != nil {
        t.Fatalf("serialize: %v", err)
    }
    m, err := r.Deserialize(1, b)
    if err != nil {
        t.Fatalf("deserialize: %v", err)
    }
    got, ok := m.(*note)
    if !ok || got.From != "a" || got.Body != "hi" {
        t.Fatalf("roundtrip mismatch: %#v", m)
    }
}

func TestCBORRoundtrip(t *testing.T) {
    r := NewRegistry()
    s, d, err := CBOR[note]()
    if err != nil {
        t.Fatalf("new cbor: %v", err)
    }
    r.Register(2, s, d)

    b, err := r.Serialize(2, &note{From: "b", Body: "yo"})
    if err != nil {
        t.Fatalf("serialize: %v", err)
    }
    m, err := r.Deserialize(2, b)
    if err != nil {
        t.Fatalf("deserialize: %v", err)
    }
    if got := m.(*note); got.From != "b" || got.Body != "yo" {
        t.Fatalf("roundtrip mismatch: %#v", got)
    }
}

func TestProtoRoundtrip(t *testing.T) {
    r := NewRegistry()
    s, d := Proto(func() *structpb.Struct { return &structpb.Struct{} })
    r.Register(3, s, d)

    in, err := structpb.NewStruct(map[string]any{"k": "v"})
    if err != nil {
        t.Fatalf("struct: %v", err)
    }
    b, err := r.Serialize(3, in)
    if err != nil {
        t.Fatalf("serialize: %v", err)
    }
    m, err := r.Deserialize(3, b)
    if err != nil {
        t.Fatalf("deserialize: %v", err)
    }
    if m.(*structpb.Struct).Fields["k"].GetStringValue() != "v" {
        t.Fatalf("roundtrip mismatch")
    }
}

func TestUnknownType(t *testing.T) {
    r := NewRegistry()
    if _, err := r.Deserialize(99, nil); !errors.Is(err, ErrUnknownType) {
        t.Fatalf("deserialize: want ErrUnknownType, got %v", err)
    }
    if _, err := r.Serialize(99, nil); !errors.Is(err, ErrUnknownType) {
        t.Fatalf("serialize: want ErrUnknownType, got %v", err)
    }
}

func TestBadPayload(t *testing.T) {
    r := NewRegistry()
    s, d := JSON[note]()
    r.Register(1, s, d)
    if _, err := r.Deserialize(1, []byte("{not json")); !errors.Is(err, ErrBadPayload) {
        t.Fatalf("want ErrBadPayload, got %v", err)
    }
}

func TestLastRegistrationWins(t *testing.T) {
    r := NewRegistry()
    s, d := JSON[note]()
    r.Register(1, s, d)
    r.Register(1, s, func(p []byte) (any, error) { return "override", nil })
    m, err := r.Deserialize(1, []byte("{}"))
    if err != nil {
        t.Fatalf("deserialize: %v", err)
    }
    if m != "override" {
        t.Fatalf("expected last registration to win, got %#v", m)
    }
}

func TestConcurrentRegisterAndLookup(t *testing.T) {
    r := NewRegistry()
    s, d := JSON[note]()
    var wg sync.WaitGroup
    for i := 0; i < 8; i++ {
        wg.Add(2)
        go func(id uint32) {
            defer wg.Done()
            for j := 0; j < 100; j++ {
                r.Register(id, s, d)
            }
        }(uint32(i))
        go func(id uint32) {
            defer wg.Done()
            for j := 0; j < 100; j++ {
                _, _ = r.Deserialize(id, []byte("{}"))
            }
        }(uint32(i))
    }
    wg.Wait()
}
