package codec

import (
    "fmt"

    "google.golang.org/protobuf/proto"
)

// Proto returns a serializer/deserializer pair for a protobuf message type,
// with deterministic marshaling. newM allocates a fresh message per frame:
//
//	codec.Proto(func() *structpb.Struct { return &structpb.Struct{} })
func Proto[M proto.Message](newM func() M) (Serializer, Deserializer) {
    mo := proto.MarshalOptions{Deterministic: true}
    uo := proto.UnmarshalOptions{}
    s := func(m any) ([]byte, error) {
        msg, ok := m.(proto.Message)
        if !ok {
            return nil, fmt.Errorf("proto: value does not implement proto.Message: %T", m)
        }
        return mo.Marshal(msg)
    }
    d := func(p []byte) (any, error) {
        msg := newM()
        if err := uo.Unmarshal(p, msg); err != nil {
            return nil, err
        }
        return msg, nil
    }
    return s, d
}
