package codec

import (
    cbor "github.com/fxamacker/cbor/v2"
)

// CBOR returns a serializer/deserializer pair for T using deterministic
// CBOR (RFC 8949, core profile). The deserializer yields *T.
func CBOR[T any]() (Serializer, Deserializer, error) {
    em, err := cbor.CanonicalEncOptions().EncMode()
    if err != nil {
        return nil, nil, err
    }
    dm, err := cbor.DecOptions{}.DecMode()
    if err != nil {
        return nil, nil, err
    }
    s := func(m any) ([]byte, error) { return em.Marshal(m) }
    d := func(p []byte) (any, error) {
        v := new(T)
        if err := dm.Unmarshal(p, v); err != nil {
            return nil, err
        }
        return v, nil
    }
    return s, d, nil
}
