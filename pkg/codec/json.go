package codec

import (
    "encoding/json"
)

// JSON returns a serializer/deserializer pair for T using JSON (RFC 8259).
// The deserializer yields *T.
func JSON[T any]() (Serializer, Deserializer) {
    s := func(m any) ([]byte, error) { return json.Marshal(m) }
    d := func(p []byte) (any, error) {
        v := new(T)
        if err := json.Unmarshal(p, v); err != nil {
            return nil, err
        }
        return v, nil
    }
    return s, d
}
