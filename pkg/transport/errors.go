package transport

import "errors"

var (
    // ErrInvalidTransport reports an endpoint whose kind does not match the
    // component it was handed to, or whose fields are malformed for its kind.
    ErrInvalidTransport = errors.New("transport: invalid endpoint")

    // ErrAlreadyBound is returned by Bind while a previous bind on the same
    // acceptor is still active or its accept loop has not fully stopped.
    ErrAlreadyBound = errors.New("transport: already bound")

    // ErrAlreadyRegistered is returned when a second accepter registers for
    // an in-process endpoint that already has one.
    ErrAlreadyRegistered = errors.New("transport: accepter already registered")

    // ErrNotListening is returned by an in-process Connect when no accepter
    // is registered for the endpoint.
    ErrNotListening = errors.New("transport: no accepter listening")

    // ErrConnClosed reports that the byte stream ended, either cleanly or
    // mid-frame. Loops treat it as expected shutdown.
    ErrConnClosed = errors.New("transport: connection closed")
)
