// Package codec turns messages into frame payloads and back.
package codec

// Codec serializes messages for the frame layer.
//
// Decode failures must wrap protocol.ErrMalformedMessage so callers can tell
// a bad payload apart from a broken stream.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// Default returns the codec the printer speaks.
func Default() Codec {
	return JSONCodec{}
}
