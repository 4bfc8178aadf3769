package codec

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"form2idle/protocol"
)

// JSONCodec encodes messages as UTF-8 JSON text, the only payload format the
// printer understands.
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", v, err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte, v any) error {
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: payload is not valid UTF-8", protocol.ErrMalformedMessage)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrMalformedMessage, err)
	}
	return nil
}

func (JSONCodec) Name() string {
	return "json"
}
