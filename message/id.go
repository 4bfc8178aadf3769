package message

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is the correlation identifier carried by every request and echoed by its
// response. On the wire the printer uses the braced canonical form
// "{xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx}".
type ID uuid.UUID

// NewID returns a time-ordered (version 1) identifier.
func NewID() (ID, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return ID{}, err
	}
	return ID(id), nil
}

// ParseID accepts the braced or the bare canonical form and nothing else.
func ParseID(s string) (ID, error) {
	raw := s
	if len(s) == 38 && s[0] == '{' && s[37] == '}' {
		raw = s[1:37]
	}
	if len(raw) != 36 {
		return ID{}, fmt.Errorf("message: invalid id %q", s)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return ID{}, fmt.Errorf("message: invalid id %q: %w", s, err)
	}
	return ID(id), nil
}

// String returns the bare canonical form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Braced returns the wire form.
func (id ID) Braced() string {
	return "{" + id.String() + "}"
}

func (id ID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.Braced()), nil
}

func (id *ID) UnmarshalText(data []byte) error {
	parsed, err := ParseID(strings.TrimSpace(string(data)))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
