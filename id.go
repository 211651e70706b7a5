package mailqueue

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is a UUID v7 email identifier stored as 16 raw bytes.
//
//nolint:recvcheck // Scan requires a pointer receiver, Value uses value receiver for driver.Valuer.
type ID [16]byte

// IsZero reports whether the ID is all zeros.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String returns the canonical UUID string representation.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed

	return nil
}

// Scan implements sql.Scanner for BINARY(16), UUID and textual columns.
// NULL is treated as ErrInvalidID.
func (id *ID) Scan(src any) error {
	switch value := src.(type) {
	case nil:
		return ErrInvalidID
	case []byte:
		if len(value) == len(id) {
			copy(id[:], value)

			return nil
		}

		return id.UnmarshalText(value)
	case string:
		return id.UnmarshalText([]byte(value))
	default:
		return fmt.Errorf("mailqueue: unsupported id type %T: %w", src, ErrInvalidID)
	}
}

// Value implements driver.Valuer for BINARY(16).
func (id ID) Value() (driver.Value, error) {
	return id[:], nil
}

// ParseID parses a canonical or 32 hex UUID string into an ID.
func ParseID(value string) (ID, error) {
	if len(value) != 36 && len(value) != 32 {
		return ID{}, ErrInvalidID
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return ID{}, ErrInvalidID
	}

	return ID(parsed), nil
}

// IDGenerator creates new identifiers.
type IDGenerator interface {
	// New returns a new identifier.
	New() (ID, error)
}

// UUIDv7Generator produces time-ordered UUID v7 identifiers.
type UUIDv7Generator struct{}

// New creates a new UUID v7 identifier.
func (UUIDv7Generator) New() (ID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return ID{}, fmt.Errorf("mailqueue: generate id: %w", err)
	}

	return ID(id), nil
}
