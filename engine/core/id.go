package core

import (
	"errors"
	"fmt"

	"github.com/segmentio/ksuid"
)

// ID identifies a task or a locally generated record. Server-assigned task ids are
// opaque; only locally generated ids are guaranteed to be KSUIDs.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == ""
}

// NewID generates a new KSUID-backed identifier.
func NewID() (ID, error) {
	k, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}
	return ID(k.String()), nil
}

func MustNewID() ID {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}

// ParseID validates a locally generated KSUID string.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", errors.New("empty ID")
	}
	k, err := ksuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID format: %w", err)
	}
	return ID(k.String()), nil
}
