package repository

import (
	"context"
	"errors"
)

var ErrSlotEmpty = errors.New("slot is empty")

// Slot is a durable key-value slot holding one serialized blob per key.
// Consumers define this interface; drivers live next to it.
type Slot interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
