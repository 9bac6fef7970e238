package persistence

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/session"
)

// SessionKey holds the signed-in user between runs.
const SessionKey = "session"

func (b *Bridge) SaveUser(ctx context.Context, user session.User) error {
	blob, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return b.slot.Write(ctx, SessionKey, blob)
}

// LoadUser returns the stored user. A missing or unreadable record means
// nobody is signed in.
func (b *Bridge) LoadUser(ctx context.Context) (session.User, bool) {
	blob, err := b.slot.Read(ctx, SessionKey)
	if err != nil {
		if !errors.Is(err, repository.ErrSlotEmpty) {
			b.log.WithError(err).Warn("failed to load session")
		}
		return session.User{}, false
	}
	var user session.User
	if err := json.Unmarshal(blob, &user); err != nil || user.Token == "" {
		b.log.Warn("discarding malformed stored session")
		return session.User{}, false
	}
	return user, true
}

func (b *Bridge) ClearUser(ctx context.Context) error {
	return b.slot.Delete(ctx, SessionKey)
}
