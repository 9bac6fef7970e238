package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/client"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Remote is the server side of the cart. Every call returns the server's
// resulting cart, which replaces the local one (last write wins). A call that
// succeeds without a cart returns client.ErrNoCart and the local cart stays.
// Consumers define this interface, not the HTTP implementation.
type Remote interface {
	FetchCart(ctx context.Context) ([]domain.CartItem, error)
	SaveCart(ctx context.Context, items []domain.CartItem) ([]domain.CartItem, error)
	AddItem(ctx context.Context, item domain.CartItem) ([]domain.CartItem, error)
	UpdateItem(ctx context.Context, id string, update client.ItemUpdate) ([]domain.CartItem, error)
	RemoveItem(ctx context.Context, id string) ([]domain.CartItem, error)
	ClearCart(ctx context.Context) ([]domain.CartItem, error)
	MergeCart(ctx context.Context, items []domain.CartItem) ([]domain.CartItem, error)
}

type CartStore interface {
	Items() []domain.CartItem
	IsServerCart() bool
	ReplaceItems(items []domain.CartItem, fromServer bool)
	Reset()
}

type Session interface {
	Authenticated() bool
	Logout()
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

// Syncer mirrors local cart mutations to the backend. Jobs run one at a time
// in submission order on the goroutine running Run, so a login merge always
// completes before the pushes queued after it.
type Syncer struct {
	remote  Remote
	cart    CartStore
	session Session
	log     logrus.FieldLogger

	sfg singleflight.Group

	mu    sync.Mutex
	queue []job
	wake  chan struct{}
}

func New(remote Remote, cart CartStore, session Session, log logrus.FieldLogger) *Syncer {
	return &Syncer{
		remote:  remote,
		cart:    cart,
		session: session,
		log:     log,
		wake:    make(chan struct{}, 1),
	}
}

// Run executes queued jobs until ctx is cancelled. Jobs still queued at that
// point are dropped.
func (s *Syncer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		j, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
			case <-ctx.Done():
				return
			}
			continue
		}
		if err := j.run(ctx); err != nil {
			s.log.WithError(err).WithField("job", j.name).Warn("cart sync failed, keeping local cart")
		}
	}
}

// Flush blocks until every job queued before the call has run. Run must be
// active.
func (s *Syncer) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.enqueue(job{name: "flush", run: func(context.Context) error {
		close(done)
		return nil
	}})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Syncer) enqueue(j job) {
	s.mu.Lock()
	s.queue = append(s.queue, j)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Syncer) next() (job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return job{}, false
	}
	j := s.queue[0]
	s.queue[0] = job{}
	s.queue = s.queue[1:]
	return j, true
}

// FetchRemoteCart replaces the local cart with the server's. Concurrent calls
// share a single request. Without a session it does nothing.
func (s *Syncer) FetchRemoteCart(ctx context.Context) error {
	if !s.session.Authenticated() {
		return nil
	}
	_, err, _ := s.sfg.Do("fetch", func() (interface{}, error) {
		items, err := s.remote.FetchCart(ctx)
		if errors.Is(err, client.ErrNoCart) {
			s.log.Debug("server returned no cart, keeping local cart")
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch cart: %w", err)
		}
		s.adopt(items)
		return nil, nil
	})
	return err
}

// MergeGuestCart sends guest items to the server and adopts the merged cart.
// When the merge fails the server cart is fetched instead and the guest items
// are not retried. A merge acknowledged without a cart is followed by a fetch.
func (s *Syncer) MergeGuestCart(ctx context.Context, guest []domain.CartItem) error {
	if !s.session.Authenticated() {
		return nil
	}
	if len(guest) == 0 {
		return s.FetchRemoteCart(ctx)
	}
	items, err := s.remote.MergeCart(ctx, guest)
	if err == nil {
		s.adopt(items)
		return nil
	}
	if errors.Is(err, client.ErrNoCart) {
		return s.FetchRemoteCart(ctx)
	}
	s.log.WithError(err).WithField("guest_items", len(guest)).
		Warn("failed to merge guest cart, falling back to server cart")
	if fetchErr := s.FetchRemoteCart(ctx); fetchErr != nil {
		return errors.Join(fmt.Errorf("failed to merge cart: %w", err), fetchErr)
	}
	return nil
}

// Login reconciles the local cart with the server once a session exists. A
// guest cart is merged, otherwise the server cart is fetched. The guest items
// are captured now so later local edits do not leak into the merge.
func (s *Syncer) Login() {
	if !s.session.Authenticated() || s.cart.IsServerCart() {
		return
	}
	guest := s.cart.Items()
	if len(guest) == 0 {
		s.enqueue(job{name: "fetch", run: s.FetchRemoteCart})
		return
	}
	s.enqueue(job{name: "merge", run: func(ctx context.Context) error {
		// An earlier merge may have landed while this one was queued.
		if s.cart.IsServerCart() {
			return nil
		}
		return s.MergeGuestCart(ctx, guest)
	}})
}

// Resume reconciles a session restored from storage. A cart that never made
// it to the server is merged as on login, a server cart is refreshed.
func (s *Syncer) Resume() {
	if !s.session.Authenticated() {
		return
	}
	if !s.cart.IsServerCart() {
		s.Login()
		return
	}
	s.enqueue(job{name: "fetch", run: s.FetchRemoteCart})
}

// Logout ends the session and leaves an empty local cart behind.
func (s *Syncer) Logout() {
	s.session.Logout()
	s.cart.Reset()
}

func (s *Syncer) PushItemAdd(item domain.CartItem) {
	s.push("add", func(ctx context.Context) ([]domain.CartItem, error) {
		return s.remote.AddItem(ctx, item)
	})
}

func (s *Syncer) PushItemUpdate(id string, qty int) {
	s.push("update", func(ctx context.Context) ([]domain.CartItem, error) {
		return s.remote.UpdateItem(ctx, id, client.ItemUpdate{Quantity: qty})
	})
}

func (s *Syncer) PushItemRemove(id string) {
	s.push("remove", func(ctx context.Context) ([]domain.CartItem, error) {
		return s.remote.RemoveItem(ctx, id)
	})
}

func (s *Syncer) PushClear() {
	s.push("clear", s.remote.ClearCart)
}

// PushSave uploads the whole local cart as it is right now.
func (s *Syncer) PushSave() {
	items := s.cart.Items()
	s.push("save", func(ctx context.Context) ([]domain.CartItem, error) {
		return s.remote.SaveCart(ctx, items)
	})
}

func (s *Syncer) push(name string, call func(ctx context.Context) ([]domain.CartItem, error)) {
	if !s.session.Authenticated() {
		return
	}
	s.enqueue(job{name: name, run: func(ctx context.Context) error {
		// The session may have ended while the job was queued.
		if !s.session.Authenticated() {
			return nil
		}
		items, err := call(ctx)
		if errors.Is(err, client.ErrNoCart) {
			s.log.WithField("job", name).Debug("server returned no cart, keeping local cart")
			return nil
		}
		if err != nil {
			return err
		}
		s.adopt(items)
		return nil
	}})
}

func (s *Syncer) adopt(items []domain.CartItem) {
	if !s.session.Authenticated() {
		return
	}
	s.cart.ReplaceItems(items, true)
}
