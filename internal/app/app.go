package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/cartsync"
	"github.com/fjod/go_cart/storefront/internal/client"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/persistence"
	"github.com/fjod/go_cart/storefront/internal/poller"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/reconcile"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrUnknownProduct = errors.New("product not found in catalog")

// App is the assembled storefront client.
type App struct {
	Store      *store.Store
	Session    *session.Session
	Client     *client.Client
	Syncer     *cartsync.Syncer
	Catalog    *poller.CatalogPoller
	Reconciler *reconcile.Reconciler
	Checkout   *service.CheckoutService

	slot      repository.Slot
	bridge    *persistence.Bridge
	publisher *publisher.NoticePublisher
	log       logrus.FieldLogger

	// syncCtx is the context the sync worker started by Start runs under.
	syncCtx context.Context
}

// New restores the persisted cart and session and wires every component.
// Extra notifiers receive stock notices alongside the log.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, notifiers ...reconcile.Notifier) (*App, error) {
	slot, err := OpenSlot(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return Assemble(ctx, cfg, slot, log, notifiers...), nil
}

// Assemble wires the app around an already opened slot. The app takes
// ownership of the slot.
func Assemble(ctx context.Context, cfg *config.Config, slot repository.Slot, log logrus.FieldLogger, notifiers ...reconcile.Notifier) *App {
	a := &App{slot: slot, log: log}
	a.bridge = persistence.NewBridge(slot, log)

	a.Session = session.New()
	if user, ok := a.bridge.LoadUser(ctx); ok {
		_ = a.Session.Login(user)
	}
	a.Store = store.New(a.bridge.Load(ctx), a.bridge, store.WithLogger(log))

	a.Client = client.New(client.Config{
		BaseURL:         cfg.APIURL,
		Timeout:         cfg.RequestTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, a.Session, log)
	a.Syncer = cartsync.New(a.Client, a.Store, a.Session, log)

	notifier := reconcile.Multi{reconcile.LogNotifier{Log: log}}
	for _, n := range notifiers {
		notifier = append(notifier, n)
	}
	if len(cfg.KafkaBrokers) > 0 {
		a.publisher = publisher.NewNoticePublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		notifier = append(notifier, a.publisher)
	}

	a.Catalog = poller.NewCatalogPoller(a.Client, notifier, cfg.PollInterval, log)
	a.Reconciler = reconcile.New(a.Store, a.Catalog, notifier, cfg.ValidateInterval, log)
	a.Checkout = service.NewCheckoutService(a.Client, a.Store, a.Syncer, a.Session, cfg.ShippingAddress, log)
	return a
}

// Start runs the sync worker until ctx is done. A restored session is
// reconciled with the server first.
func (a *App) Start(ctx context.Context) {
	a.syncCtx = ctx
	a.Syncer.Resume()
	go a.Syncer.Run(ctx)
}

// Watch keeps the catalog fresh and the cart reconciled until ctx is done.
// Remote sync needs the worker started by Start.
func (a *App) Watch(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Catalog.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.Reconciler.Run(ctx)
		return nil
	})
	return g.Wait()
}

func (a *App) Login(ctx context.Context, user session.User) error {
	if err := a.Session.Login(user); err != nil {
		return err
	}
	if err := a.bridge.SaveUser(ctx, user); err != nil {
		a.log.WithError(err).Warn("failed to persist session")
	}
	a.Syncer.Login()
	return nil
}

func (a *App) Logout(ctx context.Context) {
	a.Syncer.Logout()
	if err := a.bridge.ClearUser(ctx); err != nil {
		a.log.WithError(err).Warn("failed to clear stored session")
	}
}

// AddToCart adds qty units of a catalog product. The catalog is fetched if it
// has not been loaded yet.
func (a *App) AddToCart(ctx context.Context, productID string, qty int) (store.Mutation, error) {
	product, err := a.lookup(ctx, productID)
	if err != nil {
		return store.Mutation{}, err
	}

	existed := false
	for _, item := range a.Store.Items() {
		if item.ID == productID {
			existed = true
		}
	}

	m := a.Store.AddItem(product, qty)
	// A new line that is out of stock stays local.
	switch {
	case !m.Applied:
	case existed:
		a.Syncer.PushItemUpdate(productID, m.Item.Quantity)
	case m.Item.Quantity > 0:
		a.Syncer.PushItemAdd(m.Item)
	}
	return m, nil
}

func (a *App) RemoveFromCart(productID string) bool {
	if !a.Store.RemoveItem(productID) {
		return false
	}
	a.Syncer.PushItemRemove(productID)
	return true
}

func (a *App) SetQuantity(productID string, qty int) store.Mutation {
	m := a.Store.SetQuantity(productID, qty)
	if m.Applied {
		a.Syncer.PushItemUpdate(productID, m.Item.Quantity)
	}
	return m
}

func (a *App) ClearCart() {
	a.Store.Clear()
	a.Syncer.PushClear()
}

// Reconcile refreshes the catalog and runs one reconciliation pass.
func (a *App) Reconcile(ctx context.Context) (reconcile.Result, error) {
	if err := a.Catalog.Refresh(ctx); err != nil {
		return reconcile.Result{}, err
	}
	return a.Reconciler.Cycle(ctx, reconcile.TriggerManual), nil
}

func (a *App) lookup(ctx context.Context, productID string) (domain.Product, error) {
	if !a.Catalog.Current().Loaded() {
		if err := a.Catalog.Refresh(ctx); err != nil {
			return domain.Product{}, err
		}
	}
	product, ok := a.Catalog.Current().Find(productID)
	if !ok {
		return domain.Product{}, fmt.Errorf("%s: %w", productID, ErrUnknownProduct)
	}
	return product, nil
}

// Close waits for queued sync jobs while the worker started by Start is
// still running, then releases storage and brokers.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.syncCtx != nil && a.syncCtx.Err() == nil {
		if err := a.Syncer.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush cart sync: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.slot.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
