package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/sirupsen/logrus"
)

const DefaultInterval = 60 * time.Second

type State int32

const (
	Idle State = iota
	Skip
	Comparing
	Notifying
)

func (s State) String() string {
	switch s {
	case Skip:
		return "skip"
	case Comparing:
		return "comparing"
	case Notifying:
		return "notifying"
	default:
		return "idle"
	}
}

type Trigger string

const (
	TriggerCatalog    Trigger = "catalog_refreshed"
	TriggerTimer      Trigger = "timer"
	TriggerCartFilled Trigger = "cart_filled"
	TriggerManual     Trigger = "manual"
)

// Cart is the part of the cart store reconciliation drives.
type Cart interface {
	Len() int
	LastValidated() (time.Time, bool)
	Validate(catalog []domain.Product) []domain.StockChange
	TakeStockChanges() []domain.StockChange
	Filled() <-chan struct{}
}

// Catalog supplies the latest product snapshot and announces new ones.
type Catalog interface {
	Current() domain.Catalog
	Updates() <-chan domain.Catalog
}

// Result describes one reconciliation cycle. State is the furthest state the
// cycle reached before returning to Idle.
type Result struct {
	Trigger Trigger
	State   State
	Reason  string
	Changes []domain.StockChange
	Notices []Notice
}

type Reconciler struct {
	cart     Cart
	catalog  Catalog
	notifier Notifier
	interval time.Duration
	log      logrus.FieldLogger

	state atomic.Int32
}

func New(cart Cart, catalog Catalog, notifier Notifier, interval time.Duration, log logrus.FieldLogger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		cart:     cart,
		catalog:  catalog,
		notifier: notifier,
		interval: interval,
		log:      log,
	}
}

// State reports where the reconciler currently is.
func (r *Reconciler) State() State {
	return State(r.state.Load())
}

// Cycle runs one reconciliation pass. Callers must not run cycles
// concurrently; Run serializes its own triggers.
func (r *Reconciler) Cycle(ctx context.Context, trigger Trigger) Result {
	defer r.state.Store(int32(Idle))
	res := Result{Trigger: trigger}

	catalog := r.catalog.Current()
	if reason := r.skipReason(catalog); reason != "" {
		r.state.Store(int32(Skip))
		res.State, res.Reason = Skip, reason
		return res
	}

	r.state.Store(int32(Comparing))
	res.State = Comparing
	res.Changes = r.cart.Validate(catalog.Products)

	r.state.Store(int32(Notifying))
	res.State = Notifying
	res.Notices = Classify(res.Changes, ClassifyCart)
	if len(res.Notices) > 0 && r.notifier != nil {
		if err := r.notifier.Notify(ctx, res.Notices...); err != nil {
			r.log.WithError(err).Warn("failed to deliver stock notices")
		}
	}
	r.cart.TakeStockChanges()
	return res
}

func (r *Reconciler) skipReason(catalog domain.Catalog) string {
	if r.cart.Len() == 0 {
		return "cart is empty"
	}
	if !catalog.Loaded() {
		return "catalog not loaded"
	}
	if validated, ok := r.cart.LastValidated(); ok && !catalog.FetchedAt.After(validated) {
		return "catalog not newer than last validation"
	}
	return ""
}

// Run reconciles on every catalog update, on a timer and whenever the cart
// goes from empty to non-empty, until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	updates := r.catalog.Updates()
	filled := r.cart.Filled()
	for {
		var trigger Trigger
		select {
		case <-ctx.Done():
			return
		case <-updates:
			trigger = TriggerCatalog
		case <-ticker.C:
			trigger = TriggerTimer
		case <-filled:
			trigger = TriggerCartFilled
		}

		res := r.Cycle(ctx, trigger)
		r.log.WithFields(logrus.Fields{
			"trigger": res.Trigger,
			"state":   res.State.String(),
			"reason":  res.Reason,
			"changes": len(res.Changes),
			"notices": len(res.Notices),
		}).Debug("reconciliation cycle finished")
	}
}
