package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/reconcile"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const DefaultInterval = 30 * time.Second

// ProductSource fetches the full product catalog.
type ProductSource interface {
	Products(ctx context.Context) ([]domain.Product, error)
}

// CatalogPoller owns the latest catalog snapshot and refreshes it on an
// interval.
type CatalogPoller struct {
	source   ProductSource
	notifier reconcile.Notifier
	interval time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	sfg singleflight.Group

	mu      sync.RWMutex
	current domain.Catalog
	updates chan domain.Catalog
}

func NewCatalogPoller(source ProductSource, notifier reconcile.Notifier, interval time.Duration, log logrus.FieldLogger) *CatalogPoller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &CatalogPoller{
		source:   source,
		notifier: notifier,
		interval: interval,
		log:      log,
		now:      time.Now,
		updates:  make(chan domain.Catalog, 1),
	}
}

// Current returns the latest snapshot. The zero Catalog means nothing has
// been fetched yet.
func (p *CatalogPoller) Current() domain.Catalog {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return domain.Catalog{
		Products:  append([]domain.Product(nil), p.current.Products...),
		FetchedAt: p.current.FetchedAt,
	}
}

// Updates delivers each new snapshot. Only the most recent undelivered
// snapshot is kept.
func (p *CatalogPoller) Updates() <-chan domain.Catalog {
	return p.updates
}

// Refresh fetches the catalog now. On failure the previous snapshot is kept.
func (p *CatalogPoller) Refresh(ctx context.Context) error {
	_, err, _ := p.sfg.Do("products", func() (interface{}, error) {
		products, err := p.source.Products(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh catalog: %w", err)
		}
		p.apply(ctx, products)
		return nil, nil
	})
	if err != nil {
		p.log.WithError(err).Warn("keeping previous catalog")
	}
	return err
}

func (p *CatalogPoller) apply(ctx context.Context, products []domain.Product) {
	next := domain.Catalog{Products: products, FetchedAt: p.now().UTC()}

	p.mu.Lock()
	changes := diffStock(p.current.Products, products)
	p.current = next
	p.mu.Unlock()

	p.publish(next)

	notices := reconcile.Classify(changes, reconcile.ClassifyCatalog)
	if len(notices) == 0 || p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, notices...); err != nil {
		p.log.WithError(err).Warn("failed to deliver catalog notices")
	}
}

func (p *CatalogPoller) publish(c domain.Catalog) {
	for {
		select {
		case p.updates <- c:
			return
		default:
		}
		// Drop the stale snapshot nobody picked up yet.
		select {
		case <-p.updates:
		default:
		}
	}
}

// Run refreshes immediately if no catalog is loaded, then on every tick until
// ctx is done.
func (p *CatalogPoller) Run(ctx context.Context) {
	if p.Current().FetchedAt.IsZero() {
		_ = p.Refresh(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Refresh(ctx)
		}
	}
}

// diffStock reports stock changes for products present in both lists.
func diffStock(prev, next []domain.Product) []domain.StockChange {
	if len(prev) == 0 {
		return nil
	}
	old := make(map[string]int, len(prev))
	for _, p := range prev {
		old[p.ID] = p.AvailableStock()
	}
	var changes []domain.StockChange
	for _, p := range next {
		stock, ok := old[p.ID]
		if !ok || stock == p.AvailableStock() {
			continue
		}
		changes = append(changes, domain.StockChange{
			ProductID: p.ID,
			Name:      p.Name,
			OldStock:  stock,
			NewStock:  p.AvailableStock(),
		})
	}
	return changes
}
