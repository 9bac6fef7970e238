package reconcile

import (
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type Kind string

const (
	OutOfStock  Kind = "out_of_stock"
	LowStock    Kind = "low_stock"
	BackInStock Kind = "back_in_stock"
	Restocked   Kind = "restocked"
)

type Severity int

const (
	Info Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "info"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = Info
	case "warning":
		*s = Warning
	case "critical":
		*s = Critical
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Source tells whether a notice concerns an item in the cart or the catalog
// at large.
type Source string

const (
	SourceCart    Source = "cart"
	SourceCatalog Source = "catalog"
)

const (
	lowStockThreshold = 5
	restockDelta      = 5
)

// Notice is a human-readable stock change worth telling the shopper about.
type Notice struct {
	Kind      Kind     `json:"kind"`
	Severity  Severity `json:"severity"`
	Source    Source   `json:"source"`
	ProductID string   `json:"productId"`
	Name      string   `json:"name"`
	OldStock  int      `json:"oldStock"`
	NewStock  int      `json:"newStock"`
	Message   string   `json:"message"`
}

// ClassifyCart decides whether a change to an item already in the cart should
// be surfaced. Any drop to five units or fewer is reported since the cart
// quantity may have been adjusted.
func ClassifyCart(c domain.StockChange) (Notice, bool) {
	n := newNotice(SourceCart, c)
	switch {
	case c.NewStock < c.OldStock && c.NewStock == 0:
		n.Kind, n.Severity = OutOfStock, Critical
		n.Message = fmt.Sprintf("%s is now out of stock! We've adjusted your cart.", c.Name)
	case c.NewStock < c.OldStock && c.NewStock <= lowStockThreshold:
		n.Kind, n.Severity = LowStock, Warning
		n.Message = fmt.Sprintf("Only %d units of %s remain in stock. We've adjusted your cart.", c.NewStock, c.Name)
	case c.Increased() && c.OldStock == 0:
		n.Kind, n.Severity = BackInStock, Info
		n.Message = fmt.Sprintf("%s is back in stock!", c.Name)
	case c.Increased() && c.NewStock-c.OldStock >= restockDelta:
		n.Kind, n.Severity = Restocked, Info
		n.Message = fmt.Sprintf("%s has been restocked (%d now available)", c.Name, c.NewStock)
	default:
		return Notice{}, false
	}
	return n, true
}

// ClassifyCatalog is ClassifyCart for products the shopper is only browsing.
// Low stock is reported only when the threshold is first crossed.
func ClassifyCatalog(c domain.StockChange) (Notice, bool) {
	n := newNotice(SourceCatalog, c)
	switch {
	case c.NewStock < c.OldStock && c.NewStock == 0:
		n.Kind, n.Severity = OutOfStock, Critical
		n.Message = fmt.Sprintf("%s is now out of stock!", c.Name)
	case c.NewStock < c.OldStock && c.NewStock <= lowStockThreshold && c.OldStock > lowStockThreshold:
		n.Kind, n.Severity = LowStock, Warning
		n.Message = fmt.Sprintf("%s is running low! Only %d left in stock.", c.Name, c.NewStock)
	case c.Increased() && c.OldStock == 0:
		n.Kind, n.Severity = BackInStock, Info
		n.Message = fmt.Sprintf("%s is back in stock! (%d available)", c.Name, c.NewStock)
	case c.Increased() && c.NewStock-c.OldStock >= restockDelta:
		n.Kind, n.Severity = Restocked, Info
		n.Message = fmt.Sprintf("%s has been restocked! (%d -> %d)", c.Name, c.OldStock, c.NewStock)
	default:
		return Notice{}, false
	}
	return n, true
}

func newNotice(src Source, c domain.StockChange) Notice {
	return Notice{
		Source:    src,
		ProductID: c.ProductID,
		Name:      c.Name,
		OldStock:  c.OldStock,
		NewStock:  c.NewStock,
	}
}

// Classify applies classify to every change and keeps the ones worth
// surfacing, in order.
func Classify(changes []domain.StockChange, classify func(domain.StockChange) (Notice, bool)) []Notice {
	var notices []Notice
	for _, c := range changes {
		if n, ok := classify(c); ok {
			notices = append(notices, n)
		}
	}
	return notices
}
