package domain

// StockChange records a stock difference observed between a cached value and
// the latest catalog.
type StockChange struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	OldStock  int    `json:"oldStock"`
	NewStock  int    `json:"newStock"`
}

func (c StockChange) Increased() bool {
	return c.NewStock > c.OldStock
}
