package domain

import "time"

// Catalog is a product list as fetched at FetchedAt.
type Catalog struct {
	Products  []Product
	FetchedAt time.Time
}

func (c Catalog) Loaded() bool {
	return !c.FetchedAt.IsZero() && len(c.Products) > 0
}

func (c Catalog) Find(id string) (Product, bool) {
	for _, p := range c.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
