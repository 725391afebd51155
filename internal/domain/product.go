package domain

import (
	"maps"
	"slices"
	"time"
)

// Product is the catalog view consumed by checkout. Catalog CRUD lives elsewhere; this
// service only reads products and mutates their per-size stock counters.
type Product struct {
	ID             string
	Name           string
	Price          int64
	Currency       string
	Images         []string
	AvailableSizes []string
	IsAvailable    bool
	SizeStock      map[string]int
	TotalStock     int
	InStock        bool
	UpdatedAt      time.Time
	// StockVersion is the ledger version last copied onto the catalog record. Zero when the ledger
	// writes the catalog record directly.
	StockVersion int64
}

// OffersSize reports whether size is one of the product's available sizes.
func (p Product) OffersSize(size string) bool {
	return slices.Contains(p.AvailableSizes, size)
}

// PrimaryImage returns the first product image or an empty string.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// ProductStock holds the per-size counters of a product together with the derived totals.
type ProductStock struct {
	ProductID  string
	SizeStock  map[string]int
	TotalStock int
	InStock    bool
	UpdatedAt  time.Time
	// Version increases with every ledger write on backends that keep stock apart from the catalog.
	Version int64
}

// Available returns the current count for size (zero when the size is unknown).
func (s ProductStock) Available(size string) int {
	return s.SizeStock[size]
}

// Recalculate refreshes TotalStock and InStock from SizeStock.
func (s *ProductStock) Recalculate() {
	total := 0
	for _, count := range s.SizeStock {
		total += count
	}
	s.TotalStock = total
	s.InStock = total > 0
}

// Clone returns a deep copy of the stock record.
func (s ProductStock) Clone() ProductStock {
	s.SizeStock = maps.Clone(s.SizeStock)
	return s
}

// StockLine identifies a quantity of one product size. It is the unit the stock ledger
// reserves and releases.
type StockLine struct {
	ProductID string
	Size      string
	Quantity  int
}
