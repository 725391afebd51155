package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/repositories/memory"
)

func newSnapshotFixture(t *testing.T) (SnapshotBuilder, *memory.ProductStore) {
	t.Helper()
	store := memory.NewProductStore(func() time.Time { return fixedNow })
	store.Put(domain.Product{
		ID:             "P1",
		Name:           "Runner One",
		Price:          12000,
		Currency:       "usd",
		Images:         []string{"a.jpg", "b.jpg"},
		AvailableSizes: []string{"9", "10"},
		IsAvailable:    true,
		SizeStock:      map[string]int{"9": 2, "10": 0},
	})
	store.Put(domain.Product{
		ID:             "P2",
		Name:           "Retired",
		Price:          5000,
		Currency:       "USD",
		AvailableSizes: []string{"9"},
		SizeStock:      map[string]int{"9": 5},
	})
	store.Put(domain.Product{
		ID:             "P3",
		Name:           "Import",
		Price:          9000,
		Currency:       "EUR",
		AvailableSizes: []string{"42"},
		IsAvailable:    true,
		SizeStock:      map[string]int{"42": 5},
	})
	ledger, err := NewStockLedger(StockLedgerDeps{Repository: store})
	if err != nil {
		t.Fatalf("NewStockLedger: %v", err)
	}
	builder, err := NewSnapshotBuilder(SnapshotBuilderDeps{Catalog: store, Ledger: ledger})
	if err != nil {
		t.Fatalf("NewSnapshotBuilder: %v", err)
	}
	return builder, store
}

func TestSnapshotBuilderFreezesCatalogData(t *testing.T) {
	builder, _ := newSnapshotFixture(t)

	snapshot, err := builder.Build(context.Background(), []domain.CartSelectionLine{
		{ProductID: " P1 ", Size: "9", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if snapshot.Currency != "USD" || snapshot.Subtotal != 24000 {
		t.Fatalf("unexpected snapshot totals: %+v", snapshot)
	}
	if len(snapshot.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(snapshot.Lines))
	}
	got := snapshot.Lines[0]
	if got.ProductID != "P1" || got.Name != "Runner One" || got.Image != "a.jpg" || got.Price != 12000 {
		t.Fatalf("unexpected snapshot line: %+v", got)
	}
}

func TestSnapshotBuilderRejectsUnavailableLines(t *testing.T) {
	cases := []struct {
		name   string
		lines  []domain.CartSelectionLine
		reason string
	}{
		{name: "missing product", lines: []domain.CartSelectionLine{cartLine("NOPE", "9", 1)}, reason: UnavailableProductMissing},
		{name: "inactive product", lines: []domain.CartSelectionLine{cartLine("P2", "9", 1)}, reason: UnavailableProductInactive},
		{name: "size not offered", lines: []domain.CartSelectionLine{cartLine("P1", "11", 1)}, reason: UnavailableSizeNotOffered},
		{name: "size sold out", lines: []domain.CartSelectionLine{cartLine("P1", "10", 1)}, reason: UnavailableOutOfStock},
		{name: "quantity above stock", lines: []domain.CartSelectionLine{cartLine("P1", "9", 3)}, reason: UnavailableOutOfStock},
		{name: "repeated lines exceed stock", lines: []domain.CartSelectionLine{cartLine("P1", "9", 1), cartLine("P1", "9", 2)}, reason: UnavailableOutOfStock},
	}
	builder, _ := newSnapshotFixture(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := builder.Build(context.Background(), tc.lines)
			var unavailable *LineItemUnavailableError
			if !errors.As(err, &unavailable) {
				t.Fatalf("expected line item unavailable, got %v", err)
			}
			if unavailable.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %s", tc.reason, unavailable.Reason)
			}
			if !errors.Is(err, ErrLineItemUnavailable) {
				t.Fatalf("expected sentinel match")
			}
		})
	}
}

func TestSnapshotBuilderMissingStockRecordNamesSize(t *testing.T) {
	catalog := memory.NewProductStore(nil)
	catalog.Put(domain.Product{ID: "P1", Name: "Runner One", Currency: "USD", AvailableSizes: []string{"9"}, IsAvailable: true})
	ledger, err := NewStockLedger(StockLedgerDeps{Repository: memory.NewProductStore(nil)})
	if err != nil {
		t.Fatalf("NewStockLedger: %v", err)
	}
	builder, err := NewSnapshotBuilder(SnapshotBuilderDeps{Catalog: catalog, Ledger: ledger})
	if err != nil {
		t.Fatalf("NewSnapshotBuilder: %v", err)
	}

	_, err = builder.Build(context.Background(), []domain.CartSelectionLine{cartLine("P1", "9", 1)})
	var unavailable *LineItemUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected line item unavailable, got %v", err)
	}
	if unavailable.ProductID != "P1" || unavailable.Size != "9" || unavailable.Reason != UnavailableProductMissing {
		t.Fatalf("unexpected error detail: %+v", unavailable)
	}
}

func TestSnapshotBuilderInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		lines []domain.CartSelectionLine
	}{
		{name: "empty cart"},
		{name: "missing size", lines: []domain.CartSelectionLine{cartLine("P1", "", 1)}},
		{name: "zero quantity", lines: []domain.CartSelectionLine{cartLine("P1", "9", 0)}},
		{name: "mixed currency", lines: []domain.CartSelectionLine{cartLine("P1", "9", 1), cartLine("P3", "42", 1)}},
	}
	builder, _ := newSnapshotFixture(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := builder.Build(context.Background(), tc.lines); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestSnapshotBuilderDoesNotWriteStock(t *testing.T) {
	builder, store := newSnapshotFixture(t)
	if _, err := builder.Build(context.Background(), []domain.CartSelectionLine{cartLine("P1", "9", 2)}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	stock, err := store.Get(context.Background(), "P1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stock.SizeStock["9"] != 2 {
		t.Fatalf("expected stock untouched, got %v", stock.SizeStock)
	}
}
