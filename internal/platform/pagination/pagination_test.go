package pagination

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestTokenRoundTripKeepsTime(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2025, 5, 1, 10, 0, 0, 123, time.UTC), ID: "ord_1"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !decoded.CreatedAt.Equal(cursor.CreatedAt) || decoded.ID != cursor.ID {
		t.Fatalf("unexpected cursor %+v", decoded)
	}
	if token, _ := EncodeToken(Cursor{}); token != "" {
		t.Fatalf("expected empty token for zero cursor, got %q", token)
	}
}

func TestParse(t *testing.T) {
	params, err := Parse(url.Values{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", params.PageSize)
	}

	params, err = Parse(url.Values{"page_size": {"500"}})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.PageSize != MaxPageSize {
		t.Fatalf("expected clamp to %d, got %d", MaxPageSize, params.PageSize)
	}

	if _, err := Parse(url.Values{"page_size": {"-1"}}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected invalid page size, got %v", err)
	}
	if _, err := Parse(url.Values{"page_token": {"%%%"}}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
