package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits page_size.
	DefaultPageSize = 50
	// MaxPageSize caps page_size.
	MaxPageSize = 100
)

var ErrInvalidPageSize = errors.New("pagination: invalid page_size")

// Params holds the paging inputs parsed from a query string.
type Params struct {
	PageSize  int
	PageToken string
}

// Parse reads page_size and page_token. Oversized values are clamped to MaxPageSize and the token is
// validated eagerly so malformed input fails before reaching storage.
func Parse(values url.Values) (Params, error) {
	params := Params{PageSize: DefaultPageSize, PageToken: strings.TrimSpace(values.Get("page_token"))}

	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
		}
		if size <= 0 {
			return Params{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
		}
		params.PageSize = min(size, MaxPageSize)
	}

	if _, err := DecodeToken(params.PageToken); err != nil {
		return Params{}, err
	}
	return params, nil
}

// Normalize clamps a page size coming from a service caller.
func Normalize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	return min(size, MaxPageSize)
}
