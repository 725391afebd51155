package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solestore/api/internal/platform/auth"
	"github.com/solestore/api/internal/platform/httpx"
	"github.com/solestore/api/internal/services"
)

// InternalOrderHandlers serves automation callers authenticated with Google-signed OIDC tokens.
// The OIDC middleware is applied by the router group.
type InternalOrderHandlers struct {
	bulk services.BulkTransitionCoordinator
}

func NewInternalOrderHandlers(bulk services.BulkTransitionCoordinator) *InternalOrderHandlers {
	return &InternalOrderHandlers{bulk: bulk}
}

// Routes registers the /internal endpoints.
func (h *InternalOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:bulk-status", h.bulkUpdateStatus)
}

func (h *InternalOrderHandlers) bulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.ServiceIdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError(httpx.CodeUnauthenticated, "service identity required", http.StatusUnauthorized))
		return
	}
	actor := strings.TrimSpace(identity.Subject)
	if actor == "" {
		actor = strings.TrimSpace(identity.Email)
	}
	serveBulkStatus(w, r, h.bulk, "service:"+actor)
}
