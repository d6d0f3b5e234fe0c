package handlers

import (
	"net/http"

	"tabletab-order-services/internal/billing"
	"tabletab-order-services/pkg/response"
)

// InternalSweep runs one expiry sweep on demand. The in-process scheduler
// covers normal operation; this endpoint exists for external schedulers and
// for operators who do not want to wait a tick.
func (h *Handler) InternalSweep(w http.ResponseWriter, r *http.Request) {
	result, err := billing.SweepExpired(r.Context(), h.DB, h.Logger)
	if err != nil {
		h.Logger.Error("sweep failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Sweep failed")
		return
	}
	response.Success(w, result)
}
