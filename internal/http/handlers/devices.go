package handlers

import (
	"encoding/json"
	"net/http"

	"tabletab-order-services/internal/device"
	"tabletab-order-services/pkg/response"
)

// PublicDeviceRegister hands out (or echoes back) a device identifier. The id
// is a filtering hint for "my orders", not an authentication credential, so
// there is nothing to persist server-side.
func (h *Handler) PublicDeviceRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DeviceID *string `json:"deviceId"`
	}
	// An empty body is a valid "mint me one" request.
	_ = json.NewDecoder(r.Body).Decode(&body)

	response.Success(w, map[string]any{
		"deviceId": device.OrNew(body.DeviceID),
	})
}
