package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tabletab-order-services/internal/auth"
	"tabletab-order-services/pkg/response"

	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/crypto/bcrypt"
)

type staffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) StaffLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body staffLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || body.Password == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Email and password are required")
		return
	}

	var (
		userID       string
		restaurantID string
		name         pgtype.Text
		passwordHash string
		role         string
	)
	err := h.DB.QueryRow(ctx, `
		select id::text, restaurant_id::text, name, password_hash, role
		from staff_users
		where email = $1
	`, email).Scan(&userID, &restaurantID, &name, &passwordHash, &role)
	if err != nil {
		if isNoRows(err) {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password")
			return
		}
		h.Logger.Error("staff lookup failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Login failed")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(body.Password)) != nil {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password")
		return
	}

	claims := &auth.Claims{
		UserID:       userID,
		Role:         auth.UserRole(role),
		Email:        email,
		RestaurantID: restaurantID,
		Name:         textPtr(name),
	}
	token, err := auth.SignAccessToken(claims, h.Config.JWTSecret, time.Duration(h.Config.JWTExpirySeconds)*time.Second)
	if err != nil {
		h.Logger.Error("token sign failed", zapError(err))
		response.Error(w, http.StatusInternalServerError, "PERSISTENCE_ERROR", "Login failed")
		return
	}

	response.Success(w, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":           userID,
			"email":        email,
			"name":         textPtr(name),
			"role":         role,
			"restaurantId": restaurantID,
		},
	})
}
