package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/billing-tracker/internal/auth"
	"github.com/sakif/billing-tracker/internal/model"
	"github.com/sakif/billing-tracker/internal/service"
)

// AuthHandler serves registration, login and the current-user endpoint.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → create an account
//   - HandleLogin    → exchange username/password for a bearer token
//   - HandleMe       → return the profile behind the presented token
//
// All rules (required fields, uniqueness, credential checks) live in
// service.AuthService; this type only translates between HTTP and it.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type registerRequest struct {
	Username string `json:"username" validate:"max=64"`
	Password string `json:"password" validate:"max=72"`
	Name     string `json:"name"     validate:"max=100"`
}

type loginRequest struct {
	Username string `json:"username" validate:"max=64"`
	Password string `json:"password" validate:"max=72"`
}

// userSummary is the user part of the login response.
type userSummary struct {
	Name     string     `json:"name"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
}

type loginResponse struct {
	Success bool        `json:"success"`
	Token   string      `json:"token"`
	User    userSummary `json:"user"`
}

type meResponse struct {
	Success bool        `json:"success"`
	User    *model.User `json:"user"`
}

// HandleRegister creates a new account.
//
// HTTP: POST /api/auth/register
// Body: {"username": "...", "password": "...", "name": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if _, err := h.auth.Register(r.Context(), req.Username, req.Password, req.Name); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, ok("User created successfully"))
}

// HandleLogin checks the credentials and returns a bearer token.
//
// HTTP: POST /api/auth/login
// The client sends the token back as "Authorization: Bearer <token>".
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Token:   result.Token,
		User: userSummary{
			Name:     result.User.Name,
			Username: result.User.Username,
			Role:     result.User.Role,
		},
	})
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/auth/me
// Auth: Required (RequireAuth middleware puts the identity in the context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, okID := identity(w, r)
	if !okID {
		return
	}

	user, err := h.auth.Me(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Success: true, User: user})
}

// identity returns the caller resolved by auth.RequireAuth. On a route
// without that middleware it answers 401 itself and returns false.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, found := auth.IdentityFromContext(r.Context())
	if !found || id.UserID == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: auth.MsgNoToken,
		})
		return auth.Identity{}, false
	}
	return id, true
}
