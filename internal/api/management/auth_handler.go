package management

import (
	"net/http"
	"time"

	"github.com/CaioWing/iotgateway/internal/api/middleware"
	"github.com/CaioWing/iotgateway/internal/api/response"
	"github.com/CaioWing/iotgateway/internal/auth"
)

type AuthHandler struct {
	jwtMgr *auth.JWTManager
	admin  *auth.Admin
}

func NewAuthHandler(jwtMgr *auth.JWTManager, admin *auth.Admin) *AuthHandler {
	return &AuthHandler{jwtMgr: jwtMgr, admin: admin}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.admin.Verify(req.Email, req.Password) {
		response.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issue(w, "admin")
}

// Refresh generates a new JWT token for an already authenticated user.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		response.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}
	h.issue(w, userID)
}

func (h *AuthHandler) issue(w http.ResponseWriter, userID string) {
	token, expiresAt, err := h.jwtMgr.Generate(userID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	response.JSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}
