package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"taskapi/internal/repository"
	"taskapi/internal/service"
)

const (
	bearerPrefix = "Bearer "
	userIDKey    = "userID"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required,notblank"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	UserID  string `json:"userId"`
}

// requireAuth rejects requests without a valid bearer token and stores the
// token subject on the context for downstream handlers.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), bearerPrefix)
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "No token, authorization denied."})
			return
		}

		userID, err := h.tokens.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Token is not valid."})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserIDFromContext returns the authenticated user id set by the auth middleware.
func UserIDFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDKey)
	return userID, userID != ""
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Please enter all fields.")
		return
	}

	session, err := h.users.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserAlreadyExists):
			respondMessage(c, http.StatusBadRequest, "User with this email already exists.")
		case errors.Is(err, service.ErrEmailRequired):
			respondMessage(c, http.StatusBadRequest, "Please enter all fields.")
		case errors.Is(err, service.ErrPasswordTooShort):
			respondMessage(c, http.StatusBadRequest, "Password must be at least 8 characters.")
		default:
			h.respondServerError(c, err, "Server error during registration.")
		}
		return
	}

	c.JSON(http.StatusCreated, sessionResponse{
		Message: "User registered successfully.",
		Token:   session.Token,
		UserID:  session.UserID,
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Please enter all fields.")
		return
	}

	session, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondMessage(c, http.StatusBadRequest, "Invalid credentials.")
		case errors.Is(err, service.ErrEmailRequired):
			respondMessage(c, http.StatusBadRequest, "Please enter all fields.")
		default:
			h.respondServerError(c, err, "Server error during login.")
		}
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		Message: "Logged in successfully.",
		Token:   session.Token,
		UserID:  session.UserID,
	})
}

func (h *Handler) me(c *gin.Context) {
	userID, ok := UserIDFromContext(c)
	if !ok {
		respondMessage(c, http.StatusUnauthorized, "User ID not found in request (authentication error).")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondMessage(c, http.StatusNotFound, "User not found.")
			return
		}
		h.respondServerError(c, err, "Failed to retrieve user.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"email":     user.Email,
		"createdAt": user.CreatedAt.Format(time.RFC3339),
	})
}
