package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/luishsr/rustvm/pkg/logger"
	"github.com/luishsr/rustvm/pkg/store"
)

// Accounts is the subset of the store the auth handlers need.
type Accounts interface {
	Authenticate(username, password string) error
	CreateUser(username, password string) error
}

var accounts Accounts

// SetAccountStore sets the account store used by the login handlers.
func SetAccountStore(s Accounts) {
	accounts = s
}

// SessionResponse is the reply to session creation and login requests.
type SessionResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// LoginRequest carries user credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleCreateSession creates an anonymous session: a fresh session ID plus
// a guest token.
func HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		logger.AuthWarn("Invalid method for session creation: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := uuid.NewString()
	token, err := GenerateGuestToken(sessionID)
	if err != nil {
		logger.AuthError("Failed to generate guest token for session %s: %v", sessionID, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "session created",
	})
}

// HandleLogin authenticates a user against the account store and issues a
// user token bound to a fresh session ID.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		logger.AuthWarn("Invalid method for login: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var loginReq LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		logger.AuthWarn("Invalid JSON in login request: %v", err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if loginReq.Username == "" || loginReq.Password == "" {
		respondWithError(w, "Username and password required", http.StatusBadRequest)
		return
	}

	if accounts == nil {
		respondWithError(w, "Account store not available", http.StatusInternalServerError)
		return
	}

	if err := accounts.Authenticate(loginReq.Username, loginReq.Password); err != nil {
		if errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrInvalidCredentials) {
			logger.SecurityWarn("Login rejected for %s", loginReq.Username)
			respondWithError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		logger.AuthError("Login failed for %s: %v", loginReq.Username, err)
		respondWithError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	sessionID := uuid.NewString()
	token, err := GenerateUserToken(sessionID, loginReq.Username)
	if err != nil {
		logger.AuthError("Failed to generate user token for %s: %v", loginReq.Username, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "login successful",
	})
}

// HandleTokenValidation checks a token passed in the Authorization header.
func HandleTokenValidation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	tokenString := extractBearerToken(r)
	if tokenString == "" {
		respondWithError(w, "Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := ValidateToken(tokenString)
	if err != nil {
		logger.AuthWarn("Token validation failed: %v", err)
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{
		Success:   true,
		SessionID: claims.SessionID,
		Message:   "token valid",
	})
}

func extractBearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func respondWithError(w http.ResponseWriter, message string, status int) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SessionResponse{
		Success: false,
		Message: message,
	})
}
