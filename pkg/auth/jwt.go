// Package auth issues and validates the JWT session tokens that gate the
// websocket terminal.
package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luishsr/rustvm/pkg/configuration"
	"github.com/luishsr/rustvm/pkg/logger"
)

const (
	// Default values - actual values come from configuration
	defaultJWTSecret       = "fallback_secret_change_in_production"
	defaultTokenExpiration = 24 * time.Hour

	tokenIssuer = "rustvm"
)

// getJWTSecret retrieves the JWT secret from environment variable or
// configuration.
func getJWTSecret() string {
	if envSecret := os.Getenv("JWT_SECRET_KEY"); envSecret != "" {
		return envSecret
	}

	secret := configuration.GetString("JWT", "secret_key", defaultJWTSecret)
	if secret == defaultJWTSecret || secret == "ENVIRONMENT_VARIABLE_NOT_SET_FALLBACK" {
		logger.SecurityWarn("Using fallback JWT secret - set JWT_SECRET_KEY environment variable for production!")
	}
	return secret
}

func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("JWT", "token_expiration_hours", 24)
	return time.Duration(hours) * time.Hour
}

// SessionClaims are the claims carried by a session token. Username is empty
// for guest sessions.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// GenerateGuestToken generates a JWT token for an anonymous session.
func GenerateGuestToken(sessionID string) (string, error) {
	return generateToken(sessionID, "", "guest")
}

// GenerateUserToken generates a JWT token for a logged-in user session.
func GenerateUserToken(sessionID, username string) (string, error) {
	return generateToken(sessionID, username, username)
}

func generateToken(sessionID, username, subject string) (string, error) {
	secretKey := getJWTSecret()
	now := time.Now()

	claims := SessionClaims{
		SessionID: sessionID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   subject,
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("token could not be signed: %v", err)
	}

	logger.AuthInfo("Token generated for session ID: %s (subject: %s)", sessionID, subject)
	return signedToken, nil
}

// ValidateToken validates a session token and returns its claims.
func ValidateToken(tokenString string) (*SessionClaims, error) {
	secretKey := getJWTSecret()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&SessionClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return []byte(secretKey), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %v", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("token carries no session ID")
	}
	return claims, nil
}
