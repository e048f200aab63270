package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"driftchat/internal/config"
)

var (
	// ErrTokenMissing indicates no credential was presented at all.
	ErrTokenMissing = errors.New("missing token")
	// ErrTokenInvalid indicates a malformed, forged, or expired credential.
	ErrTokenInvalid = errors.New("invalid token")
)

// Identity is the authenticated principal attached to a connection for its
// whole lifetime. The display name is frozen from the token's claims; it is
// never refreshed from the user store.
type Identity struct {
	SubjectID string
	Username  string
}

// Claims represents the JWT payload for authenticated users.
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"uname"`
	jwt.RegisteredClaims
}

// NewToken generates a signed JWT for the provided subject.
func NewToken(cfg config.JWTConfig, userID, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// VerifyToken validates a bearer credential and derives the connection
// identity from its embedded claims, without a store round trip.
func VerifyToken(cfg config.JWTConfig, tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return Identity{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return Identity{}, ErrTokenInvalid
	}

	return Identity{SubjectID: claims.UserID, Username: claims.Username}, nil
}
