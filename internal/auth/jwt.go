package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const issuer = "collabspace-api"

// token types carried in the claims so an access token cannot be
// replayed as a refresh token or the other way round
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims JWT claims. Email and Name are only set on access tokens.
type Claims struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair an access token with its refresh token
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// JWTManager issues and validates tokens
type JWTManager struct {
	secretKey     []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewJWTManager creates a JWTManager
func NewJWTManager(secretKey string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

func (m *JWTManager) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

func registeredClaims(userID int64, expiry time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
		Subject:   strconv.FormatInt(userID, 10),
	}
}

// GenerateAccessToken issues an access token
func (m *JWTManager) GenerateAccessToken(userID int64, email, name string) (string, error) {
	return m.sign(&Claims{
		UserID:           userID,
		Email:            email,
		Name:             name,
		TokenType:        tokenTypeAccess,
		RegisteredClaims: registeredClaims(userID, m.accessExpiry),
	})
}

// GenerateRefreshToken issues a refresh token. It carries no profile
// data; the handler reloads the user row when redeeming it.
func (m *JWTManager) GenerateRefreshToken(userID int64) (string, error) {
	return m.sign(&Claims{
		UserID:           userID,
		TokenType:        tokenTypeRefresh,
		RegisteredClaims: registeredClaims(userID, m.refreshExpiry),
	})
}

// GeneratePair issues the access/refresh pair handed out on login,
// registration and refresh
func (m *JWTManager) GeneratePair(userID int64, email, name string) (*TokenPair, error) {
	access, err := m.GenerateAccessToken(userID, email, name)
	if err != nil {
		return nil, err
	}
	refresh, err := m.GenerateRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *JWTManager) parse(tokenString, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateAccessToken verifies an access token and returns its claims
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	return m.parse(tokenString, tokenTypeAccess)
}

// ValidateRefreshToken verifies a refresh token and returns the user id
func (m *JWTManager) ValidateRefreshToken(tokenString string) (int64, error) {
	claims, err := m.parse(tokenString, tokenTypeRefresh)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
