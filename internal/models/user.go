package models

import "github.com/golang-jwt/jwt/v5"

// User is the authenticated account as reported by the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// AuthSession is a token pair returned by a successful sign-in or refresh.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         User   `json:"user"`
}

// SupabaseClaims are the JWT claims issued by the hosted auth service.
type SupabaseClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}
