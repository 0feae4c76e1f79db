package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BorrowerLoginRequest identifies a student by institutional email.
type BorrowerLoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FullName  string `json:"full_name" validate:"omitempty,max=120"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// AdminLoginRequest carries the library desk password.
type AdminLoginRequest struct {
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	User        UserInfo  `json:"user"`
}

// UserInfo describes the authenticated session in responses.
type UserInfo struct {
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	Role     UserRole `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}
