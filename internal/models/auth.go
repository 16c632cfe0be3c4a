package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// GrantTypePassword is the only OAuth2 grant accepted by the token endpoint.
const GrantTypePassword = "password"

// LoginRequest holds credentials posted to the token endpoint. The email
// travels in the OAuth2 "username" form field.
type LoginRequest struct {
	Email     string `form:"username" validate:"required,email"`
	Password  string `form:"password" validate:"required"`
	GrantType string `form:"grant_type" validate:"omitempty,eq=password"`
	IP        string `form:"-"`
	UserAgent string `form:"-"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=64,alphanumunicode"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginResponse is the OAuth2 style token payload.
type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	User        UserInfo `json:"user"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// NewUserInfo projects a user onto its public fields.
func NewUserInfo(u *User) UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email, Username: u.Username, IsAdmin: u.IsAdmin}
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}
