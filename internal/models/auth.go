package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the payload of externally issued access tokens. The subject
// claim carries the user id when UserID is empty.
type JWTClaims struct {
	UserID string   `json:"uid,omitempty"`
	Role   UserRole `json:"role,omitempty"`
	Email  string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the resolved caller attached to the request context.
type Identity struct {
	UserID string
	Role   UserRole
	Email  string
	Name   string
}
