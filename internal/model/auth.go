package model

import "github.com/golang-jwt/jwt/v5"

// HostClaims are JWT claims for an anonymously signed-in host
type HostClaims struct {
	HostID string `json:"hostId"`
	jwt.RegisteredClaims
}

// SignInResponse is returned after anonymous sign-in
type SignInResponse struct {
	Token  string `json:"token"`
	HostID string `json:"hostId"`
}
