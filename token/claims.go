package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenClaims are the claims carried by every access token this server mints.
type AccessTokenClaims struct {
	Scope         string `json:"scope"`
	ClientID      string `json:"client_id,omitempty"`
	CodeChallenge string `json:"code_challenge,omitempty"`
	jwt.RegisteredClaims
}
