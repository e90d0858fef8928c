package oauthmodel

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// It is the only method accepted; "plain" is rejected.
	CodeMethodTypeS256 CodeMethodType = "S256"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an issued code plus its PKCE verifier for a token response.
	AuthorizationCodeGrant GrantType = "authorization_code"
)

// TokenType is the token_type of issued tokens.
const TokenTypeBearer = "bearer"
