package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.Claims) (string, error)

	// GetVerificationKey returns the key a parsed token is verified with.
	// Tokens whose alg differs from GetSigningMethod are rejected.
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod

	// KeyID returns the kid header stamped on signed tokens
	KeyID() string
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	key   []byte
	keyID string
}

// NewHMACSigner creates a new HMAC signer with an already derived key
func NewHMACSigner(key []byte, keyID string) *HMACSigner {
	return &HMACSigner{
		key:   key,
		keyID: keyID,
	}
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if h.keyID != "" {
		token.Header["kid"] = h.keyID
	}
	signedToken, err := token.SignedString(h.key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.key, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

func (h *HMACSigner) KeyID() string {
	return h.keyID
}

// KeyPairSigner implements Signer using RSA or ECDSA
type KeyPairSigner struct {
	keyPair *KeyPair
}

// NewKeyPairSigner creates a new key pair signer with the given key pair
func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{
		keyPair: keyPair,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(a.keyPair.GetSigningMethod(), claims)
	token.Header["kid"] = a.keyPair.KeyID

	signedToken, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with asymmetric key")
	}
	return signedToken, nil
}

func (a *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if token.Method == nil || token.Method.Alg() != a.keyPair.GetSigningMethod().Alg() {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if kid, ok := token.Header["kid"].(string); ok && kid != a.keyPair.KeyID {
		return nil, errors.Errorf("unknown key id: %s", kid)
	}
	return a.keyPair.PublicKey, nil
}

func (a *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return a.keyPair.GetSigningMethod()
}

func (a *KeyPairSigner) KeyID() string {
	return a.keyPair.KeyID
}

// PublicKey returns the verification key published in the JWKS document
func (a *KeyPairSigner) PublicKey() any {
	return a.keyPair.PublicKey
}
