package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"io"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// Supported signing algorithms.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
)

const (
	minSecretLength = 32
	hmacKeyLength   = 32
	hkdfInfo        = "go-resource-auth access token signing key"
)

// KeyPair represents a public/private key pair for signing tokens
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.Signer
	PublicKey  crypto.PublicKey
	Algorithm  string // RS256 or ES256
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 signing
func GenerateRSAKeyPair(keyID string, bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  AlgorithmRS256,
	}, nil
}

// GenerateECDSAKeyPair generates a new P-256 key pair for ES256 signing
func GenerateECDSAKeyPair(keyID string) (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ECDSA key")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  AlgorithmES256,
	}, nil
}

// GetSigningMethod returns the JWT signing method for this key pair
func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	if kp.Algorithm == AlgorithmES256 {
		return jwt.SigningMethodES256
	}
	return jwt.SigningMethodRS256
}

// ExportPrivateKeyPEM exports the private key as PKCS#8 PEM
func (kp *KeyPair) ExportPrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal private key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// LoadKeyPairFromPEM parses a PKCS#1, SEC 1 or PKCS#8 private key and checks
// that its type matches algorithm.
func LoadKeyPairFromPEM(keyID, algorithm string, pemData []byte) (*KeyPair, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	var parsed any
	var err error
	switch block.Type {
	case "RSA PRIVATE KEY":
		parsed, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		parsed, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}

	switch key := parsed.(type) {
	case *rsa.PrivateKey:
		if algorithm != AlgorithmRS256 {
			return nil, errors.Errorf("RSA key cannot be used with %s", algorithm)
		}
		return &KeyPair{KeyID: keyID, PrivateKey: key, PublicKey: &key.PublicKey, Algorithm: algorithm}, nil
	case *ecdsa.PrivateKey:
		if algorithm != AlgorithmES256 {
			return nil, errors.Errorf("ECDSA key cannot be used with %s", algorithm)
		}
		if key.Curve != elliptic.P256() {
			return nil, errors.New("ES256 requires a P-256 key")
		}
		return &KeyPair{KeyID: keyID, PrivateKey: key, PublicKey: &key.PublicKey, Algorithm: algorithm}, nil
	default:
		return nil, errors.Errorf("unsupported private key type %T", parsed)
	}
}

// DeriveHMACKey stretches a configured secret into a fixed-length HS256 key.
// The issuer is mixed in so the same secret yields distinct keys per issuer.
func DeriveHMACKey(secret, issuer string) ([]byte, error) {
	if len(secret) < minSecretLength {
		return nil, errors.Errorf("signing secret must be at least %d characters", minSecretLength)
	}

	key := make([]byte, hmacKeyLength)
	reader := hkdf.New(sha256.New, []byte(secret), []byte(issuer), []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, errors.Wrap(err, "failed to derive HMAC key")
	}
	return key, nil
}
