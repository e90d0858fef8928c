package token

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SignerSettings selects and locates the signing key material.
type SignerSettings struct {
	Algorithm      string
	Secret         string
	PrivateKeyFile string
	KeyID          string
	Issuer         string
}

// NewSigner builds the Signer described by settings. RS256 and ES256 signers
// load their key from PrivateKeyFile or generate an ephemeral one when it is empty.
func NewSigner(settings SignerSettings) (Signer, error) {
	keyID := settings.KeyID
	if keyID == "" {
		keyID = uuid.NewString()
	}

	switch settings.Algorithm {
	case AlgorithmHS256:
		key, err := DeriveHMACKey(settings.Secret, settings.Issuer)
		if err != nil {
			return nil, fmt.Errorf("[NewSigner] %w", err)
		}
		return NewHMACSigner(key, keyID), nil

	case AlgorithmRS256, AlgorithmES256:
		keyPair, err := loadOrGenerateKeyPair(keyID, settings)
		if err != nil {
			return nil, fmt.Errorf("[NewSigner] %w", err)
		}
		return NewKeyPairSigner(keyPair), nil

	default:
		return nil, fmt.Errorf("[NewSigner] unsupported signing algorithm: %q", settings.Algorithm)
	}
}

func loadOrGenerateKeyPair(keyID string, settings SignerSettings) (*KeyPair, error) {
	if settings.PrivateKeyFile != "" {
		pemData, err := os.ReadFile(settings.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		return LoadKeyPairFromPEM(keyID, settings.Algorithm, pemData)
	}

	log.Warn().Str("alg", settings.Algorithm).Str("kid", keyID).Msg("No private key file configured, generating an ephemeral signing key")
	if settings.Algorithm == AlgorithmES256 {
		return GenerateECDSAKeyPair(keyID)
	}
	return GenerateRSAKeyPair(keyID, 2048)
}
