package token

import (
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/pkg/errors"

	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
)

// JWKS returns the public key set for signer. Symmetric signers have nothing
// to publish and return apperrors.ErrUnsupported.
func JWKS(signer Signer) (jwk.Set, error) {
	keyPairSigner, ok := signer.(*KeyPairSigner)
	if !ok {
		return nil, errors.Wrap(apperrors.ErrUnsupported, "JWKS requires an asymmetric signer")
	}

	key, err := jwk.Import(keyPairSigner.PublicKey())
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert key to JWK")
	}
	if err := key.Set(jwk.KeyIDKey, keyPairSigner.KeyID()); err != nil {
		return nil, errors.Wrap(err, "failed to set kid")
	}
	if err := key.Set(jwk.AlgorithmKey, keyPairSigner.GetSigningMethod().Alg()); err != nil {
		return nil, errors.Wrap(err, "failed to set alg")
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, errors.Wrap(err, "failed to set use")
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, errors.Wrap(err, "failed to add key to set")
	}
	return set, nil
}
