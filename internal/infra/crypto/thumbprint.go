package crypto

import (
	"crypto/sha256"
	"fmt"

	"receiptd/internal/domain"
)

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of key, encoded as
// unpadded base64url. Only the required members take part, so kid and alg
// never affect the result.
func Thumbprint(key domain.Key) (string, error) {
	var members map[string]any
	switch k := key.(type) {
	case *domain.ECKey:
		if k.Crv != domain.CurveP256 {
			return "", fmt.Errorf("%w: EC curve %q", domain.ErrUnsupportedKey, k.Crv)
		}
		members = map[string]any{"crv": k.Crv, "kty": domain.KtyEC, "x": k.X, "y": k.Y}
	case *domain.OKPKey:
		if k.Crv != domain.CurveEd25519 {
			return "", fmt.Errorf("%w: OKP curve %q", domain.ErrUnsupportedKey, k.Crv)
		}
		members = map[string]any{"crv": k.Crv, "kty": domain.KtyOKP, "x": k.X}
	default:
		return "", fmt.Errorf("%w: key type %T", domain.ErrUnsupportedKey, key)
	}

	canonical, err := CanonicalizeAny(members)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return EncodeBase64URL(sum[:]), nil
}
