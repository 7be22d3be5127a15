package crypto

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"

	"receiptd/internal/domain"
)

const (
	p256CoordinateSize = 32
	es256SignatureSize = 64
)

// AlgorithmMatchesKey reports whether alg can be used with key: ES256 needs
// an EC P-256 key and EdDSA an OKP Ed25519 key.
func AlgorithmMatchesKey(alg string, key domain.Key) bool {
	switch k := key.(type) {
	case *domain.ECKey:
		return alg == domain.AlgES256 && k.Crv == domain.CurveP256
	case *domain.OKPKey:
		return alg == domain.AlgEdDSA && k.Crv == domain.CurveEd25519
	default:
		return false
	}
}

// VerifySignature checks signature over message. It returns false for a
// well-formed signature that does not verify, ErrCryptographic for malformed
// key material or signature bytes and ErrUnsupportedKey when alg and key do
// not belong together.
func VerifySignature(alg string, key domain.Key, message, signature []byte) (bool, error) {
	if !AlgorithmMatchesKey(alg, key) {
		return false, fmt.Errorf("%w: %s with %T", domain.ErrUnsupportedKey, alg, key)
	}
	switch k := key.(type) {
	case *domain.ECKey:
		return verifyES256(k, message, signature)
	case *domain.OKPKey:
		return verifyEdDSA(k, message, signature)
	default:
		return false, fmt.Errorf("%w: key type %T", domain.ErrUnsupportedKey, key)
	}
}

func verifyES256(key *domain.ECKey, message, signature []byte) (bool, error) {
	x, err := decodeCoordinate("x", key.X)
	if err != nil {
		return false, err
	}
	y, err := decodeCoordinate("y", key.Y)
	if err != nil {
		return false, err
	}
	point := make([]byte, 0, 1+2*p256CoordinateSize)
	point = append(point, 0x04)
	point = append(point, x...)
	point = append(point, y...)
	if _, err := ecdh.P256().NewPublicKey(point); err != nil {
		return false, fmt.Errorf("%w: EC point not on P-256", domain.ErrCryptographic)
	}
	if len(signature) != es256SignatureSize {
		return false, fmt.Errorf("%w: ES256 signature must be %d bytes, got %d", domain.ErrCryptographic, es256SignatureSize, len(signature))
	}

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}
	r := new(big.Int).SetBytes(signature[:p256CoordinateSize])
	s := new(big.Int).SetBytes(signature[p256CoordinateSize:])
	digest := sha256.Sum256(message)
	return ecdsa.Verify(pub, digest[:], r, s), nil
}

func decodeCoordinate(name, value string) ([]byte, error) {
	raw, err := DecodeBase64URL(value)
	if err != nil {
		return nil, fmt.Errorf("%w: EC %s coordinate is not base64url", domain.ErrCryptographic, name)
	}
	if len(raw) != p256CoordinateSize {
		return nil, fmt.Errorf("%w: EC %s coordinate must be %d bytes, got %d", domain.ErrCryptographic, name, p256CoordinateSize, len(raw))
	}
	return raw, nil
}

func verifyEdDSA(key *domain.OKPKey, message, signature []byte) (bool, error) {
	pub, err := DecodeBase64URL(key.X)
	if err != nil {
		return false, fmt.Errorf("%w: OKP x is not base64url", domain.ErrCryptographic)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("%w: Ed25519 key must be %d bytes, got %d", domain.ErrCryptographic, ed25519.PublicKeySize, len(pub))
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return false, fmt.Errorf("%w: invalid Ed25519 point", domain.ErrCryptographic)
	}
	if len(signature) != ed25519.SignatureSize {
		return false, fmt.Errorf("%w: Ed25519 signature must be %d bytes, got %d", domain.ErrCryptographic, ed25519.SignatureSize, len(signature))
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, signature), nil
}
