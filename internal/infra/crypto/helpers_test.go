package crypto

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"receiptd/internal/domain"
)

func newES256Key(t *testing.T, kid string) (*ecdsa.PrivateKey, *domain.ECKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate p256 key: %v", err)
	}
	return priv, &domain.ECKey{
		Crv: domain.CurveP256,
		X:   EncodeBase64URL(priv.X.FillBytes(make([]byte, 32))),
		Y:   EncodeBase64URL(priv.Y.FillBytes(make([]byte, 32))),
		Kid: kid,
	}
}

func newEdDSAKey(t *testing.T, kid string) (ed25519.PrivateKey, *domain.OKPKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return priv, &domain.OKPKey{
		Crv: domain.CurveEd25519,
		X:   EncodeBase64URL(pub),
		Kid: kid,
	}
}

func signES256(t *testing.T, priv *ecdsa.PrivateKey, message []byte) []byte {
	t.Helper()
	digest := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig
}

func signEd25519(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}
