package crypto

import (
	"crypto/sha256"

	"receiptd/internal/domain"
)

type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) Canonicalize(raw []byte) ([]byte, error) {
	return CanonicalizeJSON(raw)
}

func (s *Service) Thumbprint(key domain.Key) (string, error) {
	return Thumbprint(key)
}

func (s *Service) ResolveKey(kid string, ks domain.KeySet) (domain.Key, bool) {
	return ResolveKey(kid, ks)
}

func (s *Service) AlgorithmMatchesKey(alg string, key domain.Key) bool {
	return AlgorithmMatchesKey(alg, key)
}

func (s *Service) VerifySignature(alg string, key domain.Key, message, signature []byte) (bool, error) {
	return VerifySignature(alg, key, message, signature)
}

func (s *Service) EncodeBase64URL(b []byte) string {
	return EncodeBase64URL(b)
}

func (s *Service) DecodeBase64URL(v string) ([]byte, error) {
	return DecodeBase64URL(v)
}

func (s *Service) SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
