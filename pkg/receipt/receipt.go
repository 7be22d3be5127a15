// Package receipt is the importable surface of the verifier: canonical JSON,
// key thumbprints, key resolution and receipt verification over an
// in-memory key set. It performs no I/O.
package receipt

import (
	"encoding/json"
	"fmt"

	"receiptd/internal/domain"
	cryptoinfra "receiptd/internal/infra/crypto"
	"receiptd/internal/usecase"
)

type (
	Receipt = domain.Receipt
	Verdict = domain.Verdict
	KeySet  = domain.KeySet
	Key     = domain.Key
	ECKey   = domain.ECKey
	OKPKey  = domain.OKPKey
)

const (
	AlgES256 = domain.AlgES256
	AlgEdDSA = domain.AlgEdDSA
)

// Error classes returned alongside a zero Verdict. A rejected receipt is
// never an error.
var (
	ErrInvalidFormat  = domain.ErrInvalidFormat
	ErrCryptographic  = domain.ErrCryptographic
	ErrUnsupportedKey = domain.ErrUnsupportedKey
)

var verifier = usecase.NewVerifyReceipt(cryptoinfra.NewService())

// Verify checks r against ks. It is safe for concurrent use.
func Verify(r Receipt, ks KeySet) (Verdict, error) {
	return verifier.Execute(r, ks)
}

// VerifyJSON decodes a receipt document and a JWKS document and verifies.
func VerifyJSON(receiptJSON, jwksJSON []byte) (Verdict, error) {
	var r Receipt
	if err := json.Unmarshal(receiptJSON, &r); err != nil {
		return Verdict{}, fmt.Errorf("%w: receipt: %v", ErrInvalidFormat, err)
	}
	ks, err := ParseKeySet(jwksJSON)
	if err != nil {
		return Verdict{}, err
	}
	return Verify(r, ks)
}

func ParseKeySet(data []byte) (KeySet, error) {
	return domain.ParseKeySet(data)
}

func Canonicalize(raw []byte) ([]byte, error) {
	return cryptoinfra.CanonicalizeJSON(raw)
}

func Thumbprint(key Key) (string, error) {
	return cryptoinfra.Thumbprint(key)
}

// ResolveKey finds the key for kid, matching thumbprints before kid members.
func ResolveKey(kid string, ks KeySet) (Key, bool) {
	return cryptoinfra.ResolveKey(kid, ks)
}
