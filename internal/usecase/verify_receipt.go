package usecase

import (
	"bytes"
	"fmt"

	"receiptd/internal/domain"
)

// VerifyReceipt decides whether a receipt is authentic against a key set.
// Rejections come back as a verdict; the error return is reserved for inputs
// that cannot be processed at all (bad encodings, malformed key material).
// It performs no I/O and is safe for concurrent use.
type VerifyReceipt struct {
	Crypto CryptoService
}

func NewVerifyReceipt(cryptoSvc CryptoService) *VerifyReceipt {
	return &VerifyReceipt{Crypto: cryptoSvc}
}

func (uc *VerifyReceipt) Execute(receipt domain.Receipt, keySet domain.KeySet) (domain.Verdict, error) {
	if receipt.Protected == "" {
		return domain.Reject(domain.ReasonMissingProtected), nil
	}
	if receipt.Signature == "" {
		return domain.Reject(domain.ReasonMissingSignature), nil
	}
	if receipt.Kid == "" {
		return domain.Reject(domain.ReasonMissingKid), nil
	}

	header, err := uc.decodeHeader(receipt.Protected)
	if err != nil {
		return domain.Verdict{}, err
	}
	if header.Alg != domain.AlgES256 && header.Alg != domain.AlgEdDSA {
		return domain.Reject(domain.ReasonUnsupportedAlg), nil
	}
	if header.Kid != receipt.Kid {
		return domain.Reject(domain.ReasonKidMismatch), nil
	}

	key, ok := uc.Crypto.ResolveKey(receipt.Kid, keySet)
	if !ok {
		return domain.Reject(domain.ReasonKeyNotFound), nil
	}

	canonical, err := uc.Crypto.Canonicalize(receipt.Payload)
	if err != nil {
		return domain.Verdict{}, err
	}
	if receipt.PayloadHash != "" {
		expected, err := uc.Crypto.DecodeBase64URL(receipt.PayloadHash)
		if err != nil {
			return domain.Verdict{}, fmt.Errorf("payload hash: %w", err)
		}
		if !bytes.Equal(uc.Crypto.SHA256(canonical), expected) {
			return domain.Reject(domain.ReasonHashMismatch), nil
		}
	}

	signingInput := receipt.Protected + "." + uc.Crypto.EncodeBase64URL(canonical)

	if !uc.Crypto.AlgorithmMatchesKey(header.Alg, key) {
		return domain.Reject(domain.ReasonAlgKeyIncompatible), nil
	}

	signature, err := uc.Crypto.DecodeBase64URL(receipt.Signature)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("signature: %w", err)
	}
	valid, err := uc.Crypto.VerifySignature(header.Alg, key, []byte(signingInput), signature)
	if err != nil {
		return domain.Verdict{}, err
	}
	if !valid {
		return domain.Reject(domain.ReasonInvalidSignature), nil
	}

	if receipt.ReceiptID != "" {
		full := signingInput + "." + receipt.Signature
		if uc.Crypto.EncodeBase64URL(uc.Crypto.SHA256([]byte(full))) != receipt.ReceiptID {
			return domain.Reject(domain.ReasonReceiptIDMismatch), nil
		}
	}

	return domain.Accept(), nil
}

func (uc *VerifyReceipt) decodeHeader(protected string) (domain.Header, error) {
	raw, err := uc.Crypto.DecodeBase64URL(protected)
	if err != nil {
		return domain.Header{}, fmt.Errorf("protected header: %w", err)
	}
	return domain.ParseHeader(raw)
}
