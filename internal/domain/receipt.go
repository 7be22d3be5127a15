package domain

import (
	"encoding/json"
	"fmt"
)

const (
	AlgES256 = "ES256"
	AlgEdDSA = "EdDSA"
)

// Rejection reasons. These strings are part of the public contract.
const (
	ReasonMissingProtected   = "missing protected header"
	ReasonMissingSignature   = "missing signature"
	ReasonMissingKid         = "missing kid"
	ReasonUnsupportedAlg     = "unsupported algorithm"
	ReasonKidMismatch        = "kid mismatch"
	ReasonKeyNotFound        = "key not found"
	ReasonHashMismatch       = "hash mismatch"
	ReasonAlgKeyIncompatible = "algorithm incompatible with key type"
	ReasonInvalidSignature   = "invalid signature"
	ReasonReceiptIDMismatch  = "receipt id mismatch"
)

// Receipt is a signed payload with a detached compact signature. Payload is
// kept raw so numbers survive until canonicalization. Empty PayloadHash or
// ReceiptID means the field is absent.
type Receipt struct {
	Protected   string          `json:"protected"`
	Payload     json.RawMessage `json:"payload"`
	Signature   string          `json:"signature"`
	Kid         string          `json:"kid"`
	PayloadHash string          `json:"payload_jcs_sha256,omitempty"`
	ReceiptID   string          `json:"receipt_id,omitempty"`
}

// Header is the decoded protected header. Members other than alg and kid
// are ignored.
type Header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// ParseHeader reads alg and kid from a decoded protected header. Members are
// matched by exact name; "ALG" or "KID" never stand in.
func ParseHeader(raw []byte) (Header, error) {
	obj, err := DecodeObject(raw)
	if err != nil {
		return Header{}, fmt.Errorf("protected header: %w", err)
	}
	var header Header
	var ok bool
	if header.Alg, ok, err = StringMember(obj, "alg"); err != nil {
		return Header{}, fmt.Errorf("protected header: %w", err)
	} else if !ok || header.Alg == "" {
		return Header{}, fmt.Errorf("%w: protected header missing alg", ErrInvalidFormat)
	}
	if header.Kid, ok, err = StringMember(obj, "kid"); err != nil {
		return Header{}, fmt.Errorf("protected header: %w", err)
	} else if !ok || header.Kid == "" {
		return Header{}, fmt.Errorf("%w: protected header missing kid", ErrInvalidFormat)
	}
	return header, nil
}

type Verdict struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func Accept() Verdict {
	return Verdict{OK: true}
}

func Reject(reason string) Verdict {
	return Verdict{OK: false, Reason: reason}
}
