package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	KtyEC  = "EC"
	KtyOKP = "OKP"

	CurveP256    = "P-256"
	CurveEd25519 = "Ed25519"
)

// Key is a public key from a key set. The set of implementations is closed:
// *ECKey and *OKPKey. Consumers switch on the concrete type and treat any
// other value as unsupported.
type Key interface {
	Kty() string
	Curve() string
	KeyID() string
	Algorithm() string
	isKey()
}

// ECKey is an elliptic curve public key with base64url coordinates.
type ECKey struct {
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
}

func (k *ECKey) Kty() string       { return KtyEC }
func (k *ECKey) Curve() string     { return k.Crv }
func (k *ECKey) KeyID() string     { return k.Kid }
func (k *ECKey) Algorithm() string { return k.Alg }
func (*ECKey) isKey()              {}

func (k *ECKey) MarshalJSON() ([]byte, error) {
	type wire ECKey
	return json.Marshal(struct {
		Kty string `json:"kty"`
		wire
	}{Kty: KtyEC, wire: wire(*k)})
}

// OKPKey is an octet key pair public key (RFC 8037).
type OKPKey struct {
	Crv string `json:"crv"`
	X   string `json:"x"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
}

func (k *OKPKey) Kty() string       { return KtyOKP }
func (k *OKPKey) Curve() string     { return k.Crv }
func (k *OKPKey) KeyID() string     { return k.Kid }
func (k *OKPKey) Algorithm() string { return k.Alg }
func (*OKPKey) isKey()              {}

func (k *OKPKey) MarshalJSON() ([]byte, error) {
	type wire OKPKey
	return json.Marshal(struct {
		Kty string `json:"kty"`
		wire
	}{Kty: KtyOKP, wire: wire(*k)})
}

// KeySet is an ordered list of keys. Order matters for resolution.
type KeySet struct {
	Keys []Key `json:"keys"`
}

func (ks *KeySet) UnmarshalJSON(data []byte) error {
	obj, err := DecodeObject(data)
	if err != nil {
		return fmt.Errorf("key set: %w", err)
	}
	var items []json.RawMessage
	if raw, ok := obj["keys"]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("%w: key set: keys must be an array", ErrInvalidFormat)
		}
	}
	keys := make([]Key, 0, len(items))
	for i, item := range items {
		key, err := decodeKey(item)
		if err != nil {
			return fmt.Errorf("key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	ks.Keys = keys
	return nil
}

func (ks KeySet) MarshalJSON() ([]byte, error) {
	keys := ks.Keys
	if keys == nil {
		keys = []Key{}
	}
	return json.Marshal(struct {
		Keys []Key `json:"keys"`
	}{Keys: keys})
}

// decodeKey reads members by exact name; unknown members are ignored.
func decodeKey(data []byte) (Key, error) {
	obj, err := DecodeObject(data)
	if err != nil {
		return nil, err
	}
	kty, ok, err := StringMember(obj, "kty")
	if err != nil {
		return nil, err
	}
	if !ok || kty == "" {
		return nil, fmt.Errorf("%w: missing kty", ErrInvalidFormat)
	}
	switch kty {
	case KtyEC:
		m, err := stringMembers(obj, "crv", "x", "y", "kid", "alg")
		if err != nil {
			return nil, err
		}
		return &ECKey{Crv: m[0], X: m[1], Y: m[2], Kid: m[3], Alg: m[4]}, nil
	case KtyOKP:
		m, err := stringMembers(obj, "crv", "x", "kid", "alg")
		if err != nil {
			return nil, err
		}
		return &OKPKey{Crv: m[0], X: m[1], Kid: m[2], Alg: m[3]}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported kty %q", ErrInvalidFormat, kty)
	}
}

// ParseKeySet decodes a JWKS document.
func ParseKeySet(data []byte) (KeySet, error) {
	var ks KeySet
	if len(bytes.TrimSpace(data)) == 0 {
		return ks, fmt.Errorf("%w: empty key set document", ErrInvalidFormat)
	}
	if err := ks.UnmarshalJSON(data); err != nil {
		return KeySet{}, err
	}
	return ks, nil
}

// ValidateKeySet checks that a key set obtained from outside is usable:
// it is non-empty and every key carries the members its curve requires.
// The verifier itself does not require this; foreign keys are skipped there.
func ValidateKeySet(ks KeySet) error {
	if len(ks.Keys) == 0 {
		return fmt.Errorf("%w: key set has no keys", ErrInvalidFormat)
	}
	for i, key := range ks.Keys {
		switch k := key.(type) {
		case *ECKey:
			if k.Crv != CurveP256 {
				return fmt.Errorf("%w: key %d: unsupported EC curve %q", ErrUnsupportedKey, i, k.Crv)
			}
			if k.X == "" || k.Y == "" {
				return fmt.Errorf("%w: key %d: EC key requires x and y", ErrInvalidFormat, i)
			}
		case *OKPKey:
			if k.Crv != CurveEd25519 {
				return fmt.Errorf("%w: key %d: unsupported OKP curve %q", ErrUnsupportedKey, i, k.Crv)
			}
			if k.X == "" {
				return fmt.Errorf("%w: key %d: OKP key requires x", ErrInvalidFormat, i)
			}
		default:
			return fmt.Errorf("%w: key %d: unsupported key type %T", ErrUnsupportedKey, i, key)
		}
	}
	return nil
}
