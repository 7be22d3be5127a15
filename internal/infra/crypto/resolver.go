package crypto

import "receiptd/internal/domain"

// ResolveKey returns the first key in ks that kid identifies, either by
// thumbprint or by the key's own kid member. Keys are tried in order and the
// thumbprint is checked before the kid member of the same key. Keys whose
// thumbprint cannot be computed can still match by kid.
func ResolveKey(kid string, ks domain.KeySet) (domain.Key, bool) {
	if kid == "" {
		return nil, false
	}
	for _, key := range ks.Keys {
		if key == nil {
			continue
		}
		if tp, err := Thumbprint(key); err == nil && tp == kid {
			return key, true
		}
		if key.KeyID() == kid {
			return key, true
		}
	}
	return nil, false
}
