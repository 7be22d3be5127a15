package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"

	"receiptd/internal/domain"
)

var b64url = base64.RawURLEncoding.Strict()

func EncodeBase64URL(b []byte) string {
	return b64url.EncodeToString(b)
}

// DecodeBase64URL accepts only unpadded base64url without line breaks or
// non-canonical trailing bits.
func DecodeBase64URL(s string) ([]byte, error) {
	if strings.ContainsAny(s, "\r\n") {
		return nil, fmt.Errorf("%w: line break in base64url data", domain.ErrInvalidFormat)
	}
	out, err := b64url.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64url: %v", domain.ErrInvalidFormat, err)
	}
	return out, nil
}
