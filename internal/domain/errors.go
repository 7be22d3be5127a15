package domain

import "errors"

var (
	ErrInvalidFormat       = errors.New("invalid format")
	ErrCryptographic       = errors.New("cryptographic error")
	ErrUnsupportedKey      = errors.New("unsupported key")
	ErrNetwork             = errors.New("network error")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRegistryUnavailable = errors.New("key set registry unavailable")
)

// ErrorCode maps a system error onto the stable code used by the CLI and
// HTTP surfaces.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidFormat):
		return "INVALID_FORMAT"
	case errors.Is(err, ErrCryptographic):
		return "CRYPTOGRAPHIC_ERROR"
	case errors.Is(err, ErrUnsupportedKey):
		return "UNSUPPORTED_KEY"
	case errors.Is(err, ErrNetwork):
		return "NETWORK_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrRegistryUnavailable):
		return "REGISTRY_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
