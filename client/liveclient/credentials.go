package liveclient

import "os"

// Legacy credential storage keys, checked in priority order. The astrologer
// app, the middleware rewrite and the original consumer app each stored the
// auth token under a different name.
const (
	CredentialKeyAstrologer = "token_astrologer"
	CredentialKeyMiddleware = "token_middleware"
	CredentialKeyDefault    = "token"
)

var credentialKeyOrder = []string{
	CredentialKeyAstrologer,
	CredentialKeyMiddleware,
	CredentialKeyDefault,
}

// CredentialProvider abstracts wherever tokens happen to live. The
// coordinator never touches storage directly.
type CredentialProvider interface {
	// Token returns the credential stored under key, if any.
	Token(key string) (string, bool)
}

// ResolveToken walks the legacy keys in priority order and returns the
// first stored credential.
func ResolveToken(provider CredentialProvider) (string, bool) {
	if provider == nil {
		return "", false
	}
	for _, key := range credentialKeyOrder {
		if token, ok := provider.Token(key); ok && token != "" {
			return token, true
		}
	}
	return "", false
}

// MapCredentials is an in-memory provider, mostly for tests and embedders
// that manage tokens themselves.
type MapCredentials map[string]string

func (m MapCredentials) Token(key string) (string, bool) {
	token, ok := m[key]
	return token, ok
}

// EnvCredentials reads tokens from environment variables named
// GRAHO_TOKEN_ASTROLOGER, GRAHO_TOKEN_MIDDLEWARE and GRAHO_TOKEN.
type EnvCredentials struct{}

func (EnvCredentials) Token(key string) (string, bool) {
	var name string
	switch key {
	case CredentialKeyAstrologer:
		name = "GRAHO_TOKEN_ASTROLOGER"
	case CredentialKeyMiddleware:
		name = "GRAHO_TOKEN_MIDDLEWARE"
	case CredentialKeyDefault:
		name = "GRAHO_TOKEN"
	default:
		return "", false
	}
	value := os.Getenv(name)
	return value, value != ""
}
