// Package keystore holds API credentials for the external custody service.
package keystore

import (
	"errors"
	"os"
	"strings"
)

// StaticKeyStore is a simple in-memory store of gateway API keys.
type StaticKeyStore struct {
	keys         map[string]string
	defaultKeyID string
	perChainKeys map[string]string
}

// NewFromEnv builds a keystore from environment variables.
// GATEWAY_API_KEYS format: "keyId:secret,keyId2:secret".
// GATEWAY_DEFAULT_KEY_ID sets the default key id.
// GATEWAY_KEY_FOR_CHAIN_<chainId> can override the key per chain.
func NewFromEnv() (*StaticKeyStore, error) {
	keys := make(map[string]string)
	raw := os.Getenv("GATEWAY_API_KEYS")
	if raw != "" {
		pairs := strings.Split(raw, ",")
		for _, p := range pairs {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			parts := strings.SplitN(p, ":", 2)
			if len(parts) != 2 {
				return nil, errors.New("invalid GATEWAY_API_KEYS format")
			}
			keys[parts[0]] = parts[1]
		}
	}

	ks := &StaticKeyStore{
		keys:         keys,
		defaultKeyID: os.Getenv("GATEWAY_DEFAULT_KEY_ID"),
		perChainKeys: map[string]string{},
	}

	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "GATEWAY_KEY_FOR_CHAIN_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 {
				continue
			}
			chain := strings.TrimPrefix(parts[0], "GATEWAY_KEY_FOR_CHAIN_")
			if chain != "" {
				ks.perChainKeys[chain] = parts[1]
			}
		}
	}

	return ks, nil
}

// KeyForChain returns the credential to use for a chain. Chains without an
// override fall back to the default key; an unconfigured store returns empty
// values so callers can send unauthenticated requests in development.
func (s *StaticKeyStore) KeyForChain(chainID string) (keyID, secret string, err error) {
	keyID = s.defaultKeyID
	if override, ok := s.perChainKeys[normalizeChain(chainID)]; ok && override != "" {
		keyID = override
	}
	if keyID == "" {
		return "", "", nil
	}
	secret, ok := s.keys[keyID]
	if !ok {
		return "", "", errors.New("gateway key not found: " + keyID)
	}
	return keyID, secret, nil
}

// normalizeChain maps a chain id onto the env-var-safe form used by the
// per-chain override variables.
func normalizeChain(chainID string) string {
	up := strings.ToUpper(chainID)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, up)
}
