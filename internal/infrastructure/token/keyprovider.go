package token

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	AlgorithmHS256 = "HS256"
	AlgorithmEdDSA = "EdDSA"
)

// minHMACSecretLen is the shortest HS256 secret accepted (256 bits).
const minHMACSecretLen = 32

// KeyMaterial is the decoded signing key for one algorithm.
type KeyMaterial struct {
	Algorithm  string
	HMACSecret []byte
	PrivateKey ed25519.PrivateKey
}

// KeyProvider fetches key material from wherever the platform keeps it.
type KeyProvider interface {
	Load(ctx context.Context) (*KeyMaterial, error)
}

// StaticKeyProvider serves a secret taken from configuration.
type StaticKeyProvider struct {
	algorithm string
	secret    string
}

func NewStaticKeyProvider(algorithm, secret string) *StaticKeyProvider {
	return &StaticKeyProvider{algorithm: algorithm, secret: secret}
}

func (p *StaticKeyProvider) Load(_ context.Context) (*KeyMaterial, error) {
	return ParseKeyMaterial(p.algorithm, p.secret)
}

// ParseKeyMaterial decodes secret for algorithm. HS256 takes the raw secret;
// EdDSA takes a base64 encoded 32-byte seed or 64-byte private key.
func ParseKeyMaterial(algorithm, secret string) (*KeyMaterial, error) {
	secret = strings.TrimSpace(secret)

	switch algorithm {
	case AlgorithmHS256:
		if len(secret) < minHMACSecretLen {
			return nil, fmt.Errorf("HS256 secret must be at least %d bytes", minHMACSecretLen)
		}
		return &KeyMaterial{Algorithm: algorithm, HMACSecret: []byte(secret)}, nil

	case AlgorithmEdDSA:
		raw, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("EdDSA key must be base64 encoded: %w", err)
		}
		switch len(raw) {
		case ed25519.SeedSize:
			return &KeyMaterial{Algorithm: algorithm, PrivateKey: ed25519.NewKeyFromSeed(raw)}, nil
		case ed25519.PrivateKeySize:
			return &KeyMaterial{Algorithm: algorithm, PrivateKey: ed25519.PrivateKey(raw)}, nil
		default:
			return nil, fmt.Errorf("EdDSA key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
		}

	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
}
