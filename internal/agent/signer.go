package agent

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/emberfield/hearth-bridge/internal/infrastructure/config"
)

// Signer mints the short-lived bearer credential carried on outbound
// device-agent calls. It is separate from the voice-platform token: agents
// trust the bridge's signing key, not the voice platform.
//
// Implementations must be safe for concurrent use.
type Signer interface {
	// Mint returns a signed credential scoped to the given control address.
	Mint(controlAddress string) (string, error)
}

// KeySigner signs credentials with an ECDSA P-256 key (ES256).
//
// The key is versioned: every credential carries the key id in its header
// so agents can select the matching public key during rotation.
type KeySigner struct {
	key   *ecdsa.PrivateKey
	keyID string
	ttl   time.Duration
}

// NewSigner loads the signing key from configuration and returns a ready
// KeySigner. The key may be provided inline (PEM string, typically via
// environment variable) or as a file path.
func NewSigner(cfg config.SigningConfig) (*KeySigner, error) {
	pemData := []byte(cfg.PrivateKeyPEM)
	if len(pemData) == 0 {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading signing key: %w", err)
		}
		pemData = data
	}

	key, err := parseECPrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}

	ttl := time.Duration(cfg.CredentialTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &KeySigner{
		key:   key,
		keyID: cfg.KeyID,
		ttl:   ttl,
	}, nil
}

// Mint returns a signed credential scoped to the given control address.
func (s *KeySigner) Mint(controlAddress string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "hearthbridge",
		Audience:  jwt.ClaimStrings{controlAddress},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing credential: %w", err)
	}
	return signed, nil
}

// KeyID returns the version identifier of the signing key.
func (s *KeySigner) KeyID() string {
	return s.keyID
}

// parseECPrivateKey decodes a PEM block holding an EC private key in
// either SEC1 ("EC PRIVATE KEY") or PKCS#8 ("PRIVATE KEY") form.
func parseECPrivateKey(pemData []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is %T, want *ecdsa.PrivateKey", key)
		}
		return ecKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}
