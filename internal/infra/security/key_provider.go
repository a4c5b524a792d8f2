package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrKeyNotFound indicates no verification key is registered for a kid.
	ErrKeyNotFound = errors.New("key not found")
	// ErrNoSigningKey indicates the key source holds no private key.
	ErrNoSigningKey = errors.New("no private key found for signing")
)

// KeyProvider supplies the RSA key material used for access tokens.
type KeyProvider interface {
	SigningKey() (kid string, key *rsa.PrivateKey, err error)
	VerificationKey(kid string) (*rsa.PublicKey, error)
	VerificationKeys() map[string]*rsa.PublicKey
}

// StaticKeyProvider serves a fixed set of keys. The kid of each key is its PEM file name without extension.
type StaticKeyProvider struct {
	signingKID string
	signingKey *rsa.PrivateKey
	keys       map[string]*rsa.PublicKey
}

// NewDirKeyProvider loads every PEM file in keyDir. The first private key in lexical order signs tokens;
// every key, private or public, is accepted for verification.
func NewDirKeyProvider(keyDir string) (*StaticKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	provider := &StaticKeyProvider{keys: make(map[string]*rsa.PublicKey)}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", path, err)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		private, public, err := parseRSAPEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", path, err)
		}

		if private != nil && provider.signingKey == nil {
			provider.signingKID = kid
			provider.signingKey = private
		}
		provider.keys[kid] = public
	}

	if provider.signingKey == nil {
		return nil, ErrNoSigningKey
	}

	return provider, nil
}

// NewEphemeralKeyProvider generates an in-memory 2048-bit key. Tokens do not survive restarts.
func NewEphemeralKeyProvider(kid string) (*StaticKeyProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &StaticKeyProvider{
		signingKID: kid,
		signingKey: key,
		keys:       map[string]*rsa.PublicKey{kid: &key.PublicKey},
	}, nil
}

// SigningKey returns the active kid and private key.
func (p *StaticKeyProvider) SigningKey() (string, *rsa.PrivateKey, error) {
	if p.signingKey == nil {
		return "", nil, ErrNoSigningKey
	}
	return p.signingKID, p.signingKey, nil
}

// VerificationKey returns the public key registered for kid.
func (p *StaticKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// VerificationKeys returns a copy of every registered public key.
func (p *StaticKeyProvider) VerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

// NewKeyProvider picks the key source for env. Production requires keyDir; other environments fall
// back to an ephemeral key when keyDir is empty.
func NewKeyProvider(env, keyDir string) (KeyProvider, error) {
	keyDir = strings.TrimSpace(keyDir)
	if keyDir != "" {
		return NewDirKeyProvider(keyDir)
	}
	if env == "production" {
		return nil, fmt.Errorf("jwt key directory is required in production")
	}
	return NewEphemeralKeyProvider("ephemeral")
}

func parseRSAPEM(data []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, nil, errors.New("no PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, &key.PublicKey, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, &rsaKey.PublicKey, nil
		}
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return nil, key, nil
	}
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return nil, rsaKey, nil
		}
	}

	return nil, nil, errors.New("unsupported key type")
}
