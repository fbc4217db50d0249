package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const keyBits = 2048

// KeyPair is the process's RSA keypair used for the hybrid handshake. It is
// generated once at startup, held only in memory and never persisted: a
// restart invalidates handshakes in flight but not already-issued tokens,
// which are signed with the configured secret instead.
type KeyPair struct {
	private   *rsa.PrivateKey
	publicPEM string
}

// GenerateKeyPair creates a fresh keypair. Call once before the server
// accepts traffic; never regenerate for the life of the process.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("auth: generate keypair: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("auth: encode public key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return &KeyPair{private: key, publicPEM: string(pemBytes)}, nil
}

// PublicPEM returns the PEM-encoded public key handed to clients.
func (kp *KeyPair) PublicPEM() string {
	return kp.publicPEM
}

func parsePublicPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("auth: invalid PEM public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: not an RSA public key")
	}
	return rsaKey, nil
}
