package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer          = "penlight"
	defaultTokenTTL = 168 * time.Hour
	aesKeyLen       = 32
)

// Engine holds the long-lived key material and performs the hybrid decrypt,
// digesting and token signing for the service. Construct once at startup;
// all state is read-only afterwards, safe for concurrent use.
type Engine struct {
	keys   *KeyPair
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// EngineOption configures Engine behavior.
type EngineOption func(*Engine)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// NewEngine constructs an Engine over the process keypair and the configured
// signing secret. The secret must be stable across restarts for issued
// tokens to survive them.
func NewEngine(keys *KeyPair, signingSecret string, opts ...EngineOption) (*Engine, error) {
	if keys == nil {
		return nil, errors.New("auth: keypair is required")
	}
	if signingSecret == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	e := &Engine{
		keys:   keys,
		secret: []byte(signingSecret),
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// PublicKeyPEM exposes the handshake public key. Requires no authentication.
func (e *Engine) PublicKeyPEM() string {
	return e.keys.PublicPEM()
}

// TokenTTL returns the configured token lifetime.
func (e *Engine) TokenTTL() time.Duration {
	return e.ttl
}

// DecryptHybrid RSA-decrypts wrappedKey to recover an ephemeral AES-256 key,
// then decrypts ciphertext with it (CBC, IV prepended, PKCS#7 padding). Both
// arguments are base64. Every failure collapses into ErrDecryption so the
// caller can answer with one generic invalid-credential response.
func (e *Engine) DecryptHybrid(wrappedKey, ciphertext string) (string, error) {
	wrapped, err := base64.StdEncoding.DecodeString(wrappedKey)
	if err != nil {
		return "", ErrDecryption
	}
	key, err := rsa.DecryptPKCS1v15(nil, e.keys.private, wrapped)
	if err != nil || len(key) != aesKeyLen {
		return "", ErrDecryption
	}
	plain, err := aesDecrypt(key, ciphertext)
	if err != nil {
		return "", ErrDecryption
	}
	return plain, nil
}

// EncryptHybrid is the client half of the handshake: it generates an
// ephemeral AES-256 key, encrypts plaintext with it and wraps the key with
// the server's public key. Used by the client orchestrator and tests.
func EncryptHybrid(publicPEM, plaintext string) (wrappedKey, ciphertext string, err error) {
	pub, err := parsePublicPEM(publicPEM)
	if err != nil {
		return "", "", err
	}
	key := make([]byte, aesKeyLen)
	if _, err := rand.Read(key); err != nil {
		return "", "", err
	}
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, pub, key)
	if err != nil {
		return "", "", err
	}
	ct, err := aesEncrypt(key, plaintext)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(wrapped), ct, nil
}

// Hash returns the deterministic one-way digest used for password equality
// checks, anonymization of personal fields on account deletion and
// tamper-evident archival. Same input, same output.
func (e *Engine) Hash(value string) string {
	sum := sha256.Sum256(append(e.secret, []byte(value)...))
	return hex.EncodeToString(sum[:])
}

// TokenClaims is the signed content of a credential token.
type TokenClaims struct {
	Payload map[string]string `json:"payload,omitempty"`
	jwt.RegisteredClaims
}

// SignToken stamps issue and expiry times onto payload and serializes the
// result into one opaque signed string.
func (e *Engine) SignToken(payload map[string]string) (string, error) {
	now := e.now().UTC()
	claims := TokenClaims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(e.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(e.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks signature and expiry and returns the embedded payload.
// Fails with ErrInvalidSignature on any mismatch and ErrExpiredToken once
// the expiry has passed.
func (e *Engine) VerifyToken(token string) (map[string]string, error) {
	if token == "" {
		return nil, ErrInvalidSignature
	}
	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidSignature
		}
		return e.secret, nil
	}, jwt.WithTimeFunc(e.now), jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidSignature
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSignature
	}
	if claims.Payload == nil {
		return map[string]string{}, nil
	}
	return claims.Payload, nil
}

func aesEncrypt(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func aesDecrypt(key []byte, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", errors.New("auth: malformed ciphertext")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	iv, data := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)
	unpadded, err := pkcs7Unpad(plain)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+n)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("auth: empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errors.New("auth: bad padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("auth: bad padding")
		}
	}
	return data[:len(data)-n], nil
}
