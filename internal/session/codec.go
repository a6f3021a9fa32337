package session

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/age"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidSession is returned for cookies that fail verification or decryption.
	ErrInvalidSession = errors.New("invalid session")
	// ErrExpiredSession is returned for cookies past their expiry.
	ErrExpiredSession = errors.New("session expired")
)

const keyClaim = "key"

// Codec seals an API key into a signed cookie value.
//
// The key is age-encrypted to the codec's identity, so the cookie never
// carries it in clear text, and the envelope is an HS256 JWT whose signing
// key is derived from the configured secret.
type Codec struct {
	signingKey []byte
	identity   *age.X25519Identity
	recipient  *age.X25519Recipient
	maxAge     time.Duration
	now        func() time.Time
}

// NewCodec builds a codec. An empty ageIdentity generates a fresh identity,
// which invalidates previously issued cookies on restart.
func NewCodec(secret, ageIdentity string, maxAge time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}

	var (
		identity *age.X25519Identity
		err      error
	)
	if ageIdentity == "" {
		identity, err = age.GenerateX25519Identity()
	} else {
		identity, err = age.ParseX25519Identity(ageIdentity)
	}
	if err != nil {
		return nil, fmt.Errorf("loading age identity: %w", err)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("pipeline-console session v1")), key); err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}

	return &Codec{
		signingKey: key,
		identity:   identity,
		recipient:  identity.Recipient(),
		maxAge:     maxAge,
		now:        time.Now,
	}, nil
}

// MaxAge is the lifetime of issued cookies.
func (c *Codec) MaxAge() time.Duration {
	return c.maxAge
}

// Encode seals apiKey into a cookie value.
func (c *Codec) Encode(apiKey string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, c.recipient)
	if err != nil {
		return "", fmt.Errorf("creating encryptor: %w", err)
	}
	if _, err := io.WriteString(w, apiKey); err != nil {
		return "", fmt.Errorf("encrypting key: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing encryptor: %w", err)
	}

	now := c.now()
	claims := jwt.MapClaims{
		keyClaim: base64.RawURLEncoding.EncodeToString(buf.Bytes()),
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
	}
	if c.maxAge > 0 {
		claims["exp"] = now.Add(c.maxAge).Unix()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing session: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and returns the API key inside it.
func (c *Codec) Decode(value string) (string, error) {
	if value == "" {
		return "", ErrInvalidSession
	}

	token, err := jwt.Parse(value, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.signingKey, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredSession
		}
		return "", ErrInvalidSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidSession
	}
	sealed, ok := claims[keyClaim].(string)
	if !ok {
		return "", ErrInvalidSession
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrInvalidSession
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), c.identity)
	if err != nil {
		return "", ErrInvalidSession
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", ErrInvalidSession
	}
	return string(plain), nil
}
