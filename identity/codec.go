// Package identity encrypts personal-identifier fields into opaque tokens.
// The ledger core stores and compares these tokens verbatim and never
// inspects their content; decryption is a boundary concern and only works
// where the private key is installed.
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// ErrUnavailable is returned by Decrypt when the codec holds no private
// key. Callers are expected to surface a redacted placeholder, not fail.
var ErrUnavailable = errors.New("identity: decryption key unavailable")

// Codec turns plaintext identifiers into opaque tokens and back.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

// BoxCodec implements Codec with anonymous sealed boxes: anyone holding
// the public key can produce tokens, only the private-key holder can open
// them. Tokens are base64 so they can sit in JSON state verbatim.
type BoxCodec struct {
	pub  *[32]byte
	priv *[32]byte // nil on machines without decryption capability
}

// Generate creates a codec with a fresh key pair.
func Generate() (*BoxCodec, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &BoxCodec{pub: pub, priv: priv}, nil
}

// NewEncryptOnly creates a codec that can produce tokens but answers
// ErrUnavailable on Decrypt.
func NewEncryptOnly(pub *[32]byte) *BoxCodec {
	return &BoxCodec{pub: pub}
}

// New creates a codec with full capability.
func New(pub, priv *[32]byte) *BoxCodec {
	return &BoxCodec{pub: pub, priv: priv}
}

// PublicKey returns the codec's public key.
func (c *BoxCodec) PublicKey() *[32]byte { return c.pub }

// PrivateKey returns the codec's private key, nil when encrypt-only.
func (c *BoxCodec) PrivateKey() *[32]byte { return c.priv }

// CanDecrypt reports whether this codec holds the private key.
func (c *BoxCodec) CanDecrypt() bool { return c.priv != nil }

func (c *BoxCodec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("identity: empty plaintext")
	}
	sealed, err := box.SealAnonymous(nil, []byte(plaintext), c.pub, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("seal identifier: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *BoxCodec) Decrypt(token string) (string, error) {
	if c.priv == nil {
		return "", ErrUnavailable
	}
	sealed, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decode identifier token: %w", err)
	}
	plain, ok := box.OpenAnonymous(nil, sealed, c.pub, c.priv)
	if !ok {
		return "", errors.New("identity: token does not open with this key")
	}
	return string(plain), nil
}
