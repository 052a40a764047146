package identity

import (
	"encoding/hex"
	"fmt"
	"os"
)

// Key files hold one hex-encoded 32-byte key each. The public key file is
// distributed to every machine; the private key file exists only where
// decryption is allowed.

// SaveKey writes a key to path, private-file permissions.
func SaveKey(path string, key *[32]byte) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(key[:])+"\n"), 0600)
}

// LoadKey reads a hex-encoded 32-byte key from path.
func LoadKey(path string) (*[32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(trim(data))
	if err != nil {
		return nil, fmt.Errorf("key file %q: %w", path, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key file %q: want 32 bytes, got %d", path, len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// Load builds a codec from key files. privPath may be empty or point at a
// missing file; the codec then encrypts only and Decrypt answers
// ErrUnavailable, which is the normal condition on non-admin machines.
func Load(pubPath, privPath string) (*BoxCodec, error) {
	pub, err := LoadKey(pubPath)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	if privPath == "" {
		return NewEncryptOnly(pub), nil
	}
	priv, err := LoadKey(privPath)
	if os.IsNotExist(err) {
		return NewEncryptOnly(pub), nil
	}
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return New(pub, priv), nil
}

func trim(data []byte) string {
	s := string(data)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
