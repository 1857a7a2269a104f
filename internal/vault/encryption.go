package vault

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/charlesng35/lockgate/pkg/crypto"
)

const (
	saltLength = 16
	keyLength  = 32
)

// Params tunes the Argon2id derivation of the data key.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultParams follows the OWASP minimum for Argon2id.
func DefaultParams() Params {
	return Params{Time: 2, Memory: 19 * 1024, Threads: 1}
}

// Cipher encrypts secrets at rest (TOTP seeds, network passwords) with a key
// derived from the configured master key.
type Cipher struct {
	key  []byte
	salt []byte
}

type options struct {
	params Params
	salt   []byte
}

// Option configures NewCipher.
type Option func(*options)

// WithSalt overrides the salt, which otherwise derives from the master key so
// restarts with the same master key decrypt existing rows.
func WithSalt(salt []byte) Option {
	cp := append([]byte(nil), salt...)
	return func(o *options) { o.salt = cp }
}

// WithParams overrides the Argon2id cost parameters.
func WithParams(p Params) Option {
	return func(o *options) { o.params = p }
}

// NewCipher derives the data key from masterKey.
func NewCipher(masterKey []byte, opts ...Option) (*Cipher, error) {
	if len(masterKey) == 0 {
		return nil, errors.New("vault: master key is required")
	}

	o := options{params: DefaultParams()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.params.Time == 0 || o.params.Memory == 0 || o.params.Threads == 0 {
		return nil, errors.New("vault: argon2 parameters must be positive")
	}

	if len(o.salt) == 0 {
		sum := sha256.Sum256(masterKey)
		o.salt = sum[:saltLength]
	} else if len(o.salt) < saltLength {
		return nil, fmt.Errorf("vault: salt must be at least %d bytes (got %d)", saltLength, len(o.salt))
	}

	key := argon2.IDKey(masterKey, o.salt, o.params.Time, o.params.Memory, o.params.Threads, keyLength)
	return &Cipher{key: key, salt: o.salt}, nil
}

// Encrypt seals plaintext with AES-256-GCM.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	return crypto.Encrypt(plaintext, c.key)
}

// Decrypt opens a payload produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext string) ([]byte, error) {
	return crypto.Decrypt(ciphertext, c.key)
}

// Key returns a copy of the derived key.
func (c *Cipher) Key() []byte {
	return append([]byte(nil), c.key...)
}
