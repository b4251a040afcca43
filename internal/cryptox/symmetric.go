package cryptox

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/fernet/fernet-go"
)

// SymmetricCipher encrypts message bodies and attachment bytes with the
// single process-wide Fernet key. Tokens are self-describing: version,
// timestamp, IV, AES-128-CBC ciphertext and an HMAC-SHA256 tag.
type SymmetricCipher struct {
	keys []*fernet.Key
	ttl  time.Duration
}

// NewSymmetricCipher parses a base64 (standard or URL-safe) 32-byte Fernet
// key. Extra keys are accepted for decryption only, which allows key
// rotation. ttl <= 0 disables token expiry.
func NewSymmetricCipher(key string, ttl time.Duration, oldKeys ...string) (*SymmetricCipher, error) {
	k, err := fernet.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}

	keys := []*fernet.Key{k}
	for _, s := range oldKeys {
		old, err := fernet.DecodeKey(s)
		if err != nil {
			return nil, fmt.Errorf("decode previous encryption key: %w", err)
		}
		keys = append(keys, old)
	}

	if ttl <= 0 {
		ttl = -1
	}
	return &SymmetricCipher{keys: keys, ttl: ttl}, nil
}

// GenerateSymmetricKey returns a fresh key in the encoding NewSymmetricCipher expects.
func GenerateSymmetricKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", err
	}
	return k.Encode(), nil
}

// Encrypt produces a Fernet token for plaintext.
func (c *SymmetricCipher) Encrypt(plaintext []byte) ([]byte, error) {
	tok, err := fernet.EncryptAndSign(plaintext, c.keys[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}
	return tok, nil
}

// Decrypt verifies and opens a Fernet token. Malformed, tampered, and
// expired tokens all yield ErrDecryption.
func (c *SymmetricCipher) Decrypt(token []byte) ([]byte, error) {
	msg := fernet.VerifyAndDecrypt(token, c.ttl, c.keys)
	if msg == nil {
		return nil, fmt.Errorf("%w: invalid or expired token", common.ErrDecryption)
	}
	return msg, nil
}
