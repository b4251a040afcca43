// Package cryptox implements the message encryption primitives: per-user
// RSA key pairs used for envelope encryption, the process-wide Fernet
// cipher, and password hashing.
package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealchat/internal/common"
)

// KeyBits is the RSA modulus size used for new key pairs. rsa.GenerateKey
// always uses the public exponent 65537.
const KeyBits = 2048

var randReader = rand.Reader

// GenerateKeyPair creates a new RSA key pair and returns it PEM encoded:
// SubjectPublicKeyInfo for the public half, unencrypted PKCS#8 for the
// private half.
func GenerateKeyPair() (publicPEM, privatePEM string, err error) {
	key, err := rsa.GenerateKey(randReader, KeyBits)
	if err != nil {
		return "", "", fmt.Errorf("generate rsa key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("marshal public key: %w", err)
	}

	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	common.WipeByteArray(privDER)

	return publicPEM, privatePEM, nil
}

// MaxEnvelopePayload reports how many plaintext bytes a single OAEP-SHA256
// block can carry for the given public key.
func MaxEnvelopePayload(publicPEM string) (int, error) {
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return 0, err
	}
	return pub.Size() - 2*sha256.Size - 2, nil
}

// EncryptWithPublicKey encrypts message with RSA-OAEP (SHA-256 for both the
// hash and MGF1) and returns standard base64. Payloads larger than
// MaxEnvelopePayload fail; encrypt large data symmetrically first.
func EncryptWithPublicKey(message []byte, publicPEM string) (string, error) {
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return "", err
	}

	out, err := rsa.EncryptOAEP(sha256.New(), randReader, pub, message, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptWithPrivateKey reverses EncryptWithPublicKey. Callers that expect
// text convert the result with string(); binary payloads are returned as is.
func DecryptWithPrivateKey(ciphertext string, privatePEM string) ([]byte, error) {
	priv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", common.ErrDecryption, err)
	}

	out, err := rsa.DecryptOAEP(sha256.New(), nil, priv, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	return out, nil
}

func parsePublicKey(publicPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return nil, fmt.Errorf("%w: public key is not PEM", common.ErrEncryption)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not RSA", common.ErrEncryption)
	}
	return pub, nil
}

func parsePrivateKey(privatePEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return nil, fmt.Errorf("%w: private key is not PEM", common.ErrDecryption)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// keys exported by older tooling may still be PKCS#1
		if k1, err1 := x509.ParsePKCS1PrivateKey(block.Bytes); err1 == nil {
			return k1, nil
		}
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Join(common.ErrDecryption, errors.New("private key is not RSA"))
	}
	return priv, nil
}
