package models

// KeyPair is a user's RSA key pair in PEM form. Either half may be empty
// until the pair has been generated.
type KeyPair struct {
	UserID     int64
	PublicKey  string
	PrivateKey string
}

// Complete reports whether both halves are present.
func (k *KeyPair) Complete() bool {
	return k != nil && k.PublicKey != "" && k.PrivateKey != ""
}
