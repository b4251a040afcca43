package main

import (
	"fmt"
	"io"

	"github.com/dmitrijs2005/sealchat/internal/cryptox"
)

// genKeyCommand prints a fresh value for SEALCHAT_ENCRYPTION_KEY.
const genKeyCommand = "genkey"

func writeEncryptionKey(w io.Writer) error {
	key, err := cryptox.GenerateSymmetricKey()
	if err != nil {
		return fmt.Errorf("generate encryption key: %w", err)
	}
	_, err = fmt.Fprintln(w, key)
	return err
}
