// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// GenerateIdentity returns a new X25519 identity file body and the
// matching recipient. The identity must be stored with mode 0600.
func GenerateIdentity() (identityFile []byte, recipient string, err error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, "", fmt.Errorf("credential: generating identity: %w", err)
	}
	recipient = identity.Recipient().String()
	identityFile = fmt.Appendf(nil, "# public key: %s\n%s\n", recipient, identity.String())
	return identityFile, recipient, nil
}

// Seal encrypts plaintext to recipients (age1... strings) as an
// ASCII-armored age file.
func Seal(plaintext []byte, recipients []string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("credential: at least one recipient is required")
	}
	parsed := make([]age.Recipient, 0, len(recipients))
	for _, key := range recipients {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("credential: parsing recipient %q: %w", key, err)
		}
		parsed = append(parsed, recipient)
	}

	var ciphertext bytes.Buffer
	armored := armor.NewWriter(&ciphertext)
	writer, err := age.Encrypt(armored, parsed...)
	if err != nil {
		return nil, fmt.Errorf("credential: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("credential: encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("credential: finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("credential: finalizing armor: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Unseal decrypts an age file, armored or binary, with the identities
// in identityFile and returns the trimmed plaintext as a Token.
func Unseal(ciphertext, identityFile []byte) (*Token, error) {
	identities, err := age.ParseIdentities(bytes.NewReader(identityFile))
	if err != nil {
		return nil, fmt.Errorf("credential: parsing identity file: %w", err)
	}

	source := bufio.NewReader(bytes.NewReader(ciphertext))
	var input io.Reader = source
	if start, _ := source.Peek(len(armor.Header)); string(start) == armor.Header {
		input = armor.NewReader(source)
	}

	reader, err := age.Decrypt(input, identities...)
	if err != nil {
		return nil, fmt.Errorf("credential: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		zero(plaintext)
		return nil, fmt.Errorf("credential: reading plaintext: %w", err)
	}
	defer zero(plaintext)

	trimmed := bytes.TrimSpace(plaintext)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("credential: sealed token is empty")
	}
	return NewToken(trimmed)
}
