// Package cryptox seals JSON documents under a passphrase: an argon2id key
// derivation followed by AES-256-GCM.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	KDFArgon2id = "argon2id"

	saltSize = 16
	keySize  = 32
)

var ErrDecrypt = errors.New("decryption failed: wrong passphrase or corrupted data")

// Sealed is the stored form of an encrypted document. Byte fields encode as
// base64 in JSON.
type Sealed struct {
	KDF        string `json:"kdf"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// DeriveKey stretches passphrase into a 256-bit AES key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, keySize)
}

// Seal serializes v to JSON and encrypts it with a key derived from
// passphrase and a fresh random salt. Every call uses a new nonce.
func Seal(v any, passphrase []byte) (*Sealed, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	aead, err := newGCM(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return &Sealed{
		KDF:        KDFArgon2id,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Open decrypts s with passphrase and unmarshals the JSON into v.
func Open(s *Sealed, passphrase []byte, v any) error {
	if s.KDF != KDFArgon2id {
		return fmt.Errorf("unsupported kdf %q", s.KDF)
	}
	aead, err := newGCM(DeriveKey(passphrase, s.Salt))
	if err != nil {
		return err
	}
	if len(s.Nonce) != aead.NonceSize() {
		return ErrDecrypt
	}

	plaintext, err := aead.Open(nil, s.Nonce, s.Ciphertext, nil)
	if err != nil {
		return ErrDecrypt
	}
	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
