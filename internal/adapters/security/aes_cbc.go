package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/viralforge/barter-exchange/internal/domain"
)

// AESCBCCipher encrypts transaction fields with AES-256-CBC and a fresh random IV per value.
type AESCBCCipher struct {
	keys   *Keyring
	random io.Reader
}

func NewAESCBCCipher(keys *Keyring) *AESCBCCipher {
	return &AESCBCCipher{keys: keys, random: rand.Reader}
}

func (c *AESCBCCipher) Encrypt(plaintext string) (domain.SealedField, error) {
	keyID, key := c.keys.Active()
	block, err := aes.NewCipher(key)
	if err != nil {
		return domain.SealedField{}, fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return domain.SealedField{}, fmt.Errorf("%w: generate iv: %v", domain.ErrEncryption, err)
	}
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return domain.SealedField{
		Ciphertext: hex.EncodeToString(out),
		IV:         hex.EncodeToString(iv),
		KeyID:      keyID,
	}, nil
}

func (c *AESCBCCipher) Decrypt(field domain.SealedField) (string, error) {
	key, ok := c.keys.Key(field.KeyID)
	if !ok {
		return "", fmt.Errorf("%w: unknown key id %q", domain.ErrDecryption, field.KeyID)
	}
	iv, err := hex.DecodeString(field.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: malformed iv", domain.ErrDecryption)
	}
	raw, err := hex.DecodeString(field.Ciphertext)
	if err != nil || len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: malformed ciphertext", domain.ErrDecryption)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, raw)
	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not valid utf-8", domain.ErrDecryption)
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
