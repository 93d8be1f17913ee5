// Package pii encrypts the sensitive home fields stored at rest.
//
// Ciphertext has the form ivHex:cipherHex (AES-256-CBC, PKCS#7 padding, random IV per call).
// Rows written before encryption was introduced hold plaintext, so Decrypt runs in a
// tolerant mode that hands such values back unchanged; DecryptStrict reports them instead.
package pii

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const separator = ":"

var (
	// ErrNotEncrypted means the value carries no iv separator and is legacy plaintext
	ErrNotEncrypted = errors.New("value is not encrypted")

	// ErrMalformed means the value looks encrypted but cannot be decoded
	ErrMalformed = errors.New("malformed ciphertext")
)

// Codec implements encrypt/decrypt/hash over a single AES-256 key
type Codec struct {
	block  cipher.Block
	logger *zap.Logger
}

// NewCodec creates a codec from a 32 byte key
func NewCodec(key []byte, logger *zap.Logger) (*Codec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("pii key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{block: block, logger: logger}, nil
}

// NewCodecFromHex creates a codec from a 64 character hex key
func NewCodecFromHex(hexKey string, logger *zap.Logger) (*Codec, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("pii key is not valid hex: %w", err)
	}
	return NewCodec(key, logger)
}

// Encrypt returns ivHex:cipherHex. Empty input yields empty output.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out, padded)

	return hex.EncodeToString(iv) + separator + hex.EncodeToString(out), nil
}

// DecryptStrict decrypts a value and reports legacy or malformed input as an error
func (c *Codec) DecryptStrict(value string) (string, error) {
	if value == "" {
		return "", nil
	}

	ivHex, cipherHex, found := strings.Cut(value, separator)
	if !found {
		return "", ErrNotEncrypted
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: bad iv", ErrMalformed)
	}
	data, err := hex.DecodeString(cipherHex)
	if err != nil || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: bad cipher block", ErrMalformed)
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(out, data)

	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Decrypt is the tolerant decode used when reading rows. Values that are not
// encrypted, or cannot be decoded, are returned unchanged and logged at debug level.
func (c *Codec) Decrypt(value string) string {
	plain, err := c.DecryptStrict(value)
	if err == nil {
		return plain
	}
	if errors.Is(err, ErrNotEncrypted) {
		c.logger.Debug("Tolerant decode: legacy plaintext value")
	} else {
		c.logger.Debug("Tolerant decode: undecodable value returned unchanged", zap.Error(err))
	}
	return value
}

// Hash returns a fixed length hex digest of the trimmed, lowercased value for equality lookups
func Hash(plaintext string) string {
	normalized := strings.ToLower(strings.TrimSpace(plaintext))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrMalformed)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrMalformed)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrMalformed)
		}
	}
	return data[:len(data)-n], nil
}
