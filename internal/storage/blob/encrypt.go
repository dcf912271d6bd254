package blob

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	encryptionMetadataKey = "blob-encryption"
	encryptionMethod      = "aes-gcm"
)

type encryptor struct {
	aead cipher.AEAD
}

func newEncryptor(raw string) (*encryptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("reports.encryption_key must be base64: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("reports.encryption_key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &encryptor{aead: aead}, nil
}

// seal encrypts the whole body with a random nonce prefix. The object key is
// bound as additional data so a blob cannot be replayed under another key.
func (e *encryptor) seal(key string, r io.Reader) (io.Reader, map[string]string, error) {
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	payload := e.aead.Seal(nonce, nonce, plain, []byte(key))
	return bytes.NewReader(payload), map[string]string{encryptionMetadataKey: encryptionMethod}, nil
}

func (e *encryptor) open(key string, r io.Reader) (io.ReadCloser, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, 0, errors.New("encrypted payload too short")
	}
	plain, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(key))
	if err != nil {
		return nil, 0, fmt.Errorf("decrypt %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(plain)), int64(len(plain)), nil
}
