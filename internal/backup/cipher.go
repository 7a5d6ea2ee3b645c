package backup

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"prefect-attendance/internal/attendance"
)

// ===== XOR obfuscation =====
//
// Encrypt/Decrypt XOR the payload with the passphrase repeated across it and
// base64 the result. This is NOT encryption: the key is recoverable from any
// known plaintext (every envelope starts with `{"version"`). It only keeps a
// backup file from being read or edited at a glance. Use Seal for
// confidentiality.

func Encrypt(payload []byte, passphrase string) (string, error) {
	if passphrase == "" {
		return "", attendance.ErrValidation("passphrase is required")
	}
	return base64.StdEncoding.EncodeToString(xor(payload, []byte(passphrase))), nil
}

// Decrypt reverses Encrypt. A wrong passphrase yields bytes that are not JSON,
// which is reported as a decryption error.
func Decrypt(text, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, attendance.ErrValidation("passphrase is required")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return nil, attendance.ErrDecryption("backup is not an encrypted payload")
	}
	out := xor(raw, []byte(passphrase))
	if !json.Valid(out) {
		return nil, attendance.ErrDecryption("wrong passphrase or corrupted ciphertext")
	}
	return out, nil
}

func xor(in, key []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// ===== sealed format =====
//
// SealedPrefix + base64(salt | nonce | XChaCha20-Poly1305 ciphertext), with the
// key derived from the passphrase by scrypt.

const SealedPrefix = "prefect-sealed-v1:"

const (
	saltSize = 16
	keySize  = chacha20poly1305.KeySize
	scryptN  = 1 << 15
	scryptR  = 8
	scryptP  = 1
)

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
}

func Seal(payload []byte, passphrase string) (string, error) {
	if passphrase == "" {
		return "", attendance.ErrValidation("passphrase is required")
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", attendance.ErrInternal("read salt", err)
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return "", attendance.ErrInternal("derive key", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", attendance.ErrInternal("init cipher", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", attendance.ErrInternal("read nonce", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(payload)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, payload, nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open authenticates and decrypts a Seal result.
func Open(text, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, attendance.ErrValidation("passphrase is required")
	}
	body, ok := strings.CutPrefix(strings.TrimSpace(text), SealedPrefix)
	if !ok {
		return nil, attendance.ErrDecryption("not a sealed backup")
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, attendance.ErrDecryption("sealed backup is not valid base64")
	}
	if len(raw) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, attendance.ErrDecryption("sealed backup is truncated")
	}
	salt, rest := raw[:saltSize], raw[saltSize:]
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, attendance.ErrInternal("derive key", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, attendance.ErrInternal("init cipher", err)
	}
	nonce, ct := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, attendance.ErrDecryption("wrong passphrase or tampered backup")
	}
	return plain, nil
}
