// Package blobcrypt seals the exported snapshot document with a
// passphrase before it leaves the device. The remote replica only ever
// sees the sealed blob.
//
// Blob layout: magic(4) || salt(16) || nonce(12) || AES-256-GCM
// ciphertext+tag. The key is derived per blob: scrypt over the
// NFKC-normalised passphrase and the random salt, then an HKDF-SHA256
// subkey so the scrypt output is never used as a cipher key directly.
package blobcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/text/unicode/norm"

	errs "github.com/alexjbarnes/tracker-sync/internal/errors"
)

const (
	// scryptN is the CPU/memory cost parameter (2^15).
	scryptN = 32768

	// scryptR is the block size parameter.
	scryptR = 8

	// scryptP is the parallelization parameter.
	scryptP = 1

	// keyLen is the derived key length in bytes.
	keyLen = 32

	// saltLen is the per-blob random salt length in bytes.
	saltLen = 16

	// nonceLen is the AES-GCM nonce length in bytes.
	nonceLen = 12
)

// magic identifies a sealed snapshot blob, version 1.
var magic = []byte("TSB1")

// hkdfInfo separates the snapshot cipher key from any future subkeys
// derived from the same scrypt output.
var hkdfInfo = []byte("TrackerSnapshotAesGcm")

// deriveKey derives the 32-byte cipher key from passphrase and salt.
// The passphrase is normalised to NFKC so the same passphrase typed on
// different platforms derives the same key.
func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	passphrase = norm.NFKC.String(passphrase)

	ikm, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	r := hkdf.New(sha256.New, ikm, salt, hkdfInfo)

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("expanding key: %w", err)
	}

	zero(ikm)

	return key, nil
}

// zero overwrites key material once it is no longer needed.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return gcm, nil
}

// Seal encrypts plaintext under the passphrase with a fresh salt and
// nonce. Sealing the same document twice produces different blobs.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, len(magic)+saltLen+nonceLen+len(plaintext)+gcm.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)

	return out, nil
}

// Open decrypts a sealed blob. A wrong passphrase and a corrupted blob
// are indistinguishable by construction; both surface ErrWrongPassphrase.
func Open(blob []byte, passphrase string) ([]byte, error) {
	header := len(magic) + saltLen + nonceLen
	if len(blob) < header {
		return nil, fmt.Errorf("sealed blob too short: %d bytes", len(blob))
	}

	if !bytes.Equal(blob[:len(magic)], magic) {
		return nil, fmt.Errorf("not a sealed snapshot blob")
	}

	salt := blob[len(magic) : len(magic)+saltLen]
	nonce := blob[len(magic)+saltLen : header]
	ciphertext := blob[header:]

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrWrongPassphrase, err)
	}

	return plaintext, nil
}
