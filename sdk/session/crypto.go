package session

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	secretFileName = "machine.secret"
	secretLen      = 32
	nonceLen       = 24
	kdfIterations  = 4096
)

// kdfSalt namespaces the derived key so the machine secret cannot be replayed
// against other applications sharing the same file.
var kdfSalt = []byte("runners-session-blob-v1")

// blobCipher seals and opens the session blobs persisted on disk. The key is
// derived from a per-machine random secret created on first use.
type blobCipher struct {
	key [32]byte
}

// newBlobCipher loads or creates the machine secret under dir and derives the
// sealing key from it. Failure to establish the secret is fatal for the store.
func newBlobCipher(dir string) (*blobCipher, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: create dir failed: %w", err)
	}

	secretPath := filepath.Join(dir, secretFileName)
	secret, err := os.ReadFile(secretPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("session: read machine secret failed: %w", err)
		}
		secret = make([]byte, secretLen)
		if _, err = rand.Read(secret); err != nil {
			return nil, fmt.Errorf("session: generate machine secret failed: %w", err)
		}
		if err = os.WriteFile(secretPath, secret, 0o600); err != nil {
			return nil, fmt.Errorf("session: write machine secret failed: %w", err)
		}
	}
	if len(secret) < secretLen {
		return nil, fmt.Errorf("session: machine secret too short (%d bytes)", len(secret))
	}

	c := &blobCipher{}
	copy(c.key[:], pbkdf2.Key(secret, kdfSalt, kdfIterations, 32, sha256.New))
	return c, nil
}

// seal encrypts plain and prefixes the random nonce used.
func (c *blobCipher) seal(plain []byte) ([]byte, error) {
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("session: generate nonce failed: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &c.key), nil
}

// open decrypts a blob produced by seal.
func (c *blobCipher) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceLen {
		return nil, fmt.Errorf("session: sealed blob too short")
	}
	var nonce [nonceLen]byte
	copy(nonce[:], sealed[:nonceLen])
	plain, ok := secretbox.Open(nil, sealed[nonceLen:], &nonce, &c.key)
	if !ok {
		return nil, fmt.Errorf("session: blob decryption failed")
	}
	return plain, nil
}
