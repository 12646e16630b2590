// Package keys manages the signing keypair used to sign build
// checkpoints: a c2sp.org/checkpoint-style note over a build's
// artifact manifest root and CFS digest.
package keys

import (
	"crypto/rand"
	"fmt"
	"os"

	"golang.org/x/mod/sumdb/note"
)

// KeyPair holds a build checkpoint signing key in note's wire format:
// skey is private, vkey is the corresponding public verifier string.
type KeyPair struct {
	Name string
	SKey string
	VKey string
}

// Generate creates a fresh Ed25519 note signing key under the given
// name, which identifies the key in the signature line of every note
// it signs.
func Generate(name string) (KeyPair, error) {
	skey, vkey, err := note.GenerateKey(rand.Reader, name)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keys: generating signing key: %w", err)
	}
	return KeyPair{Name: name, SKey: skey, VKey: vkey}, nil
}

// Signer returns a note.Signer for this keypair's private key.
func (k KeyPair) Signer() (note.Signer, error) {
	s, err := note.NewSigner(k.SKey)
	if err != nil {
		return nil, fmt.Errorf("keys: loading signer: %w", err)
	}
	return s, nil
}

// Verifier returns a note.Verifier for this keypair's public key.
func (k KeyPair) Verifier() (note.Verifier, error) {
	v, err := note.NewVerifier(k.VKey)
	if err != nil {
		return nil, fmt.Errorf("keys: loading verifier: %w", err)
	}
	return v, nil
}

// LoadPrivate reads a private key file previously written by Save.
func LoadPrivate(path string) (note.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: reading private key %s: %w", path, err)
	}
	s, err := note.NewSigner(string(data))
	if err != nil {
		return nil, fmt.Errorf("keys: parsing private key %s: %w", path, err)
	}
	return s, nil
}

// Save writes the keypair's private and public halves to path and
// path+".pub", matching ssh-keygen's layout convention.
func (k KeyPair) Save(path string) error {
	if err := os.WriteFile(path, []byte(k.SKey), 0o600); err != nil {
		return fmt.Errorf("keys: writing private key %s: %w", path, err)
	}
	if err := os.WriteFile(path+".pub", []byte(k.VKey+"\n"), 0o644); err != nil {
		return fmt.Errorf("keys: writing public key %s: %w", path, err)
	}
	return nil
}

// SignCheckpoint signs a build checkpoint note whose text is the
// fixed-format checkpoint body (origin, manifest root, CFS digest),
// already rendered to text by the caller.
func SignCheckpoint(signer note.Signer, text string) ([]byte, error) {
	signed, err := note.Sign(&note.Note{Text: text}, signer)
	if err != nil {
		return nil, fmt.Errorf("keys: signing checkpoint: %w", err)
	}
	return signed, nil
}

// OpenCheckpoint verifies and parses a signed checkpoint against the
// given verifier, returning the note's plaintext body on success.
func OpenCheckpoint(signed []byte, verifier note.Verifier) (string, error) {
	n, err := note.Open(signed, note.VerifierList(verifier))
	if err != nil {
		return "", fmt.Errorf("keys: opening checkpoint: %w", err)
	}
	return n.Text, nil
}
