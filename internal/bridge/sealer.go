package bridge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/vaultlink/vaultlink/internal/models"
)

// Sealed is the result of sealing a plaintext for upload.
type Sealed struct {
	Ciphertext string
	Key        string
}

// Sealer encrypts uploads and opens downloads. The threshold key-sharing
// scheme of the server lives behind this interface; the provider treats
// keys, shares and ciphertexts as opaque strings.
type Sealer interface {
	Seal(ctx context.Context, params json.RawMessage, plaintext []byte) (Sealed, error)
	Open(ctx context.Context, in OpenInput) ([]byte, error)
}

// OpenInput carries everything a Sealer may need to recover a plaintext.
type OpenInput struct {
	Params     json.RawMessage
	Detail     *models.FileDetail
	Shares     []json.RawMessage
	PrivateKey []byte
}

// PlainSealer base64-encodes the payload and generates a random key that
// is sent along but not applied. It matches servers running without
// encryption and is used in tests.
type PlainSealer struct{}

// Seal implements Sealer.
func (PlainSealer) Seal(_ context.Context, _ json.RawMessage, plaintext []byte) (Sealed, error) {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return Sealed{}, fmt.Errorf("generate key: %w", err)
	}
	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(plaintext),
		Key:        hex.EncodeToString(key),
	}, nil
}

// Open implements Sealer.
func (PlainSealer) Open(_ context.Context, in OpenInput) ([]byte, error) {
	if in.Detail == nil {
		return nil, fmt.Errorf("missing file detail")
	}
	data, err := base64.StdEncoding.DecodeString(in.Detail.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	return data, nil
}
