package middleware

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/ports"
)

const sealedKey = "__sealed__"

// ErrNotSealed is returned when stored progress lacks the encrypted envelope.
var ErrNotSealed = errors.New("progress is missing encrypted envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new data. Must be 32 bytes (AES-256).
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt,
	// which allows key rotation without downtime.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.ProgressStore
	config EncryptionConfig
}

// NewEncryptionMiddleware seals collected values with AES-GCM. The position
// (dialog, step index, confirmation flag) stays readable for indexing.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("active key must be 32 bytes (AES-256), got %d", len(config.ActiveKey))
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes (AES-256), got %d", i, len(k))
		}
	}
	return func(next ports.ProgressStore) ports.ProgressStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

// sealed holds the fields hidden by the envelope.
type sealed struct {
	Values  map[string]any     `json:"values"`
	Pending *domain.StepResult `json:"pending,omitempty"`
}

func (m *encryptionMiddleware) Save(ctx context.Context, conversationID string, progress *domain.Progress) error {
	plain, err := json.Marshal(sealed{Values: progress.Values, Pending: progress.Pending})
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	ciphertext, err := encrypt(plain, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt progress: %w", err)
	}

	envelope := progress.Clone()
	envelope.Pending = nil
	envelope.Values = map[string]any{
		sealedKey: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return m.next.Save(ctx, conversationID, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, conversationID string) (*domain.Progress, error) {
	envelope, err := m.next.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	encoded, ok := envelope.Values[sealedKey].(string)
	if !ok {
		return nil, ErrNotSealed
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt progress: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.UseNumber()
	var inner sealed
	if err := dec.Decode(&inner); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted progress: %w", err)
	}

	envelope.Values = make(map[string]any, len(inner.Values))
	for k, v := range inner.Values {
		envelope.Values[k] = domain.NormalizeValue(v)
	}
	envelope.Pending = inner.Pending
	if envelope.Pending != nil {
		envelope.Pending.Value = domain.NormalizeValue(envelope.Pending.Value)
	}
	return envelope, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, conversationID string) error {
	return m.next.Delete(ctx, conversationID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
