package token

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrInvalidKey is returned when the encryption key has the wrong length.
var ErrInvalidKey = errors.New("encryption key must be 16, 24 or 32 bytes")

// FileStore persists the token encrypted at rest with AES-GCM, the file
// playing the role the platform's encrypted preferences play in the apps.
// Writes go through a temp file and rename so readers see either the old
// or the new token, never a partial one.
type FileStore struct {
	path string
	key  []byte
	mu   sync.Mutex
}

// NewFileStore creates a file-backed store at path. The key must be a valid
// AES key length.
func NewFileStore(path string, key []byte) (*FileStore, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKey
	}
	return &FileStore{path: path, key: key}, nil
}

func (s *FileStore) Get(ctx context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ciphertext, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Token{}, ErrNoToken
	}
	if err != nil {
		return Token{}, errors.Join(ErrStorage, err)
	}

	plaintext, err := s.decrypt(ciphertext)
	if err != nil {
		return Token{}, errors.Join(ErrStorage, err)
	}

	var tok Token
	if err := json.Unmarshal(plaintext, &tok); err != nil {
		return Token{}, errors.Join(ErrStorage, err)
	}
	return tok, nil
}

func (s *FileStore) Save(ctx context.Context, t Token) error {
	plaintext, err := json.Marshal(withRecoveredExpiry(t))
	if err != nil {
		return errors.Join(ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ciphertext, err := s.encrypt(plaintext)
	if err != nil {
		return errors.Join(ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return errors.Join(ErrStorage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(ciphertext); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Join(ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Join(ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Join(ErrStorage, err)
	}
	return nil
}

func (s *FileStore) IsExpired(ctx context.Context) (bool, error) {
	tok, err := s.Get(ctx)
	if errors.Is(err, ErrNoToken) {
		return true, nil
	}
	if err != nil {
		return true, err
	}
	return tok.Expired(time.Now()), nil
}

func (s *FileStore) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	// Nonce is prepended to the ciphertext for storage.
	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *FileStore) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aesGCM.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:aesGCM.NonceSize()], ciphertext[aesGCM.NonceSize():]
	return aesGCM.Open(nil, nonce, sealed, nil)
}
