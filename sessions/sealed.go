package sessions

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "sealed:v1:"

// SealedStore encrypts the secret fields of a record (identity refresh
// token, connection strings and database refresh tokens) before handing it
// to the backing store, and decrypts them on read.
type SealedStore struct {
	next Store
	aead cipher.AEAD
}

var _ Store = (*SealedStore)(nil)

// NewSealedStore wraps next using a 32 byte XChaCha20-Poly1305 key
func NewSealedStore(next Store, key []byte) (*SealedStore, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create session cipher: %w", err)
	}
	return &SealedStore{next: next, aead: aead}, nil
}

// ParseSealKey decodes a hex encoded seal key
func ParseSealKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

func (s *SealedStore) Get(ctx context.Context, email string) (*Record, error) {
	record, err := s.next.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.open(record, email)
}

func (s *SealedStore) Save(ctx context.Context, email string, record *Record) error {
	sealed, err := s.seal(record, email)
	if err != nil {
		return err
	}
	return s.next.Save(ctx, email, sealed)
}

func (s *SealedStore) Update(ctx context.Context, email string, record *Record) error {
	sealed, err := s.seal(record, email)
	if err != nil {
		return err
	}
	return s.next.Update(ctx, email, sealed)
}

func (s *SealedStore) Delete(ctx context.Context, email string) error {
	return s.next.Delete(ctx, email)
}

func (s *SealedStore) Count(ctx context.Context) (int, error) {
	return s.next.Count(ctx)
}

func (s *SealedStore) seal(record *Record, email string) (*Record, error) {
	if record == nil {
		return nil, errors.New("record cannot be nil")
	}

	c := record.Clone()
	var err error
	if c.IdentityRefreshToken, err = s.sealValue(c.IdentityRefreshToken, email); err != nil {
		return nil, err
	}
	for key, binding := range c.DatabaseSessions {
		if binding.ConnectionString, err = s.sealValue(binding.ConnectionString, email); err != nil {
			return nil, err
		}
		if binding.RefreshToken, err = s.sealValue(binding.RefreshToken, email); err != nil {
			return nil, err
		}
		c.DatabaseSessions[key] = binding
	}
	return c, nil
}

func (s *SealedStore) open(record *Record, email string) (*Record, error) {
	c := record.Clone()
	var err error
	if c.IdentityRefreshToken, err = s.openValue(c.IdentityRefreshToken, email); err != nil {
		return nil, err
	}
	for key, binding := range c.DatabaseSessions {
		if binding.ConnectionString, err = s.openValue(binding.ConnectionString, email); err != nil {
			return nil, err
		}
		if binding.RefreshToken, err = s.openValue(binding.RefreshToken, email); err != nil {
			return nil, err
		}
		c.DatabaseSessions[key] = binding
	}
	return c, nil
}

// sealValue encrypts value with email as additional data so a sealed field
// cannot be replayed into another user's record.
func (s *SealedStore) sealValue(value, email string) (string, error) {
	if value == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := s.aead.Seal(nonce, nonce, []byte(value), []byte(email))
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

func (s *SealedStore) openValue(value, email string) (string, error) {
	if value == "" {
		return "", nil
	}
	if !strings.HasPrefix(value, sealedPrefix) {
		return "", fmt.Errorf("session field is not sealed")
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed field: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("sealed field too short")
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(email))
	if err != nil {
		return "", fmt.Errorf("open sealed field: %w", err)
	}
	return string(plaintext), nil
}
