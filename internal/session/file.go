package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// fileDocument is the on-disk layout. Values is used for plaintext stores;
// Salt, Nonce and Sealed for encrypted ones.
type fileDocument struct {
	Values map[string]string `json:"values,omitempty"`
	Salt   []byte            `json:"salt,omitempty"`
	Nonce  []byte            `json:"nonce,omitempty"`
	Sealed []byte            `json:"sealed,omitempty"`
}

// FileStore persists the session as a single JSON document so it survives
// process restarts. Every write replaces the file atomically.
type FileStore struct {
	path       string
	passphrase []byte

	mu   sync.Mutex
	salt []byte
	key  *[keySize]byte
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithPassphrase enables at-rest encryption of the session document.
func WithPassphrase(passphrase string) FileOption {
	return func(f *FileStore) {
		if passphrase != "" {
			f.passphrase = []byte(passphrase)
		}
	}
}

// NewFileStore creates a store backed by the file at path.
// The file and its directory are created on first write.
func NewFileStore(path string, opts ...FileOption) *FileStore {
	f := &FileStore{path: path}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the location of the session document.
func (f *FileStore) Path() string {
	return f.path
}

// Encrypted reports whether the document is sealed with a passphrase.
func (f *FileStore) Encrypted() bool {
	return len(f.passphrase) > 0
}

// Get returns the value stored under key.
func (f *FileStore) Get(_ context.Context, key Key) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[string(key)]
	return v, ok, nil
}

// Set stores value under key.
func (f *FileStore) Set(_ context.Context, key Key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[string(key)] = value
	return f.save(values)
}

// Remove deletes key.
func (f *FileStore) Remove(_ context.Context, key Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := values[string(key)]; !ok {
		return nil
	}
	delete(values, string(key))
	return f.save(values)
}

// Clear removes the session document.
func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.NewStoreError("clear", err)
	}
	return nil
}

func (f *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.NewStoreError("read", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewStoreError("decode", err)
	}

	if doc.Sealed == nil {
		if doc.Values == nil {
			doc.Values = map[string]string{}
		}
		return doc.Values, nil
	}

	if !f.Encrypted() {
		return nil, errors.NewStoreError("read", os.ErrPermission).
			WithSuggestion("Set session.passphrase to read an encrypted session file")
	}
	if len(doc.Nonce) != nonceSize || len(doc.Salt) != saltSize {
		return nil, errors.NewStoreError("decode", os.ErrInvalid)
	}

	key := f.deriveKey(doc.Salt)
	var nonce [nonceSize]byte
	copy(nonce[:], doc.Nonce)

	plain, ok := secretbox.Open(nil, doc.Sealed, &nonce, key)
	if !ok {
		return nil, errors.NewStoreError("decrypt", os.ErrPermission).
			WithSuggestion("Check that session.passphrase matches the one used to write the session")
	}

	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, errors.NewStoreError("decode", err)
	}
	return values, nil
}

func (f *FileStore) save(values map[string]string) error {
	doc := fileDocument{Values: values}

	if f.Encrypted() {
		plain, err := json.Marshal(values)
		if err != nil {
			return errors.NewStoreError("encode", err)
		}
		if f.salt == nil {
			salt := make([]byte, saltSize)
			if _, err := rand.Read(salt); err != nil {
				return errors.NewStoreError("encrypt", err)
			}
			f.salt = salt
		}
		key := f.deriveKey(f.salt)

		var nonce [nonceSize]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return errors.NewStoreError("encrypt", err)
		}
		doc = fileDocument{
			Salt:   f.salt,
			Nonce:  nonce[:],
			Sealed: secretbox.Seal(nil, plain, &nonce, key),
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewStoreError("encode", err)
	}
	return f.writeAtomic(data)
}

// deriveKey returns the secretbox key for salt, reusing the cached key when
// the salt has not changed.
func (f *FileStore) deriveKey(salt []byte) *[keySize]byte {
	if f.key != nil && string(f.salt) == string(salt) {
		return f.key
	}
	var key [keySize]byte
	copy(key[:], argon2.IDKey(f.passphrase, salt, argonTime, argonMemory, argonThreads, keySize))
	f.salt = append([]byte(nil), salt...)
	f.key = &key
	return f.key
}

func (f *FileStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.NewStoreError("write", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return errors.NewStoreError("write", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.NewStoreError("write", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.NewStoreError("write", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.NewStoreError("write", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.NewStoreError("write", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return errors.NewStoreError("write", err)
	}
	return nil
}
