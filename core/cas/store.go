// Package cas computes content digests of package members and keeps a
// content-addressed backup store of members replaced by write-back.
// Blobs are stored by their SHA-256 hash; a BLAKE3 pointer file maps the
// BLAKE3 digest of each blob back to its SHA-256 name.
package cas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrBlobNotFound is returned when a blob with the given hash does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidHash is returned when a hash string is not a 64 character hex digest.
var ErrInvalidHash = errors.New("invalid hash format")

var hashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

type blake3Pointer struct {
	SHA256 string `json:"sha256"`
}

// Store is a content-addressed blob store rooted at a directory.
type Store struct {
	root string
}

// NewStore opens the store at root, creating its directories as needed.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{"sha256", "blake3"} {
		if err := os.MkdirAll(filepath.Join(root, "blobs", dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Put stores data and returns its digests. Storing a blob that already
// exists is a no-op.
func (s *Store) Put(data []byte) (HashResult, error) {
	sum := Sum(data)

	blobPath := s.pathFor("sha256", sum.SHA256)
	if _, err := os.Stat(blobPath); err != nil {
		if err := s.writeAtomic(blobPath, data, ".blob-*"); err != nil {
			return HashResult{}, fmt.Errorf("failed to store blob: %w", err)
		}
	}

	pointerPath := s.pathFor("blake3", sum.BLAKE3) + ".json"
	if _, err := os.Stat(pointerPath); err != nil {
		pointer, err := json.Marshal(blake3Pointer{SHA256: sum.SHA256})
		if err != nil {
			return HashResult{}, fmt.Errorf("failed to marshal pointer: %w", err)
		}
		if err := s.writeAtomic(pointerPath, pointer, ".pointer-*"); err != nil {
			return HashResult{}, fmt.Errorf("failed to create BLAKE3 pointer: %w", err)
		}
	}
	return sum, nil
}

// Get returns the blob with the given SHA-256 hash.
func (s *Store) Get(hash string) ([]byte, error) {
	if !isValidHash(hash) {
		return nil, ErrInvalidHash
	}
	data, err := os.ReadFile(s.pathFor("sha256", hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// GetVerified is Get followed by a digest check of the returned bytes.
func (s *Store) GetVerified(hash string) ([]byte, error) {
	data, err := s.Get(hash)
	if err != nil {
		return nil, err
	}
	if got := Hash(data); got != hash {
		return nil, fmt.Errorf("blob %s is corrupt: content hashes to %s", hash, got)
	}
	return data, nil
}

// Exists checks if a blob with the given SHA-256 hash is stored.
func (s *Store) Exists(hash string) bool {
	if !isValidHash(hash) {
		return false
	}
	_, err := os.Stat(s.pathFor("sha256", hash))
	return err == nil
}

// LookupBlake3 returns the SHA-256 hash of the blob with the given BLAKE3 hash.
func (s *Store) LookupBlake3(blake3Hash string) (string, error) {
	if !isValidHash(blake3Hash) {
		return "", ErrInvalidHash
	}
	data, err := os.ReadFile(s.pathFor("blake3", blake3Hash) + ".json")
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrBlobNotFound
		}
		return "", fmt.Errorf("failed to read pointer: %w", err)
	}
	var pointer blake3Pointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		return "", fmt.Errorf("failed to parse pointer: %w", err)
	}
	return pointer.SHA256, nil
}

// Resolve accepts either digest of a stored blob and returns its bytes.
func (s *Store) Resolve(hash string) ([]byte, error) {
	data, err := s.Get(hash)
	if !errors.Is(err, ErrBlobNotFound) {
		return data, err
	}
	sha, lerr := s.LookupBlake3(hash)
	if lerr != nil {
		return nil, err
	}
	return s.Get(sha)
}

// pathFor returns <root>/blobs/<algo>/<first2>/<hash>.
func (s *Store) pathFor(algo, hash string) string {
	return filepath.Join(s.root, "blobs", algo, hash[:2], hash)
}

func (s *Store) writeAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create prefix directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return fmt.Errorf("failed to write: %w", err)
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

func isValidHash(hash string) bool {
	return hashPattern.MatchString(hash)
}
