package services

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Zip local file header, empty archive and spanned archive signatures.
var archiveMagics = [][]byte{
	[]byte("PK\x03\x04"),
	[]byte("PK\x05\x06"),
	[]byte("PK\x07\x08"),
}

const (
	removeAttempts = 4
	removeBackoff  = 200 * time.Millisecond
)

// InvalidArchiveError describes a downloaded file that is not a zip archive.
type InvalidArchiveError struct {
	Magic   []byte
	Size    int64
	Preview string
}

func (e *InvalidArchiveError) Error() string {
	return fmt.Sprintf("not a zip archive (magic=%s, size=%d, preview=%q)",
		hex.EncodeToString(e.Magic), e.Size, e.Preview)
}

// ArtifactStore manages the temporary files downloads are written to
type ArtifactStore interface {
	Path(appID int) string
	Create(appID int) (*os.File, error)
	Validate(path string) error
	Remove(path string) error
}

// artifactStore keeps artifacts under a single directory
type artifactStore struct {
	root string
}

// NewArtifactStore creates an artifact store rooted at dir
func NewArtifactStore(dir string) ArtifactStore {
	return &artifactStore{root: dir}
}

// Path returns the artifact location for appID.
func (s *artifactStore) Path(appID int) string {
	return filepath.Join(s.root, strconv.Itoa(appID)+".zip")
}

// Create truncates or creates the artifact for appID, creating the
// directory on demand.
func (s *artifactStore) Create(appID int) (*os.File, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, fmt.Errorf("create temp download dir: %w", err)
	}
	return os.Create(s.Path(appID))
}

// Validate checks the first four bytes against the zip signatures.
func (s *artifactStore) Validate(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return err
	}
	head = head[:n]

	magic := head
	if len(magic) > 4 {
		magic = magic[:4]
	}
	for _, signature := range archiveMagics {
		if bytes.Equal(magic, signature) {
			return nil
		}
	}

	var size int64
	if info, statErr := file.Stat(); statErr == nil {
		size = info.Size()
	}
	return &InvalidArchiveError{Magic: magic, Size: size, Preview: textPreview(head, 50)}
}

// Remove deletes the artifact, retrying while the installer may still hold it.
func (s *artifactStore) Remove(path string) error {
	return RemoveWithRetry(path, removeAttempts, removeBackoff)
}

// RemoveWithRetry removes path, retrying up to attempts times with a fixed
// backoff. A file that does not exist counts as removed.
func RemoveWithRetry(path string, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
		}
		err = os.Remove(path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	return fmt.Errorf("remove %s after %d attempts: %w", path, attempts, err)
}

// textPreview decodes up to limit runes of b, dropping invalid UTF-8.
func textPreview(b []byte, limit int) string {
	var sb strings.Builder
	count := 0
	for len(b) > 0 && count < limit {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		sb.WriteRune(r)
		count++
	}
	return sb.String()
}
