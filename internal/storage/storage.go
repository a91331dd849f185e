// Package storage keeps uploaded file blobs on local disk or in Cloudinary.
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Backend names stored on model.File.
const (
	BackendLocal      = "local"
	BackendCloudinary = "cloudinary"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Object is a stored blob.
type Object struct {
	Backend    string
	StoredName string
	// Location is backend-specific: a file name for local, the Cloudinary
	// "<resource type>/<public id>" pair otherwise.
	Location string
	// URL is set by remote backends; local blobs are served by the API.
	URL string
}

// Store saves and removes blobs.
type Store interface {
	Backend() string
	Save(ctx context.Context, originalName string, r io.Reader) (Object, error)
	Delete(ctx context.Context, location string) error
}

// DetectMIME sniffs the content type of r and returns it together with a
// reader that still yields the full content.
func DetectMIME(r io.Reader) (string, io.Reader, error) {
	br := bufio.NewReaderSize(r, 3072)
	head, err := br.Peek(3072)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", nil, fmt.Errorf("sniff content: %w", err)
	}
	return mimetype.Detect(head).String(), br, nil
}

// LocalStore keeps blobs in a directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Backend returns "local".
func (s *LocalStore) Backend() string { return BackendLocal }

// Save writes r under a generated name keeping the original extension.
func (s *LocalStore) Save(ctx context.Context, originalName string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	stored := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.dir, stored)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return Object{}, fmt.Errorf("create %s: %w", stored, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return Object{}, fmt.Errorf("write %s: %w", stored, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return Object{}, fmt.Errorf("close %s: %w", stored, err)
	}
	return Object{Backend: BackendLocal, StoredName: stored, Location: stored}, nil
}

// Open returns the blob at location.
func (s *LocalStore) Open(location string) (*os.File, error) {
	f, err := os.Open(s.path(location))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete removes the blob at location. A missing blob is not an error.
func (s *LocalStore) Delete(_ context.Context, location string) error {
	if err := os.Remove(s.path(location)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", location, err)
	}
	return nil
}

// path confines location to the store directory.
func (s *LocalStore) path(location string) string {
	return filepath.Join(s.dir, filepath.Base(location))
}
