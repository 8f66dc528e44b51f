// Package mock provides an in-memory test double for source.Source.
package mock

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/poiesic/docvec/core"
)

// File is one document held by the mock source.
type File struct {
	Meta core.RemoteFile
	Body string
}

// MockSource is an in-memory source.Source. Tests mutate its file set
// between cycles to simulate new, changed and removed remote files.
type MockSource struct {
	mu    sync.Mutex
	files map[string]File

	listCalls     int
	downloadCalls int

	// ListErr and DownloadErr, when set, are returned by the respective
	// methods instead of the default behavior.
	ListErr     error
	DownloadErr error
}

// NewMockSource creates an empty mock source.
func NewMockSource() *MockSource {
	return &MockSource{files: make(map[string]File)}
}

// Put adds or replaces a file.
func (m *MockSource) Put(meta core.RemoteFile, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[meta.ID] = File{Meta: meta, Body: body}
}

// PutText is a shorthand for adding a plain text file.
func (m *MockSource) PutText(id, title, revisionMarker, body string) {
	m.Put(core.RemoteFile{
		ID:             id,
		Title:          title,
		ContentType:    "text/plain",
		RevisionMarker: revisionMarker,
		DownloadRef:    "media",
		URL:            "https://example.test/" + id,
		Size:           int64(len(body)),
	}, body)
}

// Remove deletes a file.
func (m *MockSource) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
}

// ListFiles returns all files in stable ID order.
func (m *MockSource) ListFiles(ctx context.Context, folderID string, recursive bool) ([]core.RemoteFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	files := make([]core.RemoteFile, 0, len(m.files))
	for _, f := range m.files {
		files = append(files, f.Meta)
	}
	// Map order is random; stable order keeps tests deterministic.
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j].ID < files[j-1].ID; j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
	return files, nil
}

// Download returns the file's body as a stream.
func (m *MockSource) Download(ctx context.Context, file core.RemoteFile) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadCalls++

	if m.DownloadErr != nil {
		return nil, m.DownloadErr
	}

	f, ok := m.files[file.ID]
	if !ok {
		return nil, fmt.Errorf("mock source: no such file %q", file.ID)
	}
	return io.NopCloser(strings.NewReader(f.Body)), nil
}

// ListCalls returns how many times ListFiles was invoked.
func (m *MockSource) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// DownloadCalls returns how many times Download was invoked.
func (m *MockSource) DownloadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloadCalls
}
