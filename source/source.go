// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package source defines the contract for remote document folders and a
// caching wrapper shared by implementations.
//
// A Source lists the files under a folder and downloads their content. Both
// operations are treated as slow and rate limited; the orchestrator should go
// through a ListingCache to bound listing call volume.
package source

import (
	"context"
	"io"

	"github.com/poiesic/docvec/core"
)

// Download reference schemes understood by implementations. The lister sets
// DownloadRef on each file so Download needs no format knowledge of its own.
const (
	// RefMedia downloads the file's bytes as stored.
	RefMedia = "media"
	// RefExportText converts the file to plain text on download.
	RefExportText = "export:text/plain"
	// RefExportCSV converts the file to CSV on download.
	RefExportCSV = "export:text/csv"
)

// Source is a remote folder of documents.
type Source interface {
	// ListFiles returns the files under folderID, descending into
	// subfolders when recursive is set. Folders themselves are not
	// returned. Each file's ContentType is the type its downloaded bytes
	// will have, after any conversion its DownloadRef implies.
	ListFiles(ctx context.Context, folderID string, recursive bool) ([]core.RemoteFile, error)

	// Download opens the file's content stream. The caller must close it.
	Download(ctx context.Context, file core.RemoteFile) (io.ReadCloser, error)
}
