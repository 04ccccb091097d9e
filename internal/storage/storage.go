// Package storage defines the capability surface the relay core uses
// to talk to a remote cloud-storage account. Concrete backends live
// under providers/.
package storage

import (
	"context"
	"strings"
)

// Credentials is the per-chat credential material submitted by a user.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Folder is a backend-specific handle for a remote folder. Name is the
// user-visible folder name; Key is whatever the backend needs to
// address it (an object-key prefix for S3-style stores).
type Folder struct {
	Name string
	Key  string
}

// RemoteFile is a backend-specific handle for an uploaded file.
type RemoteFile struct {
	Name string
	Key  string
}

// Backend authenticates credentials and hands out an account handle.
type Backend interface {
	Authenticate(ctx context.Context, creds Credentials) (Handle, error)
}

// Handle is an authenticated view of one storage account. All methods
// are blocking network calls; callers must not invoke them while
// holding session locks.
type Handle interface {
	// ListFolders returns the top-level folders in backend order.
	ListFolders(ctx context.Context) ([]Folder, error)
	// CreateFolder creates a top-level folder with the given name.
	CreateFolder(ctx context.Context, name string) (Folder, error)
	// Upload stores the file at localPath into folder, keeping its
	// base name.
	Upload(ctx context.Context, localPath string, folder Folder) (RemoteFile, error)
	// ShareLink returns a shareable URL for an uploaded file.
	ShareLink(ctx context.Context, file RemoteFile) (string, error)
}

// FolderNames projects a folder listing onto its names.
func FolderNames(folders []Folder) []string {
	names := make([]string, 0, len(folders))
	for _, f := range folders {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		names = append(names, f.Name)
	}
	return names
}
