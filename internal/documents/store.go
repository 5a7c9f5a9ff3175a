package documents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/application"
	"github.com/jonathan/applier/internal/types"
)

// artifactLayout maps each artifact kind to its directory and file extension
var artifactLayout = map[types.ArtifactKind]struct{ dir, ext string }{
	types.ArtifactResume:      {"resumes", ".md"},
	types.ArtifactCoverLetter: {"cover_letters", ".md"},
	types.ArtifactScreenshot:  {"screenshots", ".png"},
}

// FileStore keeps artifacts under a root directory as
// <kind dir>/<application id><ext>
type FileStore struct {
	root string
}

var _ application.ArtifactStore = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at root
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	return &FileStore{root: abs}, nil
}

// Path returns where the artifact of kind for an application is stored
func (s *FileStore) Path(kind types.ArtifactKind, applicationID uuid.UUID) string {
	layout, ok := artifactLayout[kind]
	if !ok {
		layout.dir, layout.ext = string(kind), ""
	}
	return filepath.Join(s.root, layout.dir, applicationID.String()+layout.ext)
}

// Save writes content atomically and returns its path. Saving again replaces
// the previous file.
func (s *FileStore) Save(ctx context.Context, kind types.ArtifactKind, applicationID uuid.UUID, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, ok := artifactLayout[kind]; !ok {
		return "", &types.ErrValidation{Field: "kind", Message: fmt.Sprintf("unknown artifact kind %q", kind)}
	}

	path := s.Path(kind, applicationID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return path, nil
}

// Load reads an artifact back
func (s *FileStore) Load(kind types.ArtifactKind, applicationID uuid.UUID) ([]byte, error) {
	data, err := os.ReadFile(s.Path(kind, applicationID))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}
