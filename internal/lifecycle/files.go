package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/domain"
)

// FileRemover removes a work's organized media files.
type FileRemover interface {
	RemoveWorkFiles(author, title string) error
}

// MediaStore removes organized media from the {author}/{title} library tree.
// Removal only ever touches the title leaf folder; the author folder and its
// other titles must survive.
type MediaStore struct {
	root   string
	logger zerolog.Logger
}

// NewMediaStore creates a media store rooted at the organized library tree.
func NewMediaStore(root string, logger zerolog.Logger) *MediaStore {
	return &MediaStore{
		root:   root,
		logger: logger.With().Str("component", "media").Logger(),
	}
}

// Compile-time interface verification.
var _ FileRemover = (*MediaStore)(nil)

// RemoveWorkFiles deletes the {author}/{title} leaf folder. An already-absent
// folder is not an error. Path segments containing separators are rejected so
// a crafted title can never escape the library tree.
func (s *MediaStore) RemoveWorkFiles(author, title string) error {
	if err := validateSegment("author", author); err != nil {
		return err
	}
	if err := validateSegment("title", title); err != nil {
		return err
	}

	leaf := filepath.Join(s.root, author, title)
	if _, err := os.Stat(leaf); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(leaf); err != nil {
		return fmt.Errorf("failed to remove media folder: %w", err)
	}

	s.logger.Info().
		Str("author", author).
		Str("title", title).
		Msg("Removed media folder")
	return nil
}

func validateSegment(field, value string) error {
	if value == "" {
		return domain.NewValidationError(field, field+" is required")
	}
	if strings.ContainsAny(value, `/\`) || value == "." || value == ".." {
		return domain.NewValidationError(field, field+" contains path separators")
	}
	return nil
}
