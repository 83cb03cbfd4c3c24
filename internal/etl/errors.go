package etl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BartekS5/caregap/pkg/models"
)

var (
	// ErrPreviewNotFound matches any lookup of a missing or expired preview.
	ErrPreviewNotFound = errors.New("preview not found or expired")
	// ErrMissingRequiredColumns matches a header row lacking required patient columns.
	ErrMissingRequiredColumns = errors.New("missing required columns")
	// ErrInvalidMode is returned for an import mode other than replace or merge.
	ErrInvalidMode = errors.New("invalid import mode")
)

// PreviewNotFoundError names the preview that could not be found.
type PreviewNotFoundError struct {
	ID string
}

func (e *PreviewNotFoundError) Error() string {
	return fmt.Sprintf("preview %s not found or expired", e.ID)
}

func (e *PreviewNotFoundError) Is(target error) bool {
	return target == ErrPreviewNotFound
}

// PreviewInUseError names a preview another execution currently holds.
type PreviewInUseError struct {
	ID string
}

func (e *PreviewInUseError) Error() string {
	return fmt.Sprintf("preview %s is already being executed", e.ID)
}

func (e *PreviewInUseError) Is(target error) bool {
	return target == models.ErrPreviewInUse
}

// MissingColumnsError lists the required columns absent from a header row.
type MissingColumnsError struct {
	SystemID string
	Columns  []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("system %s: missing required columns: %s", e.SystemID, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Is(target error) bool {
	return target == ErrMissingRequiredColumns
}
