package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/BartekS5/caregap/pkg/logger"
	"github.com/BartekS5/caregap/pkg/models"
)

// PreviewRequest is one uploaded sheet to reconcile.
type PreviewRequest struct {
	SystemID string
	Mode     models.ImportMode
	Headers  []string
	Rows     []map[string]string
	// TTL overrides the cache default when positive.
	TTL time.Duration
}

// Pipeline runs map -> transform -> validate -> diff and caches the result.
type Pipeline struct {
	Systems  SystemSource
	Reader   RecordReader
	Previews PreviewStore
	Now      func() time.Time
}

func NewPipeline(systems SystemSource, reader RecordReader, previews PreviewStore) *Pipeline {
	return &Pipeline{
		Systems:  systems,
		Reader:   reader,
		Previews: previews,
		Now:      time.Now,
	}
}

// Preview computes the diff for req and stores it for review. Nothing is
// written to the persisted store.
func (p *Pipeline) Preview(ctx context.Context, req PreviewRequest) (*models.PreviewEntry, error) {
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	cfg, err := p.Systems.Get(req.SystemID)
	if err != nil {
		return nil, err
	}

	mapping := MapColumns(req.Headers, cfg)
	if len(mapping.MissingRequired) > 0 {
		return nil, &MissingColumnsError{SystemID: cfg.ID, Columns: mapping.MissingRequired}
	}
	logger.Infof("Mapped %d columns for %s: %d measure groups, %d unmapped, %d skipped",
		len(mapping.Columns), cfg.ID, len(mapping.MeasureGroups), len(mapping.Unmapped), len(mapping.Skipped))

	transformer := &Transformer{Config: cfg, Now: p.Now}
	transformed := transformer.Transform(mapping, req.Rows)

	validation := NewValidator(cfg).Validate(transformed.Rows)

	differ := &DiffCalculator{Reader: p.Reader, Now: p.Now}
	diff, err := differ.Calculate(ctx, transformed.Rows, req.Mode)
	if err != nil {
		return nil, err
	}

	id := p.Previews.Store(models.PreviewEntry{
		SystemID:   cfg.ID,
		Mode:       req.Mode,
		Diff:       *diff,
		Rows:       transformed.Rows,
		Validation: validation,
		Warnings:   previewWarnings(mapping, transformed),
	}, req.TTL)

	entry, ok := p.Previews.Get(id)
	if !ok {
		return nil, &PreviewNotFoundError{ID: id}
	}
	logger.L().Info().
		Str("preview_id", id).
		Str("system", cfg.ID).
		Time("expires_at", entry.ExpiresAt).
		Msg("preview stored")
	return entry, nil
}

func previewWarnings(mapping *models.MappingResult, transformed *models.TransformResult) []string {
	warnings := []string{}
	for _, h := range mapping.Unmapped {
		warnings = append(warnings, fmt.Sprintf("Unmapped column ignored: %s", h))
	}
	for _, e := range transformed.Errors {
		warnings = append(warnings, fmt.Sprintf("Row %d (%s): %s", e.RowIndex, e.Column, e.Message))
	}
	for _, p := range transformed.PatientsNoMeasures {
		warnings = append(warnings, fmt.Sprintf("Row %d: %s has no measure data", p.RowIndex, p.MemberName))
	}
	return warnings
}
