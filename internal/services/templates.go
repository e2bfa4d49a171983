package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"
	"scadenze/internal/schedule"
	"scadenze/internal/storage"
)

// TemplateService owns the template lifecycle: create, read, update,
// delete, always annotated with the template's current dueness.
type TemplateService struct {
	store       storage.Store
	dueSoonDays int
}

func NewTemplateService(store storage.Store, dueSoonDays int) *TemplateService {
	return &TemplateService{
		store:       store,
		dueSoonDays: dueSoonDays,
	}
}

// AnnotatedTemplate pairs a template with its computed dueness so read
// endpoints never have to rederive it.
type AnnotatedTemplate struct {
	core.Template
	schedule.Annotation
}

func (s *TemplateService) annotate(t core.Template) AnnotatedTemplate {
	return AnnotatedTemplate{
		Template:   t,
		Annotation: schedule.Evaluate(t, core.Today(), s.dueSoonDays),
	}
}

// Create validates and stores a new template. The caller may leave ID
// empty; cursor fields are always reset, a new template has no history.
func (s *TemplateService) Create(ctx context.Context, t core.Template) (AnnotatedTemplate, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.LastMaterialized = nil
	t.LastReminded = nil

	if err := t.Validate(); err != nil {
		return AnnotatedTemplate{}, err
	}

	if err := s.store.CreateTemplate(ctx, t); err != nil {
		return AnnotatedTemplate{}, fmt.Errorf("create template: %w", err)
	}

	slog.InfoContext(ctx, "Template created",
		"template_id", t.ID,
		"owner_id", t.OwnerID,
		"category", t.Category,
		"frequency", t.Frequency)

	return s.annotate(t), nil
}

// Get returns one template with its dueness annotation.
func (s *TemplateService) Get(ctx context.Context, id uuid.UUID) (AnnotatedTemplate, error) {
	t, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return AnnotatedTemplate{}, err
	}
	return s.annotate(t), nil
}

// List returns all of an owner's templates, annotated.
func (s *TemplateService) List(ctx context.Context, ownerID uuid.UUID) ([]AnnotatedTemplate, error) {
	templates, err := s.store.ListTemplates(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	annotated := make([]AnnotatedTemplate, 0, len(templates))
	for _, t := range templates {
		annotated = append(annotated, s.annotate(t))
	}
	return annotated, nil
}

// Update validates and stores changed template fields. The
// materialization cursor is never written from user input, but
// reactivating an inactive template moves it forward so the revived
// template resumes from today instead of back-filling its inactive gap.
func (s *TemplateService) Update(ctx context.Context, t core.Template) (AnnotatedTemplate, error) {
	if err := t.Validate(); err != nil {
		return AnnotatedTemplate{}, err
	}

	existing, err := s.store.GetTemplate(ctx, t.ID)
	if err != nil {
		return AnnotatedTemplate{}, err
	}

	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return AnnotatedTemplate{}, fmt.Errorf("update template: %w", err)
	}

	if !existing.IsActive && t.IsActive {
		resume := core.Today().AddDays(-1)
		if existing.LastMaterialized == nil || existing.LastMaterialized.Before(resume) {
			if err := s.store.ResetCursor(ctx, t.ID, resume); err != nil {
				return AnnotatedTemplate{}, fmt.Errorf("advance cursor on reactivation: %w", err)
			}
			slog.InfoContext(ctx, "Template reactivated, cursor advanced",
				"template_id", t.ID,
				"resume_after", resume)
		}
	}

	updated, err := s.store.GetTemplate(ctx, t.ID)
	if err != nil {
		return AnnotatedTemplate{}, err
	}

	slog.InfoContext(ctx, "Template updated",
		"template_id", t.ID,
		"owner_id", t.OwnerID,
		"is_active", t.IsActive)

	return s.annotate(updated), nil
}

// Delete removes a template. Expenses already materialized from it are
// ledger records and stay behind, still carrying the template id.
func (s *TemplateService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Template deleted", "template_id", id)
	return nil
}
