package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scadenze/internal/core"
)

type occurrenceKey struct {
	templateID uuid.UUID
	date       string
}

// MemoryStore keeps everything in process memory. It backs tests and
// local runs where no database is wanted, with the same duplicate and
// cursor semantics as the SQL backends.
type MemoryStore struct {
	mu        sync.Mutex
	templates map[uuid.UUID]core.Template
	expenses  []core.Expense
	seen      map[occurrenceKey]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[uuid.UUID]core.Template),
		seen:      make(map[occurrenceKey]struct{}),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) CreateTemplate(_ context.Context, t core.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; ok {
		return fmt.Errorf("insert template: duplicate id %s", t.ID)
	}
	s.templates[t.ID] = t
	return nil
}

func (s *MemoryStore) GetTemplate(_ context.Context, id uuid.UUID) (core.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return core.Template{}, core.ErrTemplateNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListTemplates(_ context.Context, ownerID uuid.UUID) ([]core.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectTemplates(ownerID, false), nil
}

func (s *MemoryStore) ListActiveTemplates(_ context.Context, ownerID uuid.UUID) ([]core.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectTemplates(ownerID, true), nil
}

func (s *MemoryStore) collectTemplates(ownerID uuid.UUID, activeOnly bool) []core.Template {
	var out []core.Template
	for _, t := range s.templates {
		if t.OwnerID != ownerID {
			continue
		}
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *MemoryStore) UpdateTemplate(_ context.Context, t core.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.templates[t.ID]
	if !ok {
		return core.ErrTemplateNotFound
	}
	// The SQL backends never touch these columns on update.
	t.LastMaterialized = cur.LastMaterialized
	t.LastReminded = cur.LastReminded
	t.CreatedAt = cur.CreatedAt
	s.templates[t.ID] = t
	return nil
}

func (s *MemoryStore) DeleteTemplate(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return core.ErrTemplateNotFound
	}
	delete(s.templates, id)

	// Expenses keep their template_id as a weak reference and survive
	// the deletion, same as the SQL backends.
	return nil
}

func (s *MemoryStore) MarkReminded(_ context.Context, id uuid.UUID, on core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return core.ErrTemplateNotFound
	}
	d := on
	t.LastReminded = &d
	s.templates[id] = t
	return nil
}

func (s *MemoryStore) ResetCursor(_ context.Context, id uuid.UUID, to core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return core.ErrTemplateNotFound
	}
	d := to
	t.LastMaterialized = &d
	t.UpdatedAt = time.Now()
	s.templates[id] = t
	return nil
}

func (s *MemoryStore) MaterializeOccurrence(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := occurrenceKey{templateID: e.TemplateID, date: e.Date.String()}
	if _, dup := s.seen[key]; dup {
		return core.ErrDuplicateOccurrence
	}
	t, ok := s.templates[e.TemplateID]
	if !ok {
		return core.ErrTemplateNotFound
	}

	s.expenses = append(s.expenses, e)
	s.seen[key] = struct{}{}

	on := e.Date
	t.LastMaterialized = &on
	t.UpdatedAt = time.Now().UTC()
	s.templates[e.TemplateID] = t
	return nil
}

func (s *MemoryStore) ListExpenses(_ context.Context, ownerID uuid.UUID, from, to *core.Date) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Expense
	for _, e := range s.expenses {
		if e.OwnerID != ownerID {
			continue
		}
		if from != nil && e.Date.Before(*from) {
			continue
		}
		if to != nil && e.Date.After(*to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ReadMonthSummary(ctx context.Context, ownerID uuid.UUID, year, month int) (core.OwnerSummary, error) {
	from, to := monthBounds(year, month)
	expenses, err := s.ListExpenses(ctx, ownerID, &from, &to)
	if err != nil {
		return core.OwnerSummary{}, err
	}
	return summarize(year, month, expenses), nil
}

func (s *MemoryStore) ListOwners(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[uuid.UUID]struct{})
	for _, t := range s.templates {
		set[t.OwnerID] = struct{}{}
	}
	owners := make([]uuid.UUID, 0, len(set))
	for id := range set {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })
	return owners, nil
}
