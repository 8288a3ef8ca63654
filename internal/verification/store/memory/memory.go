// Package memory is an in-process verification store used by tests, the CLI
// and single-instance deployments without Postgres.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bgv/internal/verification/models"
	"bgv/internal/verification/store"
	"bgv/internal/verification/timeline"
	id "bgv/pkg/domain"
	"bgv/pkg/platform/sentinel"
)

type tenantData struct {
	cases     map[id.CaseID]models.Case
	caseOrder []id.CaseID
	checks    map[id.CheckID]models.Check
	// checkOrder keeps checks in initiation order per case.
	checkOrder map[id.CaseID][]id.CheckID
	documents  map[id.DocumentID]models.Document
	docOrder   map[id.CheckID][]id.DocumentID
	risk       map[id.CaseID]models.RiskScore
	timeline   map[id.CaseID][]models.TimelineEntry
}

func newTenantData() *tenantData {
	return &tenantData{
		cases:      make(map[id.CaseID]models.Case),
		checks:     make(map[id.CheckID]models.Check),
		checkOrder: make(map[id.CaseID][]id.CheckID),
		documents:  make(map[id.DocumentID]models.Document),
		docOrder:   make(map[id.CheckID][]id.DocumentID),
		risk:       make(map[id.CaseID]models.RiskScore),
		timeline:   make(map[id.CaseID][]models.TimelineEntry),
	}
}

// Store keeps every tenant's data in maps guarded by one RWMutex.
type Store struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*tenantData
	outbox  []timeline.OutboxRecord
}

func New() *Store {
	return &Store{tenants: make(map[id.TenantID]*tenantData)}
}

// RunInTx runs fn directly. Callers serialise per case with a lock.Locker.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) tenant(tenantID id.TenantID) *tenantData {
	t, ok := s.tenants[tenantID]
	if !ok {
		t = newTenantData()
		s.tenants[tenantID] = t
	}
	return t
}

func (s *Store) lookup(tenantID id.TenantID) (*tenantData, bool) {
	t, ok := s.tenants[tenantID]
	return t, ok
}

func (s *Store) CreateCase(_ context.Context, c *models.Case, checks []models.Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(c.TenantID)
	if _, exists := t.cases[c.ID]; exists {
		return sentinel.ErrConflict
	}
	t.cases[c.ID] = c.Clone()
	t.caseOrder = append(t.caseOrder, c.ID)
	for _, ch := range checks {
		t.checks[ch.ID] = ch.Clone()
		t.checkOrder[c.ID] = append(t.checkOrder[c.ID], ch.ID)
	}
	return nil
}

func (s *Store) FindCase(_ context.Context, tenantID id.TenantID, caseID id.CaseID) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lookup(tenantID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c, ok := t.cases[caseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := c.Clone()
	return &out, nil
}

// UpdateCase stores c when its version matches and bumps c.Version.
func (s *Store) UpdateCase(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookup(c.TenantID)
	if !ok {
		return sentinel.ErrNotFound
	}
	stored, ok := t.cases[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if err := store.EnsureWritable(&stored); err != nil {
		return err
	}
	if err := store.EnsureVersion(stored.Version, c.Version); err != nil {
		return err
	}
	c.Version++
	t.cases[c.ID] = c.Clone()
	return nil
}

func (s *Store) ListOpenCases(_ context.Context, tenantID id.TenantID) ([]models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lookup(tenantID)
	if !ok {
		return nil, nil
	}
	var out []models.Case
	for _, caseID := range t.caseOrder {
		c := t.cases[caseID]
		if c.IsClosed {
			continue
		}
		out = append(out, c.Clone())
	}
	return out, nil
}

// ActiveTenants lists tenants with at least one open case.
func (s *Store) ActiveTenants(_ context.Context) ([]id.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []id.TenantID
	for tenantID, t := range s.tenants {
		for _, c := range t.cases {
			if !c.IsClosed {
				out = append(out, tenantID)
				break
			}
		}
	}
	slices.SortFunc(out, func(a, b id.TenantID) int {
		return strings.Compare(a.String(), b.String())
	})
	return out, nil
}

func (s *Store) FindCheck(_ context.Context, tenantID id.TenantID, checkID id.CheckID) (*models.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lookup(tenantID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	ch, ok := t.checks[checkID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := ch.Clone()
	return &out, nil
}

func (s *Store) ListChecks(_ context.Context, tenantID id.TenantID, caseID id.CaseID) ([]models.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lookup(tenantID)
	if !ok {
		return nil, nil
	}
	ids := t.checkOrder[caseID]
	out := make([]models.Check, 0, len(ids))
	for _, checkID := range ids {
		out = append(out, t.checks[checkID].Clone())
	}
	return out, nil
}

// UpdateCheck stores ch when its version matches and its case is still
// writable, then bumps ch.Version.
func (s *Store) UpdateCheck(_ context.Context, ch *models.Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookup(ch.TenantID)
	if !ok {
		return sentinel.ErrNotFound
	}
	stored, ok := t.checks[ch.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if err := s.writableCase(t, stored.CaseID); err != nil {
		return err
	}
	if err := store.EnsureVersion(stored.Version, ch.Version); err != nil {
		return err
	}
	ch.Version++
	t.checks[ch.ID] = ch.Clone()
	return nil
}

func (s *Store) writableCase(t *tenantData, caseID id.CaseID) error {
	c, ok := t.cases[caseID]
	if !ok {
		return sentinel.ErrNotFound
	}
	return store.EnsureWritable(&c)
}

func (s *Store) CreateDocument(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(d.TenantID)
	if err := s.writableCase(t, d.CaseID); err != nil {
		return err
	}
	if _, exists := t.documents[d.ID]; exists {
		return sentinel.ErrConflict
	}
	t.documents[d.ID] = d.Clone()
	t.docOrder[d.CheckID] = append(t.docOrder[d.CheckID], d.ID)
	return nil
}

func (s *Store) FindDocument(_ context.Context, tenantID id.TenantID, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lookup(tenantID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	d, ok := t.documents[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := d.Clone()
	return &out, nil
}

func (s *Store) UpdateDocument(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lookup(d.TenantID)
	if !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := t.documents[d.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if err := s.writableCase(t, d.CaseID); err != nil {
		return err
	}
	t.documents[d.ID] = d.Clone()
	return nil
}

// ListDocuments returns every document of a check, including deleted and
// superseded ones, in upload order.
func (s *Store) ListDocuments(_ context.Context, tenantID id.TenantID, checkID id.CheckID) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lookup(tenantID)
	if !ok {
		return nil, nil
	}
	ids := t.docOrder[checkID]
	out := make([]models.Document, 0, len(ids))
	for _, docID := range ids {
		out = append(out, t.documents[docID].Clone())
	}
	return out, nil
}

func (s *Store) FindRiskScore(_ context.Context, tenantID id.TenantID, caseID id.CaseID) (*models.RiskScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lookup(tenantID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	r, ok := t.risk[caseID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := r.Clone()
	return &out, nil
}

// SaveRiskScore inserts a score at version 0 or updates a matching version,
// bumping r.Version.
func (s *Store) SaveRiskScore(_ context.Context, r *models.RiskScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(r.TenantID)
	if err := s.writableCase(t, r.CaseID); err != nil {
		return err
	}
	stored, exists := t.risk[r.CaseID]
	switch {
	case exists:
		if err := store.EnsureVersion(stored.Version, r.Version); err != nil {
			return err
		}
	case r.Version != 0:
		return sentinel.ErrConflict
	}
	r.Version++
	t.risk[r.CaseID] = r.Clone()
	return nil
}

// Append adds a timeline entry and queues it for the event stream.
func (s *Store) Append(_ context.Context, entry models.TimelineEntry) error {
	rec, err := timeline.NewOutboxRecord(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenant(entry.TenantID)
	t.timeline[entry.CaseID] = append(t.timeline[entry.CaseID], entry)
	s.outbox = append(s.outbox, rec)
	return nil
}

func (s *Store) List(_ context.Context, tenantID id.TenantID, caseID id.CaseID) ([]models.TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lookup(tenantID)
	if !ok {
		return nil, nil
	}
	return slices.Clone(t.timeline[caseID]), nil
}

func (s *Store) Pending(_ context.Context, limit int) ([]timeline.OutboxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []timeline.OutboxRecord
	for _, rec := range s.outbox {
		if rec.PublishedAt != nil {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if slices.Contains(ids, s.outbox[i].ID) {
			published := at
			s.outbox[i].PublishedAt = &published
		}
	}
	return nil
}
