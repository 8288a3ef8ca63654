// Package postgres persists the verification aggregate in PostgreSQL. Each
// entity is stored as a JSONB snapshot next to the columns used for lookup,
// scoping and optimistic concurrency.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"bgv/internal/verification/models"
	"bgv/internal/verification/store"
	"bgv/internal/verification/timeline"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/platform/sentinel"
	txcontext "bgv/pkg/platform/tx"
)

const uniqueViolation = "23505"

// defaultTxTimeout bounds a unit of work when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// RunInTx runs fn inside one database transaction carried in ctx.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}
	return txcontext.Run(ctx, s.db, fn)
}

func (s *Store) exec(ctx context.Context) txcontext.Executor {
	return txcontext.Pick(ctx, s.db)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	return err
}

func (s *Store) CreateCase(ctx context.Context, c *models.Case, checks []models.Check) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal case: %w", err)
		}
		_, err = s.exec(ctx).ExecContext(ctx, `
			INSERT INTO cases (id, tenant_id, overall_status, is_closed, is_immutable, deadline, initiated_at, version, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.UUID(c.ID), uuid.UUID(c.TenantID), string(c.OverallStatus), c.IsClosed, c.IsImmutable,
			c.Deadline, c.InitiatedAt, c.Version, data, c.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert case: %w", err)
		}
		for i := range checks {
			if err := s.insertCheck(ctx, &checks[i], i); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) insertCheck(ctx context.Context, ch *models.Check, position int) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshal check: %w", err)
	}
	_, err = s.exec(ctx).ExecContext(ctx, `
		INSERT INTO checks (id, tenant_id, case_id, check_type, status, position, version, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(ch.ID), uuid.UUID(ch.TenantID), uuid.UUID(ch.CaseID), string(ch.Type), string(ch.Status),
		position, ch.Version, data, ch.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) FindCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) (*models.Case, error) {
	return s.findCase(ctx, tenantID, caseID, false)
}

func (s *Store) findCase(ctx context.Context, tenantID id.TenantID, caseID id.CaseID, forUpdate bool) (*models.Case, error) {
	query := `SELECT data, version FROM cases WHERE id = $1 AND tenant_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		data    []byte
		version int
	)
	if err := s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(caseID), uuid.UUID(tenantID)).Scan(&data, &version); err != nil {
		return nil, notFound(err)
	}
	var c models.Case
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal case: %w", err)
	}
	c.Version = version
	return &c, nil
}

func (s *Store) UpdateCase(ctx context.Context, c *models.Case) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		stored, err := s.findCase(ctx, c.TenantID, c.ID, true)
		if err != nil {
			return err
		}
		if err := store.EnsureWritable(stored); err != nil {
			return err
		}
		if err := store.EnsureVersion(stored.Version, c.Version); err != nil {
			return err
		}
		next := c.Clone()
		next.Version++
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal case: %w", err)
		}
		_, err = s.exec(ctx).ExecContext(ctx, `
			UPDATE cases
			SET overall_status = $1, is_closed = $2, is_immutable = $3, deadline = $4,
				version = $5, data = $6, updated_at = $7
			WHERE id = $8 AND tenant_id = $9`,
			string(next.OverallStatus), next.IsClosed, next.IsImmutable, next.Deadline,
			next.Version, data, next.UpdatedAt, uuid.UUID(next.ID), uuid.UUID(next.TenantID),
		)
		if err != nil {
			return fmt.Errorf("update case: %w", err)
		}
		c.Version = next.Version
		return nil
	})
}

func (s *Store) ListOpenCases(ctx context.Context, tenantID id.TenantID) ([]models.Case, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT data, version FROM cases
		WHERE tenant_id = $1 AND NOT is_closed
		ORDER BY initiated_at`, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query open cases: %w", err)
	}
	defer rows.Close()

	var out []models.Case
	for rows.Next() {
		var (
			data    []byte
			version int
			c       models.Case
		)
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshal case: %w", err)
		}
		c.Version = version
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveTenants lists tenants with at least one open case.
func (s *Store) ActiveTenants(ctx context.Context) ([]id.TenantID, error) {
	rows, err := s.exec(ctx).QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM cases WHERE NOT is_closed ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("query active tenants: %w", err)
	}
	defer rows.Close()

	var out []id.TenantID
	for rows.Next() {
		var tenantID uuid.UUID
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, id.TenantID(tenantID))
	}
	return out, rows.Err()
}

func (s *Store) FindCheck(ctx context.Context, tenantID id.TenantID, checkID id.CheckID) (*models.Check, error) {
	return s.findCheck(ctx, tenantID, checkID, false)
}

func (s *Store) findCheck(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, forUpdate bool) (*models.Check, error) {
	query := `SELECT data, version FROM checks WHERE id = $1 AND tenant_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		data    []byte
		version int
	)
	if err := s.exec(ctx).QueryRowContext(ctx, query, uuid.UUID(checkID), uuid.UUID(tenantID)).Scan(&data, &version); err != nil {
		return nil, notFound(err)
	}
	var ch models.Check
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("unmarshal check: %w", err)
	}
	ch.Version = version
	return &ch, nil
}

func (s *Store) ListChecks(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) ([]models.Check, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT data, version FROM checks
		WHERE tenant_id = $1 AND case_id = $2
		ORDER BY position`, uuid.UUID(tenantID), uuid.UUID(caseID))
	if err != nil {
		return nil, fmt.Errorf("query checks: %w", err)
	}
	defer rows.Close()

	var out []models.Check
	for rows.Next() {
		var (
			data    []byte
			version int
			ch      models.Check
		)
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		if err := json.Unmarshal(data, &ch); err != nil {
			return nil, fmt.Errorf("unmarshal check: %w", err)
		}
		ch.Version = version
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) ensureCaseWritable(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) error {
	var immutable bool
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT is_immutable FROM cases WHERE id = $1 AND tenant_id = $2`,
		uuid.UUID(caseID), uuid.UUID(tenantID),
	).Scan(&immutable)
	if err != nil {
		return notFound(err)
	}
	return store.EnsureWritable(&models.Case{IsImmutable: immutable})
}

func (s *Store) UpdateCheck(ctx context.Context, ch *models.Check) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		stored, err := s.findCheck(ctx, ch.TenantID, ch.ID, true)
		if err != nil {
			return err
		}
		if err := s.ensureCaseWritable(ctx, ch.TenantID, stored.CaseID); err != nil {
			return err
		}
		if err := store.EnsureVersion(stored.Version, ch.Version); err != nil {
			return err
		}
		next := ch.Clone()
		next.Version++
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal check: %w", err)
		}
		_, err = s.exec(ctx).ExecContext(ctx, `
			UPDATE checks SET status = $1, version = $2, data = $3, updated_at = $4
			WHERE id = $5 AND tenant_id = $6`,
			string(next.Status), next.Version, data, next.UpdatedAt, uuid.UUID(next.ID), uuid.UUID(next.TenantID),
		)
		if err != nil {
			return fmt.Errorf("update check: %w", err)
		}
		ch.Version = next.Version
		return nil
	})
}

func (s *Store) CreateDocument(ctx context.Context, d *models.Document) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		if err := s.ensureCaseWritable(ctx, d.TenantID, d.CaseID); err != nil {
			return err
		}
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		_, err = s.exec(ctx).ExecContext(ctx, `
			INSERT INTO documents (id, tenant_id, case_id, check_id, document_type, doc_version, uploaded_at, data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.UUID(d.ID), uuid.UUID(d.TenantID), uuid.UUID(d.CaseID), uuid.UUID(d.CheckID),
			string(d.Type), d.Version, d.UploadedAt, data,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	})
}

func (s *Store) FindDocument(ctx context.Context, tenantID id.TenantID, docID id.DocumentID) (*models.Document, error) {
	var data []byte
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT data FROM documents WHERE id = $1 AND tenant_id = $2`,
		uuid.UUID(docID), uuid.UUID(tenantID),
	).Scan(&data)
	if err != nil {
		return nil, notFound(err)
	}
	var d models.Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &d, nil
}

func (s *Store) UpdateDocument(ctx context.Context, d *models.Document) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		if err := s.ensureCaseWritable(ctx, d.TenantID, d.CaseID); err != nil {
			return err
		}
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		res, err := s.exec(ctx).ExecContext(ctx,
			`UPDATE documents SET data = $1 WHERE id = $2 AND tenant_id = $3`,
			data, uuid.UUID(d.ID), uuid.UUID(d.TenantID),
		)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return sentinel.ErrNotFound
		}
		return nil
	})
}

func (s *Store) ListDocuments(ctx context.Context, tenantID id.TenantID, checkID id.CheckID) ([]models.Document, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT data FROM documents
		WHERE tenant_id = $1 AND check_id = $2
		ORDER BY uploaded_at, doc_version`, uuid.UUID(tenantID), uuid.UUID(checkID))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var (
			data []byte
			d    models.Document
		)
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) FindRiskScore(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) (*models.RiskScore, error) {
	var (
		data    []byte
		version int
	)
	err := s.exec(ctx).QueryRowContext(ctx,
		`SELECT data, version FROM risk_scores WHERE case_id = $1 AND tenant_id = $2`,
		uuid.UUID(caseID), uuid.UUID(tenantID),
	).Scan(&data, &version)
	if err != nil {
		return nil, notFound(err)
	}
	var r models.RiskScore
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal risk score: %w", err)
	}
	r.Version = version
	return &r, nil
}

func (s *Store) SaveRiskScore(ctx context.Context, r *models.RiskScore) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		if err := s.ensureCaseWritable(ctx, r.TenantID, r.CaseID); err != nil {
			return err
		}
		next := r.Clone()
		next.Version++
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal risk score: %w", err)
		}

		var res sql.Result
		if r.Version == 0 {
			res, err = s.exec(ctx).ExecContext(ctx, `
				INSERT INTO risk_scores (case_id, tenant_id, total_score, risk_level, version, data, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (case_id) DO NOTHING`,
				uuid.UUID(next.CaseID), uuid.UUID(next.TenantID), next.TotalRiskScore, string(next.RiskLevel),
				next.Version, data, next.UpdatedAt,
			)
		} else {
			res, err = s.exec(ctx).ExecContext(ctx, `
				UPDATE risk_scores
				SET total_score = $1, risk_level = $2, version = $3, data = $4, updated_at = $5
				WHERE case_id = $6 AND tenant_id = $7 AND version = $8`,
				next.TotalRiskScore, string(next.RiskLevel), next.Version, data, next.UpdatedAt,
				uuid.UUID(next.CaseID), uuid.UUID(next.TenantID), r.Version,
			)
		}
		if err != nil {
			return fmt.Errorf("save risk score: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return sentinel.ErrConflict
		}
		r.Version = next.Version
		return nil
	})
}

// Append inserts a timeline entry and its outbox record in one transaction.
func (s *Store) Append(ctx context.Context, entry models.TimelineEntry) error {
	rec, err := timeline.NewOutboxRecord(entry)
	if err != nil {
		return fmt.Errorf("encode timeline event: %w", err)
	}
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		_, err := s.exec(ctx).ExecContext(ctx, `
			INSERT INTO timeline_entries
				(id, tenant_id, case_id, check_id, action, actor_id, old_status, new_status, description, visibility, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			uuid.UUID(entry.ID), uuid.UUID(entry.TenantID), uuid.UUID(entry.CaseID),
			nullableUUID(uuid.UUID(entry.CheckID)), string(entry.Action), nullableUUID(uuid.UUID(entry.ActorID)),
			entry.OldStatus, entry.NewStatus, entry.Description, string(entry.Visibility), entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert timeline entry: %w", err)
		}
		_, err = s.exec(ctx).ExecContext(ctx, `
			INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ID, "case", rec.AggregateID, rec.EventType, rec.Payload, rec.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		return nil
	})
}

func (s *Store) List(ctx context.Context, tenantID id.TenantID, caseID id.CaseID) ([]models.TimelineEntry, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT id, tenant_id, case_id, check_id, action, actor_id, old_status, new_status, description, visibility, created_at
		FROM timeline_entries
		WHERE tenant_id = $1 AND case_id = $2
		ORDER BY created_at`, uuid.UUID(tenantID), uuid.UUID(caseID))
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	var out []models.TimelineEntry
	for rows.Next() {
		var (
			e                     models.TimelineEntry
			entryID, tenant, kase uuid.UUID
			checkID, actorID      uuid.NullUUID
			action, visibility    string
		)
		if err := rows.Scan(&entryID, &tenant, &kase, &checkID, &action, &actorID,
			&e.OldStatus, &e.NewStatus, &e.Description, &visibility, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.ID = id.EntryID(entryID)
		e.TenantID = id.TenantID(tenant)
		e.CaseID = id.CaseID(kase)
		if checkID.Valid {
			e.CheckID = id.CheckID(checkID.UUID)
		}
		if actorID.Valid {
			e.ActorID = id.UserID(actorID.UUID)
		}
		e.Action = models.TimelineAction(action)
		e.Visibility = models.Visibility(visibility)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

// Pending returns unpublished outbox records, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]timeline.OutboxRecord, error) {
	rows, err := s.exec(ctx).QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []timeline.OutboxRecord
	for rows.Next() {
		var rec timeline.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, u := range ids {
		strs[i] = u.String()
	}
	_, err := s.exec(ctx).ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		at, pq.Array(strs),
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
