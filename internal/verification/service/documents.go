package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"bgv/internal/verification/evidence"
	"bgv/internal/verification/models"
	"bgv/internal/verification/risk"
	"bgv/internal/verification/statemachine"
	"bgv/internal/verification/timeline"
	id "bgv/pkg/domain"
	dErrors "bgv/pkg/domain-errors"
	"bgv/pkg/requestcontext"
)

// DocumentUpload describes a document already written to evidence storage.
type DocumentUpload struct {
	Type       models.DocumentType
	FileName   string
	StorageKey string
	SizeBytes  int64
	IssuedAt   *time.Time
	// ContentHash is a digest computed at upload time. When empty the hash
	// is computed in the background.
	ContentHash string
	// Replaces supersedes an earlier upload of the same check.
	Replaces *id.DocumentID
	Actor    id.UserID
}

func (u DocumentUpload) validate() error {
	if u.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "document_type is required")
	}
	if strings.TrimSpace(u.StorageKey) == "" {
		return dErrors.New(dErrors.CodeValidation, "storage_key is required")
	}
	if u.SizeBytes < 0 {
		return dErrors.New(dErrors.CodeValidation, "size_bytes cannot be negative")
	}
	return requireActor(u.Actor)
}

// RecordEvidence attaches a document to a check and returns the check's
// re-validated evidence. A check waiting for documents moves to
// DOCUMENTS_UPLOADED once its evidence is sufficient.
func (s *Service) RecordEvidence(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, up DocumentUpload) (_ *evidence.Result, err error) {
	ctx, span := s.startSpan(ctx, "RecordEvidence",
		attribute.String("check_id", checkID.String()),
		attribute.String("document_type", string(up.Type)))
	defer func() { endSpan(span, err) }()
	defer s.metrics.ObserveOperation("record_evidence", time.Now())

	if err := up.validate(); err != nil {
		return nil, err
	}
	found, err := s.repo.FindCheck(ctx, tenantID, checkID)
	if err != nil {
		return nil, translate(err, "check", "load check")
	}
	now := requestcontext.Now(ctx)

	doc := models.Document{
		ID:           id.NewDocumentID(),
		TenantID:     tenantID,
		CaseID:       found.CaseID,
		CheckID:      checkID,
		Type:         up.Type,
		Version:      1,
		StorageKey:   up.StorageKey,
		FileName:     up.FileName,
		SizeBytes:    up.SizeBytes,
		IssuedAt:     up.IssuedAt,
		UploadedAt:   now,
		UploadedBy:   up.Actor,
		ContentHash:  up.ContentHash,
		HashStatus:   models.HashPending,
		ReviewStatus: models.DocumentPending,
	}
	if up.ContentHash != "" {
		doc.HashStatus = models.HashComputed
	}
	doc.ExtractedFields = s.extractFields(ctx, doc)

	var (
		result  *evidence.Result
		entries []models.TimelineEntry
	)
	err = s.withCase(ctx, found.CaseID, func(ctx context.Context) error {
		ch, c, err := s.loadCheck(ctx, tenantID, checkID)
		if err != nil {
			return err
		}
		if c.IsImmutable {
			return dErrors.New(dErrors.CodeImmutableCase, "case is closed; evidence can no longer be added")
		}
		if up.Replaces != nil {
			prev, err := s.supersede(ctx, tenantID, checkID, *up.Replaces)
			if err != nil {
				return err
			}
			replaces := prev.ID
			doc.Replaces = &replaces
			doc.Version = prev.Version + 1
		}
		if err := s.repo.CreateDocument(ctx, &doc); err != nil {
			return err
		}

		uploaded := timeline.Entry(c, models.ActionDocumentUploaded, up.Actor, now)
		uploaded.CheckID = checkID
		uploaded.Description = string(doc.Type) + " uploaded (version " + strconv.Itoa(doc.Version) + ")"
		uploaded.Visibility = models.VisibilityClient
		entries = append(entries, uploaded)

		res, recorded, err := s.revalidate(ctx, c, ch, up.Actor, now, true)
		if err != nil {
			return err
		}
		entries = append(entries, recorded...)
		if len(c.Profile) > 0 {
			docs, err := s.repo.ListDocuments(ctx, tenantID, checkID)
			if err != nil {
				return err
			}
			if warnings := evidence.CrossCheck(c.Profile, docs); len(warnings) > 0 {
				res.Warnings = append(res.Warnings, warnings...)
				res.IsValid = false
			}
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, translate(err, "document", "record evidence")
	}
	s.timeline.Record(ctx, entries...)

	if doc.HashStatus == models.HashPending && s.hasher != nil {
		if !s.hasher.Enqueue(doc) {
			s.logger.WarnContext(ctx, "hash queue full; document left pending",
				"tenant_id", tenantID,
				"document_id", doc.ID,
			)
		}
	}
	return result, nil
}

// supersede marks an earlier active upload of the check as replaced.
func (s *Service) supersede(ctx context.Context, tenantID id.TenantID, checkID id.CheckID, docID id.DocumentID) (*models.Document, error) {
	prev, err := s.repo.FindDocument(ctx, tenantID, docID)
	if err != nil {
		return nil, translate(err, "replaced document", "load document")
	}
	if prev.CheckID != checkID {
		return nil, dErrors.New(dErrors.CodeValidation, "replaced document belongs to another check")
	}
	if !prev.IsActive() {
		return nil, dErrors.New(dErrors.CodeConflict, "replaced document is no longer current")
	}
	prev.Superseded = true
	if err := s.repo.UpdateDocument(ctx, prev); err != nil {
		return nil, err
	}
	return prev, nil
}

func (s *Service) extractFields(ctx context.Context, doc models.Document) map[string]string {
	if s.extractor == nil {
		return nil
	}
	fields, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		s.logger.WarnContext(ctx, "field extraction failed",
			"error", err,
			"document_id", doc.ID,
			"document_type", doc.Type,
		)
		return nil
	}
	return fields
}

// revalidate recomputes a check's evidence, stores the snapshot and, when
// advance is set, moves a DOCUMENTS_PENDING check to DOCUMENTS_UPLOADED once
// the evidence is sufficient. It returns the entries to record.
func (s *Service) revalidate(ctx context.Context, c *models.Case, ch *models.Check, actor id.UserID, now time.Time, advance bool) (*evidence.Result, []models.TimelineEntry, error) {
	res, err := s.validateEvidence(ctx, ch, now)
	if err != nil {
		return nil, nil, err
	}
	next := ch.Clone()
	next.Evidence = res.Snapshot(now)
	next.UpdatedAt = now

	var entries []models.TimelineEntry
	if advance && ch.Status == models.CheckDocumentsPending && res.HasRequiredEvidence {
		planned, tr, err := s.machine.Plan(next, models.CheckDocumentsUploaded, actor, now, statemachine.Gates{
			Evidence:      res,
			CaseImmutable: c.IsImmutable,
		})
		if err != nil {
			return nil, nil, err
		}
		next = planned
		s.metrics.RecordTransition(string(tr.From), string(tr.To), "applied")
		entries = append(entries, timeline.StatusChange(c, ch.ID, tr.From, tr.To, actor, now))
	}
	if err := s.repo.UpdateCheck(ctx, &next); err != nil {
		return nil, nil, err
	}
	if len(entries) > 0 {
		caseEntry, err := s.refreshCaseStatus(ctx, c, actor, now)
		if err != nil {
			return nil, nil, err
		}
		if caseEntry != nil {
			entries = append(entries, *caseEntry)
		}
	}
	return res, entries, nil
}

// ReviewDocument accepts or rejects a document. Rejection needs a reason.
func (s *Service) ReviewDocument(ctx context.Context, tenantID id.TenantID, docID id.DocumentID, status models.DocumentReviewStatus, reason string, actor id.UserID) (*models.Document, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	switch status {
	case models.DocumentAccepted:
	case models.DocumentRejected:
		if strings.TrimSpace(reason) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "rejection_reason is required")
		}
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown review status %q", status)
	}

	return s.mutateDocument(ctx, tenantID, docID, actor, "review document",
		func(c *models.Case, d *models.Document, now time.Time) (models.TimelineEntry, error) {
			if !d.IsActive() {
				return models.TimelineEntry{}, dErrors.New(dErrors.CodeConflict, "document is no longer current")
			}
			reviewedAt := now
			d.ReviewStatus = status
			d.ReviewedBy = actor
			d.ReviewedAt = &reviewedAt
			d.RejectionReason = ""
			if status == models.DocumentRejected {
				d.RejectionReason = reason
			}

			e := timeline.Entry(c, models.ActionDocumentReviewed, actor, now)
			e.CheckID = d.CheckID
			e.NewStatus = string(status)
			e.Description = string(d.Type) + " " + strings.ToLower(string(status))
			if reason != "" {
				e.Description += ": " + reason
			}
			e.Visibility = models.VisibilityClient
			return e, nil
		})
}

// DeleteDocument soft-deletes a document. Deleted documents stay readable
// but no longer count as evidence.
func (s *Service) DeleteDocument(ctx context.Context, tenantID id.TenantID, docID id.DocumentID, actor id.UserID) (*models.Document, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.mutateDocument(ctx, tenantID, docID, actor, "delete document",
		func(c *models.Case, d *models.Document, now time.Time) (models.TimelineEntry, error) {
			if d.Deleted {
				return models.TimelineEntry{}, dErrors.New(dErrors.CodeConflict, "document is already deleted")
			}
			d.SoftDelete(actor, now)

			e := timeline.Entry(c, models.ActionDocumentDeleted, actor, now)
			e.CheckID = d.CheckID
			e.Description = string(d.Type) + " deleted"
			return e, nil
		})
}

type documentMutation func(c *models.Case, d *models.Document, now time.Time) (models.TimelineEntry, error)

func (s *Service) mutateDocument(ctx context.Context, tenantID id.TenantID, docID id.DocumentID, actor id.UserID, action string, mutate documentMutation) (*models.Document, error) {
	found, err := s.repo.FindDocument(ctx, tenantID, docID)
	if err != nil {
		return nil, translate(err, "document", "load document")
	}
	now := requestcontext.Now(ctx)

	var (
		out     models.Document
		entries []models.TimelineEntry
	)
	err = s.withCase(ctx, found.CaseID, func(ctx context.Context) error {
		d, err := s.repo.FindDocument(ctx, tenantID, docID)
		if err != nil {
			return err
		}
		ch, c, err := s.loadCheck(ctx, tenantID, d.CheckID)
		if err != nil {
			return err
		}
		if c.IsImmutable {
			return dErrors.New(dErrors.CodeImmutableCase, "case is closed; documents can no longer change")
		}
		entry, err := mutate(c, d, now)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateDocument(ctx, d); err != nil {
			return err
		}
		entries = append(entries, entry)
		_, recorded, err := s.revalidate(ctx, c, ch, actor, now, false)
		if err != nil {
			return err
		}
		entries = append(entries, recorded...)
		out = *d
		return nil
	})
	if err != nil {
		return nil, translate(err, "document", action)
	}
	s.timeline.Record(ctx, entries...)
	return &out, nil
}

// VerifyDocumentIntegrity recomputes a document's digest from storage. A
// mismatch is not an error: it raises a DOCUMENT_TAMPERED red flag and is
// reported in the result, leaving the document inspectable.
func (s *Service) VerifyDocumentIntegrity(ctx context.Context, tenantID id.TenantID, docID id.DocumentID, actor id.UserID) (_ *evidence.IntegrityResult, err error) {
	ctx, span := s.startSpan(ctx, "VerifyDocumentIntegrity", attribute.String("document_id", docID.String()))
	defer func() { endSpan(span, err) }()

	if s.storage == nil {
		return nil, dErrors.New(dErrors.CodeMisconfiguredWorkflow, "evidence storage is not configured")
	}
	doc, err := s.repo.FindDocument(ctx, tenantID, docID)
	if err != nil {
		return nil, translate(err, "document", "load document")
	}
	if doc.ContentHash == "" {
		return nil, dErrors.Newf(dErrors.CodeValidation, "document has no stored hash (hash status %s)", doc.HashStatus)
	}

	r, err := s.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open document content")
	}
	defer r.Close()
	res, err := evidence.VerifyIntegrity(r, doc.ContentHash)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash document content")
	}
	if res.Match {
		s.metrics.RecordHash("match")
		return &res, nil
	}
	s.metrics.RecordHash("mismatch")
	s.flagTampered(ctx, doc, res, actor)
	return &res, nil
}

// flagTampered records an integrity mismatch on the timeline and adds the
// DOCUMENT_TAMPERED red flag while the case is still open.
func (s *Service) flagTampered(ctx context.Context, doc *models.Document, res evidence.IntegrityResult, actor id.UserID) {
	now := requestcontext.Now(ctx)
	var entries []models.TimelineEntry
	err := s.withCase(ctx, doc.CaseID, func(ctx context.Context) error {
		c, err := s.repo.FindCase(ctx, doc.TenantID, doc.CaseID)
		if err != nil {
			return err
		}
		mismatch := timeline.Entry(c, models.ActionIntegrityMismatch, actor, now)
		mismatch.CheckID = doc.CheckID
		mismatch.Description = string(doc.Type) + " " + doc.ID.String() + " content hash mismatch: stored " + res.Stored + ", computed " + res.Computed
		entries = append(entries, mismatch)
		if c.IsImmutable {
			return nil
		}

		score, err := s.loadRisk(ctx, c)
		if err != nil {
			return err
		}
		prevLevel := score.RiskLevel
		next, item, err := s.risk.AddRedFlag(*score, risk.ItemInput{
			Kind:        string(risk.DocumentTampered),
			CheckID:     doc.CheckID,
			Description: "integrity mismatch on " + string(doc.Type) + " " + doc.ID.String(),
			Actor:       actor,
		}, now)
		if err != nil {
			return err
		}
		if err := s.repo.SaveRiskScore(ctx, &next); err != nil {
			return err
		}
		s.recordLevelChange(prevLevel, next.RiskLevel)
		entries = append(entries, riskItemEntry(c, models.ActionRedFlagAdded, item, actor, now))
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to raise tamper flag",
			"error", err,
			"tenant_id", doc.TenantID,
			"case_id", doc.CaseID,
			"document_id", doc.ID,
		)
	}
	s.timeline.Record(ctx, entries...)
	s.logger.WarnContext(ctx, "document integrity mismatch",
		"tenant_id", doc.TenantID,
		"case_id", doc.CaseID,
		"document_id", doc.ID,
	)
}
