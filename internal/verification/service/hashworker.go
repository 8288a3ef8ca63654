package service

import (
	"context"
	"log/slog"
	"sync"

	"bgv/internal/verification/evidence"
	"bgv/internal/verification/lock"
	"bgv/internal/verification/metrics"
	"bgv/internal/verification/models"
	"bgv/internal/verification/ports"
	id "bgv/pkg/domain"
)

// HashStore is the document persistence the hash worker needs.
type HashStore interface {
	FindDocument(ctx context.Context, tenantID id.TenantID, docID id.DocumentID) (*models.Document, error)
	UpdateDocument(ctx context.Context, d *models.Document) error
}

// HashWorker fingerprints uploaded documents in the background. Documents
// are queued without blocking the upload; a full queue drops the request and
// the document stays PENDING.
type HashWorker struct {
	store   HashStore
	storage ports.EvidenceStorage
	locker  lock.Locker
	queue   chan models.Document
	workers int
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type HashWorkerOption func(*HashWorker)

func WithHashLogger(logger *slog.Logger) HashWorkerOption {
	return func(w *HashWorker) {
		w.logger = logger
	}
}

func WithHashMetrics(m *metrics.Metrics) HashWorkerOption {
	return func(w *HashWorker) {
		w.metrics = m
	}
}

// WithHashWorkers sets how many documents are hashed concurrently.
func WithHashWorkers(n int) HashWorkerOption {
	return func(w *HashWorker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithQueueSize bounds the number of documents waiting to be hashed.
func WithQueueSize(n int) HashWorkerOption {
	return func(w *HashWorker) {
		if n > 0 {
			w.queue = make(chan models.Document, n)
		}
	}
}

func WithHashLocker(l lock.Locker) HashWorkerOption {
	return func(w *HashWorker) {
		w.locker = l
	}
}

func NewHashWorker(store HashStore, storage ports.EvidenceStorage, opts ...HashWorkerOption) *HashWorker {
	w := &HashWorker{
		store:   store,
		storage: storage,
		locker:  lock.NewSharded(),
		queue:   make(chan models.Document, 256),
		workers: 2,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enqueue schedules doc for hashing. It reports false when the queue is full.
func (w *HashWorker) Enqueue(doc models.Document) bool {
	select {
	case w.queue <- doc:
		return true
	default:
		w.metrics.RecordHash("dropped")
		return false
	}
}

// Run hashes queued documents until ctx is done.
func (w *HashWorker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for range w.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case doc := <-w.queue:
					w.Process(ctx, doc)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Process hashes one document and stores the outcome. Failures are logged
// and leave the document marked FAILED.
func (w *HashWorker) Process(ctx context.Context, doc models.Document) {
	digest, hashErr := w.hash(ctx, doc)
	err := w.locker.WithLock(ctx, lock.CaseKey(doc.CaseID.String()), func(ctx context.Context) error {
		current, err := w.store.FindDocument(ctx, doc.TenantID, doc.ID)
		if err != nil {
			return err
		}
		if current.HashStatus == models.HashComputed {
			return nil
		}
		if hashErr != nil {
			current.HashStatus = models.HashFailed
		} else {
			current.ContentHash = digest
			current.HashStatus = models.HashComputed
		}
		return w.store.UpdateDocument(ctx, current)
	})
	switch {
	case hashErr != nil:
		w.metrics.RecordHash("failed")
		w.logger.ErrorContext(ctx, "document hashing failed",
			"error", hashErr,
			"tenant_id", doc.TenantID,
			"document_id", doc.ID,
		)
	case err == nil:
		w.metrics.RecordHash("computed")
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to store document hash",
			"error", err,
			"tenant_id", doc.TenantID,
			"document_id", doc.ID,
		)
	}
}

func (w *HashWorker) hash(ctx context.Context, doc models.Document) (string, error) {
	r, err := w.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return evidence.Hash(r)
}
