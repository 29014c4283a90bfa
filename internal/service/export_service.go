package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/snapshot"
	appErrors "github.com/noah-isme/registree/pkg/errors"
	"github.com/noah-isme/registree/pkg/export"
	"github.com/noah-isme/registree/pkg/jobs"
	"github.com/noah-isme/registree/pkg/storage"
)

const exportJobType = "audit_export"

type auditSource interface {
	Query(ctx context.Context, filter models.AuditFilter) (*AuditCursor, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	List() ([]storage.StoredFile, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type exportQueue interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type exportMetrics interface {
	RecordExport(format, outcome string)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	MaxRows   int
	ResultTTL time.Duration
}

// ExportFile is a rendered export ready to be served.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService renders the audit log to CSV, JSON or PDF, either inline or
// through the background queue into the exports directory.
type ExportService struct {
	source  auditSource
	storage fileStorage
	signer  *storage.SignedURLSigner
	csv     csvRenderer
	pdf     pdfRenderer
	queue   exportQueue
	metrics exportMetrics
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time

	mu   sync.RWMutex
	jobs map[string]*models.ExportJob
}

// NewExportService constructs an ExportService.
func NewExportService(source auditSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 50000
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 7 * 24 * time.Hour
	}
	return &ExportService{
		source:  source,
		storage: store,
		signer:  signer,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		jobs:    make(map[string]*models.ExportJob),
	}
}

// AttachQueue sets the queue used by Submit.
func (s *ExportService) AttachQueue(queue exportQueue) {
	s.queue = queue
}

// WithMetrics wires export counters.
func (s *ExportService) WithMetrics(metrics exportMetrics) *ExportService {
	s.metrics = metrics
	return s
}

// Render builds an export of the matching entries for the current actor.
func (s *ExportService) Render(ctx context.Context, format models.ExportFormat, filter models.AuditFilter) (*ExportFile, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	cursor, err := s.source.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	entries, err := cursor.Collect(ctx, s.cfg.MaxRows)
	if err != nil {
		s.record(format, "failed")
		return nil, err
	}

	var data []byte
	switch format {
	case models.ExportCSV:
		data, err = s.csv.Render(auditDataset(entries, false))
	case models.ExportPDF:
		data, err = s.pdf.Render(auditDataset(entries, true))
	default:
		data, err = json.MarshalIndent(entries, "", "  ")
	}
	if err != nil {
		s.record(format, "failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.record(format, "ok")
	return &ExportFile{
		Name:        fmt.Sprintf("audit_log_%s.%s", s.now().Format("20060102_150405"), format),
		ContentType: format.ContentType(),
		Data:        data,
		Rows:        len(entries),
	}, nil
}

// Submit queues an export to be written under the exports directory.
func (s *ExportService) Submit(ctx context.Context, format models.ExportFormat, filter models.AuditFilter) (*models.ExportJob, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue not configured")
	}
	// fail fast on authorization; the cursor itself reads nothing yet
	if _, err := s.source.Query(ctx, filter); err != nil {
		return nil, err
	}

	job := &models.ExportJob{
		ID:        uuid.NewString(),
		Format:    format,
		Filter:    filter,
		Actor:     ActorFromContext(ctx),
		Status:    models.ExportQueued,
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(ctx, jobs.Job{ID: job.ID, Type: exportJobType, Payload: job.ID}); err != nil {
		s.markFailed(job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export")
	}
	return s.snapshotJob(job.ID), nil
}

// Process is the queue handler for export jobs.
func (s *ExportService) Process(ctx context.Context, j jobs.Job) error {
	s.mu.Lock()
	job, ok := s.jobs[j.ID]
	if ok {
		job.Status = models.ExportProcessing
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown export job %s", j.ID)
	}

	file, err := s.Render(WithActor(ctx, job.Actor), job.Format, job.Filter)
	if err != nil {
		return err
	}
	name, err := s.storage.Save(file.Name, file.Data)
	if err != nil {
		return err
	}
	var url string
	if s.signer != nil {
		token, _, err := s.signer.Generate(job.ID, name)
		if err != nil {
			return err
		}
		url = fmt.Sprintf("%s/exports/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
	}

	finished := s.now()
	s.mu.Lock()
	job.Status = models.ExportCompleted
	job.File = name
	job.Rows = file.Rows
	job.DownloadURL = url
	job.Error = ""
	job.FinishedAt = &finished
	s.mu.Unlock()
	s.logger.Info("audit export written", zap.String("job_id", job.ID), zap.String("file", name), zap.Int("rows", file.Rows))
	return nil
}

// HandleFailure marks a job that exhausted its retries.
func (s *ExportService) HandleFailure(j jobs.Job, err error) {
	s.markFailed(j.ID, err)
}

// Job returns the status of a queued export.
func (s *ExportService) Job(id string) (*models.ExportJob, error) {
	job := s.snapshotJob(id)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return job, nil
}

// Jobs lists known export jobs, newest first.
func (s *ExportService) Jobs() []models.ExportJob {
	s.mu.RLock()
	list := make([]models.ExportJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		list = append(list, *job)
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

// Files lists export files on disk.
func (s *ExportService) Files() ([]storage.StoredFile, error) {
	return s.storage.List()
}

// OpenSigned resolves a download token to an open file.
func (s *ExportService) OpenSigned(token string) (*os.File, string, error) {
	if s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "downloads disabled")
	}
	signed, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.storage.Open(signed.Path)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	return file, signed.Path, nil
}

// Cleanup removes exports older than the configured retention.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

func (s *ExportService) markFailed(id string, err error) {
	finished := s.now()
	s.mu.Lock()
	if job, ok := s.jobs[id]; ok {
		job.Status = models.ExportFailed
		job.Error = err.Error()
		job.FinishedAt = &finished
	}
	s.mu.Unlock()
	s.logger.Warn("audit export failed", zap.String("job_id", id), zap.Error(err))
}

func (s *ExportService) snapshotJob(id string) *models.ExportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	clone := *job
	return &clone
}

func (s *ExportService) record(format models.ExportFormat, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordExport(string(format), outcome)
	}
}

func auditDataset(entries []models.AuditLogEntry, compact bool) export.Dataset {
	headers := []string{"Seq", "Timestamp", "Actor", "Action", "Entity Type", "Entity ID", "Origin", "Changed Fields"}
	weights := []float64{0.6, 2.2, 1.2, 1, 1.6, 2.6, 1, 3.8}
	if !compact {
		headers = append(headers, "Before", "After")
	}
	dataset := export.Dataset{Title: "Audit Log", Headers: headers}
	if compact {
		dataset.Weights = weights
	}
	for _, e := range entries {
		cells := []string{
			strconv.FormatInt(e.Seq, 10),
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Actor,
			string(e.Action),
			string(e.EntityType),
			e.EntityID,
			string(e.Origin),
			strings.Join(changedFields(e), " "),
		}
		if !compact {
			cells = append(cells, string(e.Before), string(e.After))
		}
		dataset.Append(cells...)
	}
	return dataset
}

func changedFields(e models.AuditLogEntry) []string {
	before, okBefore := parseRaw(e.Before)
	after, okAfter := parseRaw(e.After)
	if !okBefore || !okAfter {
		return nil
	}
	return snapshot.Diff(before, after)
}

// parseRaw decodes a stored snapshot; ok is false when it cannot be read.
func parseRaw(raw models.RawSnapshot) (*snapshot.Snapshot, bool) {
	if raw == nil {
		return nil, true
	}
	snap, err := snapshot.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &snap, true
}
