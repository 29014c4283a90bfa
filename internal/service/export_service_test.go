package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/registree/internal/models"
	appErrors "github.com/noah-isme/registree/pkg/errors"
	"github.com/noah-isme/registree/pkg/jobs"
	"github.com/noah-isme/registree/pkg/storage"
)

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(ctx context.Context, job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type exportMetricsStub struct {
	calls []string
}

func (m *exportMetricsStub) RecordExport(format, outcome string) {
	m.calls = append(m.calls, format+":"+outcome)
}

type exportFixture struct {
	engine  *engine
	service *ExportService
	queue   *queueStub
	metrics *exportMetricsStub
}

func newExportFixture(t *testing.T, authorized bool) *exportFixture {
	t.Helper()
	e := newEngine()
	ctx := WithActor(context.Background(), "admin")
	_, err := e.history.Perform(ctx, CreateRecord(newStudent("stu-1", "Ana", "3")))
	require.NoError(t, err)
	_, err = e.history.Perform(ctx, UpdateRecord(newStudent("stu-1", "Ana", "4")))
	require.NoError(t, err)

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	viewer := NewAuditViewer(e.recorder, allowAll(authorized), nil)
	svc := NewExportService(viewer, files, storage.NewSignedURLSigner("export-secret", time.Hour),
		ExportConfig{APIPrefix: "/api/v1/"}, zap.NewNop())
	queue := &queueStub{}
	metrics := &exportMetricsStub{}
	svc.AttachQueue(queue)
	svc.WithMetrics(metrics)
	return &exportFixture{engine: e, service: svc, queue: queue, metrics: metrics}
}

func TestExportServiceRenderCSV(t *testing.T) {
	f := newExportFixture(t, true)

	file, err := f.service.Render(context.Background(), models.ExportCSV, models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, file.Rows)
	assert.True(t, strings.HasSuffix(file.Name, ".csv"))

	rows, err := csv.NewReader(strings.NewReader(string(file.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Seq", rows[0][0])
	assert.Equal(t, "Before", rows[0][8])
	assert.Equal(t, []string{"1", "CREATE", "ORIGINAL"}, []string{rows[1][0], rows[1][3], rows[1][6]})
	assert.Equal(t, "grade_level", rows[2][7])
	assert.Equal(t, []string{"csv:ok"}, f.metrics.calls)
}

func TestExportServiceRenderJSONAndPDF(t *testing.T) {
	f := newExportFixture(t, true)
	ctx := context.Background()

	file, err := f.service.Render(ctx, models.ExportJSON, models.AuditFilter{EntityID: "stu-1"})
	require.NoError(t, err)
	assert.Contains(t, string(file.Data), `"grade_level"`)

	file, err = f.service.Render(ctx, models.ExportPDF, models.AuditFilter{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestExportServiceRejectsUnauthorizedAndBadFormat(t *testing.T) {
	f := newExportFixture(t, false)
	ctx := context.Background()

	_, err := f.service.Render(ctx, models.ExportCSV, models.AuditFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = f.service.Submit(ctx, models.ExportCSV, models.AuditFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
	assert.Empty(t, f.queue.jobs)

	_, err = f.service.Render(ctx, models.ExportFormat("xlsx"), models.AuditFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceQueuedExportLifecycle(t *testing.T) {
	f := newExportFixture(t, true)
	ctx := WithActor(context.Background(), "admin")

	job, err := f.service.Submit(ctx, models.ExportCSV, models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, models.ExportQueued, job.Status)
	assert.Equal(t, "admin", job.Actor)
	require.Len(t, f.queue.jobs, 1)

	require.NoError(t, f.service.Process(context.Background(), f.queue.jobs[0]))

	done, err := f.service.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportCompleted, done.Status)
	assert.Equal(t, 2, done.Rows)
	assert.NotNil(t, done.FinishedAt)
	require.True(t, strings.HasPrefix(done.DownloadURL, "/api/v1/exports/"))

	token := strings.TrimPrefix(done.DownloadURL, "/api/v1/exports/")
	file, name, err := f.service.OpenSigned(token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, done.File, name)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Seq,"))

	stored, err := f.service.Files()
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Len(t, f.service.Jobs(), 1)

	_, _, err = f.service.OpenSigned(token + "x")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestExportServiceHandleFailure(t *testing.T) {
	f := newExportFixture(t, true)

	job, err := f.service.Submit(context.Background(), models.ExportPDF, models.AuditFilter{})
	require.NoError(t, err)

	f.service.HandleFailure(f.queue.jobs[0], errors.New("disk full"))
	failed, err := f.service.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportFailed, failed.Status)
	assert.Equal(t, "disk full", failed.Error)

	_, err = f.service.Job("missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	assert.Error(t, f.service.Process(context.Background(), jobs.Job{ID: "missing"}))
}

func TestExportServiceSubmitQueueFailure(t *testing.T) {
	f := newExportFixture(t, true)
	f.queue.err = errors.New("queue is full")

	_, err := f.service.Submit(context.Background(), models.ExportCSV, models.AuditFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	jobsList := f.service.Jobs()
	require.Len(t, jobsList, 1)
	assert.Equal(t, models.ExportFailed, jobsList[0].Status)
}
