package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/service"
	appErrors "github.com/noah-isme/registree/pkg/errors"
	"github.com/noah-isme/registree/pkg/storage"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

type recordServiceStub struct {
	created  models.Record
	updateID string
	outcome  *service.Outcome
	err      error
	records  []models.Record
}

func (s *recordServiceStub) List(ctx context.Context, entityType models.EntityType) ([]models.Record, error) {
	return s.records, s.err
}

func (s *recordServiceStub) Get(ctx context.Context, entityType models.EntityType, id string) (models.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records[0], nil
}

func (s *recordServiceStub) Create(ctx context.Context, rec models.Record) (*service.Outcome, error) {
	s.created = rec
	return s.outcome, s.err
}

func (s *recordServiceStub) Update(ctx context.Context, id string, rec models.Record) (*service.Outcome, error) {
	s.created = rec
	s.updateID = id
	return s.outcome, s.err
}

func (s *recordServiceStub) Delete(ctx context.Context, entityType models.EntityType, id string) (*service.Outcome, error) {
	return s.outcome, s.err
}

type historyStub struct {
	state service.HistoryState
	err   error
	calls []string
}

func (h *historyStub) Undo(ctx context.Context) (*service.Outcome, error) {
	h.calls = append(h.calls, "undo")
	if h.err != nil {
		return nil, h.err
	}
	return sampleOutcome(), nil
}

func (h *historyStub) Redo(ctx context.Context) (*service.Outcome, error) {
	h.calls = append(h.calls, "redo")
	if h.err != nil {
		return nil, h.err
	}
	return sampleOutcome(), nil
}

func (h *historyStub) State() service.HistoryState { return h.state }

func sampleOutcome() *service.Outcome {
	return &service.Outcome{
		Command: &service.Command{
			ID:         "cmd-1",
			EntityType: models.EntityStudent,
			EntityID:   "stu-1",
			Action:     models.ActionUpdate,
			Actor:      "admin",
		},
		Entry: &models.AuditLogEntry{Seq: 7, CommandID: "cmd-1", Origin: models.OriginOriginal},
	}
}

func TestRecordHandlerCreateBindsEntityType(t *testing.T) {
	records := &recordServiceStub{outcome: sampleOutcome()}
	h := NewRecordHandler(records, &historyStub{state: service.HistoryState{UndoDepth: 1, CanUndo: true}})

	body := []byte(`{"first_name":"Ana","last_name":"Lopez","dob":"2012-04-09T00:00:00Z","grade_level":"3","status":"Active"}`)
	c, w := newGinContext(http.MethodPost, "/records/students", body)
	c.Params = gin.Params{{Key: "entity", Value: "students"}}
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	student, ok := records.created.(*models.Student)
	require.True(t, ok)
	assert.Equal(t, "Ana", student.FirstName)

	var result struct {
		Command struct {
			Description string `json:"description"`
		} `json:"command"`
		Entry   models.AuditLogEntry `json:"entry"`
		History service.HistoryState `json:"history"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	assert.Equal(t, "Update STUDENT stu-1", result.Command.Description)
	assert.Equal(t, int64(7), result.Entry.Seq)
	assert.True(t, result.History.CanUndo)
}

func TestRecordHandlerUpdatePassesPathID(t *testing.T) {
	records := &recordServiceStub{outcome: sampleOutcome()}
	h := NewRecordHandler(records, &historyStub{})

	c, w := newGinContext(http.MethodPut, "/records/classes/cls-1", []byte(`{"name":"Algebra I"}`))
	c.Params = gin.Params{{Key: "entity", Value: "classes"}, {Key: "id", Value: "cls-1"}}
	h.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cls-1", records.updateID)
	assert.IsType(t, &models.Class{}, records.created)
}

func TestRecordHandlerRejectsUnknownEntity(t *testing.T) {
	h := NewRecordHandler(&recordServiceStub{}, &historyStub{})

	c, w := newGinContext(http.MethodGet, "/records/guardians", nil)
	c.Params = gin.Params{{Key: "entity", Value: "guardians"}}
	h.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_ENTITY_TYPE", decode(t, w).Error.Code)
}

func TestRecordHandlerMapsServiceErrors(t *testing.T) {
	records := &recordServiceStub{err: appErrors.Clone(appErrors.ErrNotFound, "student not found")}
	h := NewRecordHandler(records, &historyStub{})

	c, w := newGinContext(http.MethodDelete, "/records/students/missing", nil)
	c.Params = gin.Params{{Key: "entity", Value: "students"}, {Key: "id", Value: "missing"}}
	h.Delete(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Error.Code)
}

func TestRecordHandlerRejectsMalformedBody(t *testing.T) {
	h := NewRecordHandler(&recordServiceStub{}, &historyStub{})

	c, w := newGinContext(http.MethodPost, "/records/students", []byte(`{"first_name":`))
	c.Params = gin.Params{{Key: "entity", Value: "students"}}
	h.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)
}

func TestHistoryHandlerUndoRedo(t *testing.T) {
	history := &historyStub{}
	h := NewHistoryHandler(history)

	c, w := newGinContext(http.MethodPost, "/history/undo", nil)
	h.Undo(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodPost, "/history/redo", nil)
	h.Redo(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"undo", "redo"}, history.calls)
}

func TestHistoryHandlerEmptyStackIsConflict(t *testing.T) {
	h := NewHistoryHandler(&historyStub{err: appErrors.ErrNothingToUndo})

	c, w := newGinContext(http.MethodPost, "/history/undo", nil)
	h.Undo(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOTHING_TO_UNDO", decode(t, w).Error.Code)
}

type auditPagerStub struct {
	filter models.AuditFilter
	err    error
}

func (s *auditPagerStub) Page(ctx context.Context, filter models.AuditFilter) (*service.AuditPage, error) {
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	return &service.AuditPage{
		Entries:      []models.AuditLogEntry{{Seq: 11, Action: models.ActionCreate}},
		NextAfterSeq: 11,
		HasMore:      true,
	}, nil
}

type exporterStub struct {
	format models.ExportFormat
	file   string
	signer *storage.SignedURLSigner
}

func (s *exporterStub) Render(ctx context.Context, format models.ExportFormat, filter models.AuditFilter) (*service.ExportFile, error) {
	if !format.Valid() {
		return nil, appErrors.ErrValidation
	}
	s.format = format
	return &service.ExportFile{Name: "audit." + string(format), ContentType: format.ContentType(), Data: []byte("Seq\n1\n"), Rows: 1}, nil
}

func (s *exporterStub) Submit(ctx context.Context, format models.ExportFormat, filter models.AuditFilter) (*models.ExportJob, error) {
	s.format = format
	return &models.ExportJob{ID: "job-1", Format: format, Status: models.ExportQueued}, nil
}

func (s *exporterStub) Job(id string) (*models.ExportJob, error) {
	if id != "job-1" {
		return nil, appErrors.ErrNotFound
	}
	return &models.ExportJob{ID: id, Status: models.ExportCompleted}, nil
}

func (s *exporterStub) Jobs() []models.ExportJob { return nil }

func (s *exporterStub) Files() ([]storage.StoredFile, error) { return nil, nil }

func (s *exporterStub) OpenSigned(token string) (*os.File, string, error) {
	if token != "good" {
		return nil, "", appErrors.ErrUnauthorized
	}
	f, err := os.Open(s.file)
	return f, filepath.Base(s.file), err
}

func TestAuditHandlerListParsesFilter(t *testing.T) {
	pager := &auditPagerStub{}
	h := NewAuditHandler(pager, &exporterStub{})

	c, w := newGinContext(http.MethodGet, "/audit-logs?entity_type=students&actor=admin&after_seq=10&limit=5&from=2024-09-01", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EntityStudent, pager.filter.EntityType)
	assert.Equal(t, "admin", pager.filter.Actor)
	assert.Equal(t, int64(10), pager.filter.AfterSeq)
	assert.Equal(t, 5, pager.filter.Limit)
	require.NotNil(t, pager.filter.From)
	assert.Equal(t, time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), *pager.filter.From)

	env := decode(t, w)
	assert.Equal(t, true, env.Meta["has_more"])
	assert.Equal(t, float64(11), env.Meta["next_after_seq"])
}

func TestAuditHandlerListUnauthorized(t *testing.T) {
	h := NewAuditHandler(&auditPagerStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "denied")}, &exporterStub{})

	c, w := newGinContext(http.MethodGet, "/audit-logs", nil)
	h.List(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditHandlerExportAndSubmit(t *testing.T) {
	exporter := &exporterStub{}
	h := NewAuditHandler(&auditPagerStub{}, exporter)

	c, w := newGinContext(http.MethodGet, "/audit-logs/export?format=PDF", nil)
	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ExportPDF, exporter.format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audit.pdf")

	c, w = newGinContext(http.MethodPost, "/audit-logs/exports", []byte(`{"format":"json","entity_type":"classes"}`))
	h.SubmitExport(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.ExportJSON, exporter.format)

	c, w = newGinContext(http.MethodGet, "/audit-logs/exports/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	h.ExportStatus(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuditHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	require.NoError(t, os.WriteFile(path, []byte("Seq\n1\n"), 0o600))
	h := NewAuditHandler(&auditPagerStub{}, &exporterStub{file: path})

	c, w := newGinContext(http.MethodGet, "/exports/good", nil)
	c.Params = gin.Params{{Key: "token", Value: "good"}}
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Seq\n1\n", w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

	c, w = newGinContext(http.MethodGet, "/exports/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	h.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

type authServiceStub struct {
	needsSetup bool
}

func (s *authServiceStub) NeedsSetup(ctx context.Context) (bool, error) { return s.needsSetup, nil }

func (s *authServiceStub) SetupAdmin(ctx context.Context, req models.SetupAdminRequest) (*models.UserInfo, error) {
	if !s.needsSetup {
		return nil, appErrors.ErrConflict
	}
	return &models.UserInfo{ID: "user-1", Username: req.Username, Role: models.RoleAdmin}, nil
}

func (s *authServiceStub) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if req.Password != "correct-horse" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{AccessToken: "token"}, nil
}

func TestAuthHandlerFlow(t *testing.T) {
	h := NewAuthHandler(&authServiceStub{needsSetup: true})

	c, w := newGinContext(http.MethodGet, "/auth/status", nil)
	h.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"needs_setup":true}`, string(decode(t, w).Data))

	c, w = newGinContext(http.MethodPost, "/auth/setup", []byte(`{"username":"admin","password":"correct-horse"}`))
	h.Setup(c)
	require.Equal(t, http.StatusCreated, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{"username":"admin","password":"wrong"}`))
	h.Login(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

type pingStub struct{ err error }

func (p pingStub) PingContext(ctx context.Context) error { return p.err }

func TestHealthReportsDatabaseState(t *testing.T) {
	c, w := newGinContext(http.MethodGet, "/health", nil)
	NewMetricsHandler(nil, pingStub{}, nil).Health(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/health", nil)
	NewMetricsHandler(nil, pingStub{err: os.ErrDeadlineExceeded}, pingStub{}).Health(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"cache":"ok"`)
}
