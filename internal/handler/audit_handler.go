package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registree/internal/dto"
	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/service"
	appErrors "github.com/noah-isme/registree/pkg/errors"
	"github.com/noah-isme/registree/pkg/response"
	"github.com/noah-isme/registree/pkg/storage"
)

type auditPager interface {
	Page(ctx context.Context, filter models.AuditFilter) (*service.AuditPage, error)
}

type auditExporter interface {
	Render(ctx context.Context, format models.ExportFormat, filter models.AuditFilter) (*service.ExportFile, error)
	Submit(ctx context.Context, format models.ExportFormat, filter models.AuditFilter) (*models.ExportJob, error)
	Job(id string) (*models.ExportJob, error)
	Jobs() []models.ExportJob
	Files() ([]storage.StoredFile, error)
	OpenSigned(token string) (*os.File, string, error)
}

// AuditHandler serves the read-only audit log and its exports.
type AuditHandler struct {
	viewer  auditPager
	exports auditExporter
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(viewer auditPager, exports auditExporter) *AuditHandler {
	return &AuditHandler{viewer: viewer, exports: exports}
}

// List godoc
// @Summary Browse the audit log
// @Description Entries in sequence order; continue with after_seq=next_after_seq while has_more is true.
// @Tags Audit
// @Produce json
// @Param entity_type query string false "Entity type or collection"
// @Param entity_id query string false "Entity ID"
// @Param actor query string false "Actor"
// @Param from query string false "Inclusive start (RFC 3339 or YYYY-MM-DD)"
// @Param to query string false "Exclusive end (RFC 3339 or YYYY-MM-DD)"
// @Param after_seq query int false "Return entries after this sequence number"
// @Param limit query int false "Page size (max 1000)"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter, ok := bindAuditFilter(c)
	if !ok {
		return
	}
	page, err := h.viewer.Page(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page.Entries, map[string]interface{}{
		"next_after_seq": page.NextAfterSeq,
		"has_more":       page.HasMore,
	})
}

// Export godoc
// @Summary Download the audit log
// @Tags Audit
// @Produce octet-stream
// @Param format query string false "csv, json or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	filter, ok := bindAuditFilter(c)
	if !ok {
		return
	}
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ExportCSV))))
	file, err := h.exports.Render(c.Request.Context(), format, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Name, file.ContentType, file.Data)
}

// SubmitExport godoc
// @Summary Queue an audit log export to disk
// @Tags Audit
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audit-logs/exports [post]
func (h *AuditHandler) SubmitExport(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid export payload"))
		return
	}
	filter, err := req.AuditLogQuery.Filter()
	if err != nil {
		response.Error(c, err)
		return
	}
	job, err := h.exports.Submit(c.Request.Context(), req.Format, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job)
}

// ListExports godoc
// @Summary List export jobs and stored files
// @Tags Audit
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /audit-logs/exports [get]
func (h *AuditHandler) ListExports(c *gin.Context) {
	files, err := h.exports.Files()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exports"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"jobs": h.exports.Jobs(), "files": files})
}

// ExportStatus godoc
// @Summary Export job status
// @Tags Audit
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audit-logs/exports/{id} [get]
func (h *AuditHandler) ExportStatus(c *gin.Context) {
	job, err := h.exports.Job(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

// Download godoc
// @Summary Download a finished export through its signed link
// @Tags Audit
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *AuditHandler) Download(c *gin.Context) {
	file, name, err := h.exports.OpenSigned(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	base := path.Base(name)
	c.DataFromReader(http.StatusOK, info.Size(), contentTypeFor(base), file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", base),
		"Cache-Control":       "no-store",
	})
}

func bindAuditFilter(c *gin.Context) (models.AuditFilter, bool) {
	var query dto.AuditLogQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid audit log query"))
		return models.AuditFilter{}, false
	}
	filter, err := query.Filter()
	if err != nil {
		response.Error(c, err)
		return models.AuditFilter{}, false
	}
	return filter, true
}

func contentTypeFor(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if format := models.ExportFormat(ext); format.Valid() {
		return format.ContentType()
	}
	return "application/octet-stream"
}
