package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registree/internal/dto"
	"github.com/noah-isme/registree/internal/models"
	"github.com/noah-isme/registree/internal/service"
	"github.com/noah-isme/registree/pkg/response"
)

type recordService interface {
	List(ctx context.Context, entityType models.EntityType) ([]models.Record, error)
	Get(ctx context.Context, entityType models.EntityType, id string) (models.Record, error)
	Create(ctx context.Context, rec models.Record) (*service.Outcome, error)
	Update(ctx context.Context, id string, rec models.Record) (*service.Outcome, error)
	Delete(ctx context.Context, entityType models.EntityType, id string) (*service.Outcome, error)
}

type historyStater interface {
	State() service.HistoryState
}

// RecordHandler exposes CRUD for the tracked entity types. Writes are
// undoable and audited.
type RecordHandler struct {
	records recordService
	history historyStater
}

// NewRecordHandler constructs the handler.
func NewRecordHandler(records recordService, history historyStater) *RecordHandler {
	return &RecordHandler{records: records, history: history}
}

// List godoc
// @Summary List records
// @Tags Records
// @Produce json
// @Param entity path string true "Collection (students, teachers, classes, enrollments, attendance, calendar-events)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /records/{entity} [get]
func (h *RecordHandler) List(c *gin.Context) {
	entityType, err := entityFromParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.records.List(c.Request.Context(), entityType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"count": len(records)})
}

// Get godoc
// @Summary Get a record
// @Tags Records
// @Produce json
// @Param entity path string true "Collection"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{entity}/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	entityType, err := entityFromParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rec, err := h.records.Get(c.Request.Context(), entityType, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec)
}

// Create godoc
// @Summary Create a record
// @Description The write is pushed onto the undo stack and logged.
// @Tags Records
// @Accept json
// @Produce json
// @Param entity path string true "Collection"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /records/{entity} [post]
func (h *RecordHandler) Create(c *gin.Context) {
	rec, ok := h.bindRecord(c)
	if !ok {
		return
	}
	outcome, err := h.records.Create(c.Request.Context(), rec)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewMutationResult(outcome, h.history.State()))
}

// Update godoc
// @Summary Replace a record
// @Tags Records
// @Accept json
// @Produce json
// @Param entity path string true "Collection"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{entity}/{id} [put]
func (h *RecordHandler) Update(c *gin.Context) {
	rec, ok := h.bindRecord(c)
	if !ok {
		return
	}
	outcome, err := h.records.Update(c.Request.Context(), c.Param("id"), rec)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewMutationResult(outcome, h.history.State()))
}

// Delete godoc
// @Summary Delete a record
// @Tags Records
// @Produce json
// @Param entity path string true "Collection"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{entity}/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	entityType, err := entityFromParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	outcome, err := h.records.Delete(c.Request.Context(), entityType, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewMutationResult(outcome, h.history.State()))
}

func (h *RecordHandler) bindRecord(c *gin.Context) (models.Record, bool) {
	entityType, err := entityFromParam(c)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	rec := models.NewRecord(entityType)
	if err := c.ShouldBindJSON(rec); err != nil {
		response.Error(c, bindError(err, "invalid record payload"))
		return nil, false
	}
	return rec, true
}
