package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registree/internal/dto"
	"github.com/noah-isme/registree/internal/service"
	"github.com/noah-isme/registree/pkg/response"
)

type historyService interface {
	Undo(ctx context.Context) (*service.Outcome, error)
	Redo(ctx context.Context) (*service.Outcome, error)
	State() service.HistoryState
}

// HistoryHandler exposes the undo and redo stacks.
type HistoryHandler struct {
	history historyService
}

// NewHistoryHandler constructs the handler.
func NewHistoryHandler(history historyService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// State godoc
// @Summary Undo/redo availability
// @Tags History
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /history [get]
func (h *HistoryHandler) State(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.history.State())
}

// Undo godoc
// @Summary Undo the most recent change
// @Tags History
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /history/undo [post]
func (h *HistoryHandler) Undo(c *gin.Context) {
	h.reverse(c, h.history.Undo)
}

// Redo godoc
// @Summary Redo the most recently undone change
// @Tags History
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /history/redo [post]
func (h *HistoryHandler) Redo(c *gin.Context) {
	h.reverse(c, h.history.Redo)
}

func (h *HistoryHandler) reverse(c *gin.Context, op func(context.Context) (*service.Outcome, error)) {
	outcome, err := op(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewMutationResult(outcome, h.history.State()))
}
