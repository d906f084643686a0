package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-api/internal/models"
	"github.com/noah-isme/attendance-api/pkg/response"
)

type absenceSweeper interface {
	Run(ctx context.Context) (*models.AbsenceSweepResult, error)
}

// AdminHandler exposes operational triggers.
type AdminHandler struct {
	sweep absenceSweeper
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(sweep absenceSweeper) *AdminHandler {
	return &AdminHandler{sweep: sweep}
}

// RunAbsenceSweep godoc
// @Summary Run the consecutive-absence sweep now
// @Description Notifies parents and group teachers of students at or above the absence threshold. Each run notifies again.
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/absence-sweep [post]
func (h *AdminHandler) RunAbsenceSweep(c *gin.Context) {
	result, err := h.sweep.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
