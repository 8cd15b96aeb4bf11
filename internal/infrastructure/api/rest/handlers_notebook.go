package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/nbflow/internal/domain"
)

// HandleGetNotebook handles GET /notebook.
func (s *Server) HandleGetNotebook(c *gin.Context) {
	respondJSON(c, http.StatusOK, s.scheduler.Snapshot())
}

// HandleUpdateSettings handles PATCH /notebook/settings.
func (s *Server) HandleUpdateSettings(c *gin.Context) {
	var req struct {
		DSN *string `json:"dsn"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}

	settings := s.scheduler.Snapshot().Settings
	if req.DSN != nil {
		settings.DSN = *req.DSN
	} else {
		settings.DSN = ""
	}
	s.scheduler.SaveSettings(settings)

	respondJSON(c, http.StatusOK, s.scheduler.Snapshot())
}

// HandleTestConnection handles POST /notebook/test-connection.
func (s *Server) HandleTestConnection(c *gin.Context) {
	ok, message := s.scheduler.TestConnection(c.Request.Context())
	status := "success"
	if !ok {
		status = "error"
	}
	respondJSON(c, http.StatusOK, gin.H{
		"status":  status,
		"message": message,
	})
}

// HandleRun handles POST /notebook/run.
func (s *Server) HandleRun(c *gin.Context) {
	var req struct {
		CellID string `json:"cellId" binding:"required"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}

	runID, err := s.scheduler.StartRun(req.CellID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"runId": runID})
}

// HandleCreateCell handles POST /notebook/cells.
func (s *Server) HandleCreateCell(c *gin.Context) {
	var req struct {
		Type string `json:"type" binding:"required,oneof=imperative query"`
		Code string `json:"code"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}

	cell := s.scheduler.CreateCell(domain.CellType(req.Type), req.Code)
	respondJSON(c, http.StatusOK, cell)
}

// HandleUpdateCell handles PATCH /notebook/cells/:id.
func (s *Server) HandleUpdateCell(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Code  *string `json:"code"`
		Type  *string `json:"type" binding:"omitempty,oneof=imperative query"`
		Order *int    `json:"order"`
	}
	if err := bindJSON(c, &req); err != nil {
		return
	}

	patch := domain.CellPatch{
		Code:  req.Code,
		Order: req.Order,
	}
	if req.Type != nil {
		t := domain.CellType(*req.Type)
		patch.Type = &t
	}

	cell, err := s.scheduler.UpdateCell(id, patch)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, cell)
}

// HandleDeleteCell handles DELETE /notebook/cells/:id.
func (s *Server) HandleDeleteCell(c *gin.Context) {
	if err := s.scheduler.DeleteCell(c.Param("id")); err != nil {
		respondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
