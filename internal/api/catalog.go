package api

import (
	"net/http"
	"strconv"

	"halwakitchen/internal/auth"

	"github.com/gin-gonic/gin"
)

// Process type registry handlers

func (s *Server) createProcessType(c *gin.Context) {
	var req struct {
		Name                    string  `json:"name" binding:"required"`
		StandardDurationMinutes float64 `json:"standard_duration_minutes"`
		VariationBufferMinutes  float64 `json:"variation_buffer_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pt, err := s.catalog.CreateProcessType(auth.Operator(c), req.Name,
		req.StandardDurationMinutes, req.VariationBufferMinutes)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, pt)
}

func (s *Server) listProcessTypes(c *gin.Context) {
	pts, err := s.catalog.ListProcessTypes()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pts)
}

func (s *Server) getProcessType(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	pt, err := s.catalog.GetProcessType(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pt)
}

func (s *Server) updateProcessType(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Name                    string  `json:"name" binding:"required"`
		StandardDurationMinutes float64 `json:"standard_duration_minutes"`
		VariationBufferMinutes  float64 `json:"variation_buffer_minutes"`
		Active                  bool    `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pt, err := s.catalog.UpdateProcessType(auth.Operator(c), id, req.Name,
		req.StandardDurationMinutes, req.VariationBufferMinutes, req.Active)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pt)
}

func (s *Server) deleteProcessType(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.catalog.DeleteProcessType(auth.Operator(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "process type removed"})
}

// Product template catalog handlers

func (s *Server) createProductTemplate(c *gin.Context) {
	var req struct {
		Name             string `json:"name" binding:"required"`
		BaseProcessCount int    `json:"base_process_count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tpl, err := s.catalog.CreateProductTemplate(auth.Operator(c), req.Name, req.BaseProcessCount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (s *Server) listProductTemplates(c *gin.Context) {
	tpls, err := s.catalog.ListProductTemplates()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpls)
}

func (s *Server) getProductTemplate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	tpl, err := s.catalog.GetProductTemplate(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) updateProductTemplate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Name             string `json:"name" binding:"required"`
		BaseProcessCount int    `json:"base_process_count"`
		Active           bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tpl, err := s.catalog.UpdateProductTemplate(auth.Operator(c), id, req.Name,
		req.BaseProcessCount, req.Active)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (s *Server) deleteProductTemplate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.catalog.DeleteProductTemplate(auth.Operator(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "product template removed"})
}

// Template step handlers

func (s *Server) listSteps(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	steps, err := s.catalog.ListSteps(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, steps)
}

type stepRequest struct {
	ProcessTypeID       uint `json:"process_type_id" binding:"required"`
	SequenceOrder       int  `json:"sequence_order"`
	AdditionalProcesses int  `json:"additional_processes"`
}

func (s *Server) createStep(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step, err := s.catalog.CreateStep(auth.Operator(c), id, req.ProcessTypeID,
		req.SequenceOrder, req.AdditionalProcesses)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, step)
}

func (s *Server) upsertStep(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step, err := s.catalog.UpsertStep(auth.Operator(c), id, req.ProcessTypeID,
		req.SequenceOrder, req.AdditionalProcesses)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, step)
}

func (s *Server) reorderSteps(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		StepIDs []uint `json:"step_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.catalog.Reorder(auth.Operator(c), id, req.StepIDs); err != nil {
		fail(c, err)
		return
	}

	steps, err := s.catalog.ListSteps(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, steps)
}

func (s *Server) deleteStep(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	stepID, ok := paramID(c, "stepID")
	if !ok {
		return
	}
	if err := s.catalog.DeleteStep(auth.Operator(c), id, stepID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "step removed"})
}

// paramID parses a path parameter as an id, answering 400 itself on garbage.
func paramID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id: " + raw})
		return 0, false
	}
	return uint(id), true
}
