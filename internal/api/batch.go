package api

import (
	"net/http"
	"strconv"

	"halwakitchen/internal/auth"
	"halwakitchen/internal/live"

	"github.com/gin-gonic/gin"
)

// Batch lifecycle handlers

func (s *Server) createBatch(c *gin.Context) {
	var req struct {
		ProductIDs    []uint  `json:"product_ids" binding:"required"`
		StartWeightKg float64 `json:"start_weight_kg"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b, err := s.batches.CreateBatch(auth.Operator(c), req.ProductIDs, req.StartWeightKg)
	if err != nil {
		fail(c, err)
		return
	}

	s.metrics.BatchCreated()
	s.hub.Broadcast(live.Event{Type: live.EventBatchCreated, BatchID: b.ID, Payload: b.Code})
	c.JSON(http.StatusCreated, b)
}

func (s *Server) listBatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	batches, err := s.batches.ListBatches(limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batches)
}

func (s *Server) getBatch(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	b, err := s.batches.GetBatch(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) deleteBatch(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := s.batches.DeleteBatch(auth.Operator(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "batch removed"})
}

func (s *Server) listBatchSteps(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	instances, err := s.batches.ListInstances(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (s *Server) finishBatch(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	b, err := s.batches.FinishBatch(auth.Operator(c), id)
	if err != nil {
		fail(c, err)
		return
	}

	if b.TotalDurationMinutes != nil {
		s.metrics.BatchFinished(*b.TotalDurationMinutes)
	}
	s.hub.Broadcast(live.Event{Type: live.EventBatchCompleted, BatchID: b.ID, Payload: b.TotalDurationMinutes})
	c.JSON(http.StatusOK, b)
}

func (s *Server) validateBatch(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Comments string `json:"comments"`
	}
	// body optional on validation
	_ = c.ShouldBindJSON(&req)

	b, err := s.validator.ValidateBatch(auth.Operator(c), id, req.Comments)
	if err != nil {
		fail(c, err)
		return
	}

	if b.ValidationStatus != nil {
		s.metrics.BatchValidated(*b.ValidationStatus)
		s.hub.Broadcast(live.Event{Type: live.EventBatchValidated, BatchID: b.ID, Payload: *b.ValidationStatus})
	}
	c.JSON(http.StatusOK, b)
}

// Stopwatch handlers

type remarkRequest struct {
	Remarks string `json:"remarks"`
}

func (s *Server) startStep(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req remarkRequest
	_ = c.ShouldBindJSON(&req)

	inst, err := s.batches.StartStep(auth.Operator(c), id, req.Remarks)
	if err != nil {
		fail(c, err)
		return
	}

	s.hub.Broadcast(live.Event{Type: live.EventStepStarted, BatchID: inst.BatchID, InstanceID: inst.ID})
	c.JSON(http.StatusOK, inst)
}

func (s *Server) stopStep(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req remarkRequest
	_ = c.ShouldBindJSON(&req)

	inst, err := s.batches.StopStep(auth.Operator(c), id, req.Remarks)
	if err != nil {
		fail(c, err)
		return
	}

	if inst.DurationMinutes != nil {
		label := strconv.FormatUint(uint64(inst.ProcessTypeID), 10)
		if pt, err := s.catalog.GetProcessType(inst.ProcessTypeID); err == nil {
			label = pt.Name
		}
		s.metrics.StepStopped(label, *inst.DurationMinutes)
	}
	s.hub.Broadcast(live.Event{Type: live.EventStepStopped, BatchID: inst.BatchID, InstanceID: inst.ID, Payload: inst.DurationMinutes})
	c.JSON(http.StatusOK, inst)
}
