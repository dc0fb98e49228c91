package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dermalens/dermalens-backend/internal/services"
	"github.com/dermalens/dermalens-backend/internal/types"
)

type PlanHandler struct {
	planService services.PlanService
}

func NewPlanHandler(planService services.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

func (ph *PlanHandler) Create(c *gin.Context) {
	var req struct {
		LockDurationDays int `json:"lock_duration_days"`
	}
	// body is optional; the default lock duration applies
	_ = c.ShouldBindJSON(&req)

	plan, err := ph.planService.CreatePlan(c.Request.Context(), req.LockDurationDays)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (ph *PlanHandler) Current(c *gin.Context) {
	view, err := ph.planService.GetCurrentPlan(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, view)
}

func (ph *PlanHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	plans, total, err := ph.planService.ListPlans(c.Request.Context(), page, perPage)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"plans": plans, "total": total, "page": page, "per_page": perPage})
}

func (ph *PlanHandler) Adjust(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	result, err := ph.planService.AdjustPlan(c.Request.Context(), types.AdjustmentReason(req.Reason), req.Notes)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	if !result.Allowed {
		RespondError(c, http.StatusUnprocessableEntity, "adjustment_denied", &deniedError{reason: result.Reason})
		return
	}
	RespondOK(c, result)
}

type deniedError struct{ reason string }

func (e *deniedError) Error() string { return e.reason }

func (ph *PlanHandler) Unlock(c *gin.Context) {
	plan, err := ph.planService.EnableAdjustment(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, plan)
}

func (ph *PlanHandler) Recommendations(c *gin.Context) {
	recs, err := ph.planService.GetRecommendations(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"recommendations": recs})
}
