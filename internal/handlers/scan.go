package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dermalens/dermalens-backend/internal/services"
)

type ScanHandler struct {
	scanService services.ScanService
}

func NewScanHandler(scanService services.ScanService) *ScanHandler {
	return &ScanHandler{scanService: scanService}
}

func (sh *ScanHandler) Presign(c *gin.Context) {
	var req struct {
		ContentType string `json:"content_type"`
	}
	// body is optional; default content type applies
	_ = c.ShouldBindJSON(&req)

	presigned, err := sh.scanService.PresignUpload(c.Request.Context(), req.ContentType)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, presigned)
}

func (sh *ScanHandler) Submit(c *gin.Context) {
	var req struct {
		ScanID   string `json:"scan_id"`
		FrontKey string `json:"front_key"`
		LeftKey  string `json:"left_key"`
		RightKey string `json:"right_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	scanID, err := uuid.Parse(req.ScanID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_scan_id", err)
		return
	}
	scan, sErr := sh.scanService.SubmitScan(c.Request.Context(), scanID, req.FrontKey, req.LeftKey, req.RightKey)
	if sErr != nil {
		RespondServiceError(c, sErr)
		return
	}
	c.JSON(http.StatusAccepted, scan)
}

func (sh *ScanHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	scans, total, err := sh.scanService.ListScans(c.Request.Context(), page, perPage)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"scans": scans, "total": total, "page": page, "per_page": perPage})
}

func (sh *ScanHandler) Get(c *gin.Context) {
	scanID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_scan_id", err)
		return
	}
	scan, sErr := sh.scanService.GetScan(c.Request.Context(), scanID)
	if sErr != nil {
		RespondServiceError(c, sErr)
		return
	}
	RespondOK(c, scan)
}

func (sh *ScanHandler) Deltas(c *gin.Context) {
	scanID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_scan_id", err)
		return
	}
	deltas, dErr := sh.scanService.GetDeltas(c.Request.Context(), scanID)
	if dErr != nil {
		RespondServiceError(c, dErr)
		return
	}
	RespondOK(c, gin.H{"deltas": deltas})
}
