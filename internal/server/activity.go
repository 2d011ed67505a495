package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	inferencedomain "github.com/dylan3796/attribution-mvp/internal/inference/domain"
	"github.com/dylan3796/attribution-mvp/pkg/db/option"
	"github.com/dylan3796/attribution-mvp/pkg/db/pagination"
)

type createActivityRequest struct {
	PartnerID        string          `json:"partner_id"`
	ActivityType     string          `json:"activity_type"`
	AccountName      string          `json:"account_name"`
	TargetExternalID string          `json:"target_external_id"`
	Role             string          `json:"role"`
	OccurredAt       *time.Time      `json:"occurred_at"`
	Payload          json.RawMessage `json:"payload"`
}

func (s *Server) CreateActivity(c *gin.Context) {
	var req createActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	partnerID := strings.TrimSpace(req.PartnerID)
	if partnerID == "" {
		AbortWithError(c, newValidationError("partner_id", "invalid_partner_id", "partner_id is required"))
		return
	}
	activityType := strings.TrimSpace(req.ActivityType)
	if activityType == "" {
		AbortWithError(c, newValidationError("activity_type", "invalid_activity_type", "activity_type is required"))
		return
	}

	activity := inferencedomain.PartnerActivity{
		ID:               s.genID.Generate(),
		PartnerID:        partnerID,
		ActivityType:     activityType,
		AccountName:      strings.TrimSpace(req.AccountName),
		TargetExternalID: strings.TrimSpace(req.TargetExternalID),
		Role:             strings.TrimSpace(req.Role),
		OccurredAt:       req.OccurredAt,
		Payload:          datatypes.JSON(req.Payload),
	}
	if err := s.activityRepo.Create(c.Request.Context(), &activity); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": activity})
}

func (s *Server) ListActivities(c *gin.Context) {
	var query struct {
		pagination.Pagination
		PartnerID string `form:"partner_id"`
		Processed string `form:"processed"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := &inferencedomain.PartnerActivity{
		PartnerID: strings.TrimSpace(query.PartnerID),
	}

	limit := query.Limit()
	opts := []option.QueryOption{
		option.WithOrder("id ASC"),
		option.WithLimit(limit + 1),
	}
	processed, err := parseOptionalBool(query.Processed)
	if err != nil {
		AbortWithError(c, newValidationError("processed", "invalid_processed", "invalid processed"))
		return
	}
	if processed != nil {
		opts = append(opts, option.WithCondition("processed = ?", *processed))
	}
	cursor, err := cursorAfter(query.PageToken)
	if err != nil {
		AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
		return
	}
	if cursor != nil {
		opts = append(opts, cursor)
	}

	rows, err := s.activityRepo.Find(c.Request.Context(), filter, opts...)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, info, err := pagination.BuildPage(rows, limit, func(a *inferencedomain.PartnerActivity) string {
		return a.ID.String()
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": info})
}

func (s *Server) ProcessActivity(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid activity id"))
		return
	}

	result, err := s.inferenceSvc.ProcessActivity(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RunInference(c *gin.Context) {
	result, err := s.inferenceSvc.ProcessBatch(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
