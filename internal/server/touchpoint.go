package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	"github.com/dylan3796/attribution-mvp/pkg/db/option"
	"github.com/dylan3796/attribution-mvp/pkg/db/pagination"
)

type createTouchpointRequest struct {
	TargetID   string          `json:"target_id"`
	PartnerID  string          `json:"partner_id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Weight     *float64        `json:"weight"`
	OccurredAt *time.Time      `json:"occurred_at"`
	Confidence *float64        `json:"confidence"`
	Provenance json.RawMessage `json:"provenance"`
}

func (s *Server) CreateTouchpoint(c *gin.Context) {
	var req createTouchpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	targetID, err := parseSnowflakeParam(req.TargetID)
	if err != nil {
		AbortWithError(c, newValidationError("target_id", "invalid_target_id", "invalid target id"))
		return
	}
	partnerID := strings.TrimSpace(req.PartnerID)
	if partnerID == "" {
		AbortWithError(c, newValidationError("partner_id", "invalid_partner_id", "partner_id is required"))
		return
	}

	target, err := s.targetRepo.FindOne(c.Request.Context(), &attrdomain.AttributionTarget{ID: targetID})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if target == nil {
		AbortWithError(c, attrdomain.ErrTargetNotFound)
		return
	}

	tpType := attrdomain.TouchpointType(strings.TrimSpace(req.Type))
	if tpType == "" {
		tpType = attrdomain.TouchpointExplicitTag
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = attrdomain.RoleInfluence
	}

	weight := 1.0
	if req.Weight != nil {
		if *req.Weight < 0 {
			AbortWithError(c, newValidationError("weight", "invalid_weight", "weight must be non-negative"))
			return
		}
		weight = *req.Weight
	}
	confidence := 1.0
	if req.Confidence != nil {
		if *req.Confidence < 0 || *req.Confidence > 1 {
			AbortWithError(c, newValidationError("confidence", "invalid_confidence", "confidence must be within [0,1]"))
			return
		}
		confidence = *req.Confidence
	}

	tp := attrdomain.PartnerTouchpoint{
		ID:         s.genID.Generate(),
		TargetID:   targetID,
		PartnerID:  partnerID,
		Type:       tpType,
		Role:       role,
		Weight:     weight,
		OccurredAt: req.OccurredAt,
		Confidence: confidence,
		Provenance: datatypes.JSON(req.Provenance),
	}
	if err := s.touchpointRepo.Create(c.Request.Context(), &tp); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tp})
}

func (s *Server) ListTouchpoints(c *gin.Context) {
	var query struct {
		pagination.Pagination
		TargetID  string `form:"target_id"`
		PartnerID string `form:"partner_id"`
		Type      string `form:"type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := &attrdomain.PartnerTouchpoint{
		PartnerID: strings.TrimSpace(query.PartnerID),
		Type:      attrdomain.TouchpointType(strings.TrimSpace(query.Type)),
	}
	if strings.TrimSpace(query.TargetID) != "" {
		targetID, err := parseSnowflakeParam(query.TargetID)
		if err != nil {
			AbortWithError(c, newValidationError("target_id", "invalid_target_id", "invalid target id"))
			return
		}
		filter.TargetID = targetID
	}

	limit := query.Limit()
	opts := []option.QueryOption{
		option.WithOrder("id ASC"),
		option.WithLimit(limit + 1),
	}
	cursor, err := cursorAfter(query.PageToken)
	if err != nil {
		AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
		return
	}
	if cursor != nil {
		opts = append(opts, cursor)
	}

	rows, err := s.touchpointRepo.Find(c.Request.Context(), filter, opts...)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, info, err := pagination.BuildPage(rows, limit, func(tp *attrdomain.PartnerTouchpoint) string {
		return tp.ID.String()
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": info})
}
