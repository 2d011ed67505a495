package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	attrdomain "github.com/dylan3796/attribution-mvp/internal/attribution/domain"
	auditdomain "github.com/dylan3796/attribution-mvp/internal/audit/domain"
	"github.com/dylan3796/attribution-mvp/pkg/db/option"
	"github.com/dylan3796/attribution-mvp/pkg/db/pagination"
)

const actorHeader = "X-Actor-Id"

func (s *Server) actor(c *gin.Context) string {
	actor := strings.TrimSpace(c.GetHeader(actorHeader))
	if actor == "" {
		actor = "api"
	}
	return actor
}

type createTargetRequest struct {
	ExternalID  string          `json:"external_id"`
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Value       string          `json:"value"`
	Stage       string          `json:"stage"`
	ReferenceAt *time.Time      `json:"reference_at"`
	AccountName string          `json:"account_name"`
	Metadata    json.RawMessage `json:"metadata"`
}

func (s *Server) CreateTarget(c *gin.Context) {
	var req createTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		AbortWithError(c, newValidationError("external_id", "invalid_external_id", "external_id is required"))
		return
	}

	value, err := decimal.NewFromString(strings.TrimSpace(req.Value))
	if err != nil {
		AbortWithError(c, newValidationError("value", "invalid_value", "value must be a decimal string"))
		return
	}
	if value.IsNegative() {
		AbortWithError(c, attrdomain.ErrNegativeValue)
		return
	}

	targetType := attrdomain.TargetType(strings.TrimSpace(req.Type))
	if targetType == "" {
		targetType = attrdomain.TargetTypeOpportunity
	}

	stage := attrdomain.TargetStage(strings.TrimSpace(req.Stage))
	if stage == "" {
		stage = attrdomain.StageDiscovery
	}
	if stage.Order() < 0 {
		AbortWithError(c, attrdomain.ErrInvalidStage)
		return
	}

	target := attrdomain.AttributionTarget{
		ID:          s.genID.Generate(),
		ExternalID:  externalID,
		Type:        targetType,
		Name:        strings.TrimSpace(req.Name),
		Value:       value,
		Stage:       stage,
		ReferenceAt: req.ReferenceAt,
		AccountName: strings.TrimSpace(req.AccountName),
		Metadata:    datatypes.JSON(req.Metadata),
	}
	if err := s.targetRepo.Create(c.Request.Context(), &target); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": target})
}

func (s *Server) ListTargets(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Stage       string `form:"stage"`
		Type        string `form:"type"`
		AccountName string `form:"account_name"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := &attrdomain.AttributionTarget{
		Stage:       attrdomain.TargetStage(strings.TrimSpace(query.Stage)),
		Type:        attrdomain.TargetType(strings.TrimSpace(query.Type)),
		AccountName: strings.TrimSpace(query.AccountName),
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

	rows, err := s.targetRepo.Find(c.Request.Context(), filter, opts...)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, info, err := pagination.BuildPage(rows, limit, func(t *attrdomain.AttributionTarget) string {
		return t.ID.String()
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows, "page_info": info})
}

func (s *Server) GetTargetByID(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid target id"))
		return
	}

	target, err := s.targetRepo.FindOne(c.Request.Context(), &attrdomain.AttributionTarget{ID: id})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if target == nil {
		AbortWithError(c, attrdomain.ErrTargetNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": target})
}

type transitionStageRequest struct {
	Stage string `json:"stage"`
}

func (s *Server) TransitionTargetStage(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid target id"))
		return
	}

	var req transitionStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actor := s.actor(c)
	result, err := s.attributionSvc.TransitionStage(c.Request.Context(), id,
		attrdomain.TargetStage(strings.TrimSpace(req.Stage)), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := id.String()
	_ = s.auditSvc.Record(c.Request.Context(), actor, auditdomain.ActionStageChange,
		"target", &targetID, map[string]any{
			"stage":  strings.TrimSpace(req.Stage),
			"run_id": result.RunID,
		})

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RunTarget(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid target id"))
		return
	}

	actor := s.actor(c)
	result, err := s.attributionSvc.RunTarget(c.Request.Context(), id, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetID := id.String()
	_ = s.auditSvc.Record(c.Request.Context(), actor, auditdomain.ActionRunTarget,
		"target", &targetID, map[string]any{
			"run_id":  result.RunID,
			"outcome": string(result.Outcome),
		})

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetTargetLedger(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid target id"))
		return
	}

	entries, err := s.ledgerSvc.TargetLedger(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}
