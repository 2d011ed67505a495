package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/dylan3796/attribution-mvp/internal/audit/domain"
	ruledomain "github.com/dylan3796/attribution-mvp/internal/rule/domain"
)

func (s *Server) CreateRule(c *gin.Context) {
	var input ruledomain.CreateRuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actor := s.actor(c)
	input.CreatedBy = actor

	rule, err := s.ruleSvc.Create(c.Request.Context(), input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ruleID := rule.ID.String()
	_ = s.auditSvc.Record(c.Request.Context(), actor, auditdomain.ActionRuleCreate,
		"rule", &ruleID, map[string]any{
			"name":       rule.Name,
			"model_type": string(rule.ModelType),
		})

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) CreateRuleVersion(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid rule id"))
		return
	}

	prior, err := s.ruleSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var input ruledomain.CreateRuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actor := s.actor(c)
	input.CreatedBy = actor

	rule, err := s.ruleSvc.CreateVersion(c.Request.Context(), prior.Name, input)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ruleID := rule.ID.String()
	_ = s.auditSvc.Record(c.Request.Context(), actor, auditdomain.ActionRuleVersion,
		"rule", &ruleID, map[string]any{
			"name":    rule.Name,
			"version": rule.Version,
		})

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) ListRules(c *gin.Context) {
	var query struct {
		ActiveOnly string `form:"active_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	rules, err := s.ruleSvc.List(c.Request.Context(), activeOnly != nil && *activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

func (s *Server) GetRuleByID(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid rule id"))
		return
	}

	rule, err := s.ruleSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) DeactivateRule(c *gin.Context) {
	id, err := parseSnowflakeParam(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid rule id"))
		return
	}

	if err := s.ruleSvc.Deactivate(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	actor := s.actor(c)
	ruleID := id.String()
	_ = s.auditSvc.Record(c.Request.Context(), actor, auditdomain.ActionRuleDeactivate,
		"rule", &ruleID, nil)

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deactivated": true}})
}

func (s *Server) ListRuleTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.ruleSvc.Templates()})
}

func (s *Server) CreateRuleFromTemplate(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	actor := s.actor(c)

	rule, err := s.ruleSvc.CreateFromTemplate(c.Request.Context(), key, actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ruleID := rule.ID.String()
	_ = s.auditSvc.Record(c.Request.Context(), actor, auditdomain.ActionRuleCreate,
		"rule", &ruleID, map[string]any{
			"template": key,
			"name":     rule.Name,
		})

	c.JSON(http.StatusOK, gin.H{"data": rule})
}
