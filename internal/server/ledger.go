package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/dylan3796/attribution-mvp/internal/ledger/domain"
	"github.com/dylan3796/attribution-mvp/pkg/db/pagination"
)

func (s *Server) ListLedgerEntries(c *gin.Context) {
	var query struct {
		pagination.Pagination
		TargetID          string `form:"target_id"`
		PartnerID         string `form:"partner_id"`
		RunID             string `form:"run_id"`
		IncludeSuperseded string `form:"include_superseded"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := ledgerdomain.EntryFilter{
		PartnerID: strings.TrimSpace(query.PartnerID),
		RunID:     strings.TrimSpace(query.RunID),
	}
	if strings.TrimSpace(query.TargetID) != "" {
		targetID, err := parseSnowflakeParam(query.TargetID)
		if err != nil {
			AbortWithError(c, newValidationError("target_id", "invalid_target_id", "invalid target id"))
			return
		}
		filter.TargetID = targetID
	}
	includeSuperseded, err := parseOptionalBool(query.IncludeSuperseded)
	if err != nil {
		AbortWithError(c, newValidationError("include_superseded", "invalid_include_superseded", "invalid include_superseded"))
		return
	}
	filter.IncludeSuperseded = includeSuperseded != nil && *includeSuperseded

	entries, info, err := s.ledgerSvc.ListEntries(c.Request.Context(), filter, query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries, "page_info": info})
}

func (s *Server) ListPartnerSummaries(c *gin.Context) {
	summaries, err := s.ledgerSvc.PartnerSummaries(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summaries})
}
