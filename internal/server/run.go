package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/dylan3796/attribution-mvp/internal/audit/domain"
)

func (s *Server) RunBatch(c *gin.Context) {
	actor := s.actor(c)

	results, err := s.attributionSvc.RunBatch(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	outcomes := map[string]int{}
	runID := ""
	for _, r := range results {
		outcomes[string(r.Outcome)]++
		runID = r.RunID
	}
	_ = s.auditSvc.Record(c.Request.Context(), actor, auditdomain.ActionRunBatch,
		"batch", nil, map[string]any{
			"run_id":   runID,
			"targets":  len(results),
			"outcomes": outcomes,
		})

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"run_id":   runID,
		"results":  results,
		"outcomes": outcomes,
	}})
}
