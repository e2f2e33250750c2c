package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	reconciledomain "github.com/smallbiznis/obligo/internal/reconcile/domain"
)

func (s *Server) SweepOrphans(c *gin.Context) {
	dryRun, err := parseOptionalBool(c.Query("dry_run"))
	if err != nil {
		AbortWithError(c, newValidationError("dry_run", "invalid_dry_run", "invalid dry_run"))
		return
	}

	req := reconciledomain.SweepRequest{}
	if dryRun != nil {
		req.DryRun = *dryRun
	}
	resp, err := s.reconcileSvc.SweepOrphans(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DetectInconsistencies(c *gin.Context) {
	issues, err := s.reconcileSvc.DetectInconsistencies(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if issues == nil {
		issues = []reconciledomain.Issue{}
	}

	c.JSON(http.StatusOK, gin.H{"data": issues})
}

func (s *Server) RepairInconsistencies(c *gin.Context) {
	actions, err := s.reconcileSvc.RepairInconsistencies(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if actions == nil {
		actions = []reconciledomain.Action{}
	}

	c.JSON(http.StatusOK, gin.H{"data": actions})
}
