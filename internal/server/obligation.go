package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obligationdomain "github.com/smallbiznis/obligo/internal/obligation/domain"
	"github.com/smallbiznis/obligo/pkg/db/pagination"
)

func (s *Server) ListObligations(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Direction  string `form:"direction"`
		Status     string `form:"status"`
		OriginType string `form:"origin_type"`
		OriginID   string `form:"origin_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.obligationSvc.List(c.Request.Context(), obligationdomain.ListObligationRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Direction:  strings.TrimSpace(query.Direction),
		Status:     strings.TrimSpace(query.Status),
		OriginType: strings.TrimSpace(query.OriginType),
		OriginID:   strings.TrimSpace(query.OriginID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetObligation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.obligationSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConfirmObligation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.obligationSvc.Confirm(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelObligation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.obligationSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// DeleteObligation answers 200 with deleted=false and a reason when the
// obligation is protected.
func (s *Server) DeleteObligation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.reconcileSvc.ValidateAndDelete(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
