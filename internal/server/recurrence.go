package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	recurrencedomain "github.com/smallbiznis/obligo/internal/recurrence/domain"
)

type processRecurrencesRequest struct {
	Lookahead   int    `json:"lookahead"`
	TargetMonth string `json:"target_month"`
}

func (s *Server) GenerateFutureAccounts(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.recurrenceSvc.GenerateFutureAccounts(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelFutureAccounts(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.recurrenceSvc.CancelFutureAccounts(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ProcessDueRecurrences(c *gin.Context) {
	var req processRecurrencesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	targetMonth, err := parseMonth(req.TargetMonth)
	if err != nil {
		AbortWithError(c, newValidationError("target_month", "invalid_target_month", "invalid target_month"))
		return
	}

	resp, err := s.recurrenceSvc.ProcessDueRecurrences(c.Request.Context(), recurrencedomain.ProcessRequest{
		Lookahead:   req.Lookahead,
		TargetMonth: targetMonth,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ProcessRecurringTemplates(c *gin.Context) {
	resp, err := s.recurrenceSvc.ProcessGenericRecurringTemplates(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
