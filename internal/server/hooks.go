package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	agencydomain "github.com/smallbiznis/obligo/internal/agency/domain"
)

// SaleSaved runs the after-save hook once the CRM has committed a sale.
func (s *Server) SaleSaved(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.lifecycleSvc.AfterSaleSave(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ContractSaved(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.lifecycleSvc.AfterContractSave(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type validateSaleRequest struct {
	Status   string `json:"status"`
	SellerID string `json:"seller_id"`
}

// ValidateSale runs the before-save check on the sale the CRM is about to write.
func (s *Server) ValidateSale(c *gin.Context) {
	var req validateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sale := &agencydomain.Sale{Status: agencydomain.SaleStatus(strings.TrimSpace(req.Status))}
	if id, ok := parseSnowflakeID(req.SellerID); ok {
		sale.SellerID = &id
	}
	if err := s.lifecycleSvc.BeforeSaleSave(sale); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"valid": true}})
}

type validateContractRequest struct {
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	SellerID string `json:"seller_id"`
}

func (s *Server) ValidateContract(c *gin.Context) {
	var req validateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	contract := &agencydomain.Contract{
		Kind:   agencydomain.ContractKind(strings.TrimSpace(req.Kind)),
		Status: agencydomain.ContractStatus(strings.TrimSpace(req.Status)),
	}
	if id, ok := parseSnowflakeID(req.SellerID); ok {
		contract.SellerID = &id
	}
	if err := s.lifecycleSvc.BeforeContractSave(contract); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"valid": true}})
}
