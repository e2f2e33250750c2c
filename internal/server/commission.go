package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	commissiondomain "github.com/smallbiznis/obligo/internal/commission/domain"
)

type createCommissionRequest struct {
	OriginType  string          `json:"origin_type"`
	SaleID      string          `json:"sale_id"`
	ContractID  string          `json:"contract_id"`
	Month       string          `json:"month"`
	SellerID    string          `json:"seller_id"`
	OriginValue decimal.Decimal `json:"origin_value"`
	ClientName  string          `json:"client_name"`
	Note        string          `json:"note"`
}

func (r createCommissionRequest) toDomain() (commissiondomain.CreateCommissionRequest, error) {
	var out commissiondomain.CreateCommissionRequest

	switch commissiondomain.OriginType(strings.TrimSpace(r.OriginType)) {
	case commissiondomain.OriginSale:
		saleID, ok := parseSnowflakeID(r.SaleID)
		if !ok {
			return out, newValidationError("sale_id", "invalid_sale_id", "invalid sale_id")
		}
		out.Origin = commissiondomain.SaleOrigin(saleID)
	case commissiondomain.OriginContract:
		contractID, ok := parseSnowflakeID(r.ContractID)
		if !ok {
			return out, newValidationError("contract_id", "invalid_contract_id", "invalid contract_id")
		}
		month, err := parseMonth(r.Month)
		if err != nil || month == nil {
			return out, newValidationError("month", "invalid_month", "invalid month")
		}
		out.Origin = commissiondomain.ContractOrigin(contractID, *month)
		out.MonthRef = *month
	default:
		return out, newValidationError("origin_type", "invalid_origin_type", "origin_type must be sale or contract")
	}

	if strings.TrimSpace(r.SellerID) != "" {
		sellerID, ok := parseSnowflakeID(r.SellerID)
		if !ok {
			return out, newValidationError("seller_id", "invalid_seller_id", "invalid seller_id")
		}
		out.SellerID = sellerID
	}
	out.OriginValue = r.OriginValue
	out.ClientName = strings.TrimSpace(r.ClientName)
	out.Note = strings.TrimSpace(r.Note)
	return out, nil
}

func (s *Server) CreateCommission(c *gin.Context) {
	var req createCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	domainReq, err := req.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.commissionSvc.CreateCommission(c.Request.Context(), domainReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) GetCommission(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.commissionSvc.GetCommission(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCommission(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.commissionSvc.DeleteCommission(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id.String(), "deleted": true}})
}

func (s *Server) SyncMissingCommissions(c *gin.Context) {
	resp, err := s.syncSvc.SyncMissingCommissions(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
