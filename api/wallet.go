package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
)

func (s *Server) walletEnabled(c *gin.Context) bool {
	if s.wallet == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wallet service disabled"})
		return false
	}
	return true
}

func (s *Server) getAddresses(c *gin.Context) {
	if !s.walletEnabled(c) {
		return
	}
	addrs, err := s.wallet.GetAddresses(c.Request.Context(), currentUserID(c), c.Param("currency"))
	if err != nil {
		cherrors.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, addrs)
}

func (s *Server) createAddress(c *gin.Context) {
	if !s.walletEnabled(c) {
		return
	}
	addr, err := s.wallet.GenerateAddress(c.Request.Context(), currentUserID(c), c.Param("currency"))
	if err != nil {
		cherrors.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, addr)
}

func (s *Server) getDeposits(c *gin.Context) {
	if !s.walletEnabled(c) {
		return
	}
	page, size := pagination(c)
	deposits, err := s.wallet.GetDeposits(c.Request.Context(), currentUserID(c), page, size)
	if err != nil {
		cherrors.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, deposits)
}

func (s *Server) getWithdrawals(c *gin.Context) {
	if !s.walletEnabled(c) {
		return
	}
	page, size := pagination(c)
	withdrawals, err := s.wallet.GetWithdrawals(c.Request.Context(), currentUserID(c), page, size)
	if err != nil {
		cherrors.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, withdrawals)
}

type withdrawalRequest struct {
	Currency string          `json:"currency" binding:"required"`
	Address  string          `json:"address" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
}

func (s *Server) createWithdrawal(c *gin.Context) {
	if !s.walletEnabled(c) {
		return
	}
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		cherrors.WriteError(c, &cherrors.ValidationError{Reason: err.Error()})
		return
	}
	w, err := s.wallet.RequestWithdrawal(c.Request.Context(),
		currentUserID(c), req.Currency, req.Address, req.Amount)
	if err != nil {
		cherrors.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (s *Server) approveWithdrawal(c *gin.Context) {
	if !s.walletEnabled(c) {
		return
	}
	w, err := s.wallet.ApproveWithdrawal(c.Request.Context(), c.Param("id"))
	if err != nil {
		cherrors.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) rejectWithdrawal(c *gin.Context) {
	if !s.walletEnabled(c) {
		return
	}
	w, err := s.wallet.RejectWithdrawal(c.Request.Context(), c.Param("id"))
	if err != nil {
		cherrors.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func pagination(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}
