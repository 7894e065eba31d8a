package api

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/gin-gonic/gin"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
	"github.com/coinharbor/coinharbor/internal/marketdata"
)

func (s *Server) getCandles(c *gin.Context) {
	productID := c.Param("productId")

	granularity, err := strconv.ParseInt(c.DefaultQuery("granularity", "1"), 10, 64)
	if err != nil || !slices.Contains(marketdata.Granularities, granularity) {
		cherrors.WriteError(c, &cherrors.ValidationError{
			Field: "granularity", Reason: "granularity must be one of 1, 5, 15, 30, 60, 360, 1440"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	candles, err := s.candles.Find(c.Request.Context(), productID, granularity, limit)
	if err != nil {
		cherrors.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, candles)
}
