package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"xrate-oracle/internal/coordinator"
	"xrate-oracle/internal/host"
	"xrate-oracle/internal/rate"
)

// Message metadata headers mapped from the host runtime.
const (
	HeaderCaller         = "X-Caller-Principal"
	HeaderAttachedCycles = "X-Attached-Cycles"
	HeaderCyclesAccepted = "X-Cycles-Accepted"
	HeaderCyclesRefunded = "X-Cycles-Refunded"
)

// Result is the reply envelope: exactly one of Ok or Err is set.
type Result struct {
	Ok  *rate.ExchangeRate `json:"ok,omitempty"`
	Err *rate.Error        `json:"err,omitempty"`
}

func (s *Server) handleGetExchangeRate(c *gin.Context) {
	var req coordinator.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	caller := host.Principal(c.GetHeader(HeaderCaller))
	attached := uint64(0)
	if raw := c.GetHeader(HeaderAttachedCycles); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed " + HeaderAttachedCycles})
			return
		}
		attached = parsed
	}

	env := host.NewMessageEnvironment(caller, attached)
	out, err := s.resolver.GetExchangeRate(c.Request.Context(), env, req)

	c.Header(HeaderCyclesAccepted, strconv.FormatUint(env.Accepted(), 10))
	c.Header(HeaderCyclesRefunded, strconv.FormatUint(env.CyclesAvailable(), 10))

	if err != nil {
		var rateErr *rate.Error
		if !errors.As(err, &rateErr) {
			rateErr = rate.OtherError(rate.CodeRateOverflow, err.Error())
		}
		c.JSON(http.StatusOK, Result{Err: rateErr})
		return
	}
	c.JSON(http.StatusOK, Result{Ok: &out})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
