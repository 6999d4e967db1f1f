package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/insightsync/internal/ratelimit"
)

type usageResponse struct {
	GlobalUsage            float64                            `json:"global_usage"`
	RecommendedConcurrency int                                `json:"recommended_concurrency"`
	Summary                string                             `json:"summary"`
	Resources              map[string]ratelimit.UsageSnapshot `json:"resources"`
}

func (s *Server) GetUsage(c *gin.Context) {
	if s.monitor == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, usageResponse{
		GlobalUsage:            s.monitor.GlobalUsage(),
		RecommendedConcurrency: s.monitor.RecommendedConcurrency(),
		Summary:                s.monitor.UsageSummary(),
		Resources:              s.monitor.Snapshots(),
	})
}

func (s *Server) TriggerRefresh(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	outcome, err := s.scheduler.RefreshAccount(c.Request.Context(), c.Param("tenantId"), c.Param("accountId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) GetDemographics(c *gin.Context) {
	if s.demographics == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	period, err := strconv.Atoi(c.Param("period"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	report, err := s.demographics.Get(c.Request.Context(), c.Param("tenantId"), c.Param("accountId"), period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if report == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, report)
}
