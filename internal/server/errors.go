package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/insightsync/internal/account/domain"
	"github.com/smallbiznis/insightsync/internal/demographics"
	"github.com/smallbiznis/insightsync/internal/ratelimit"
	"github.com/smallbiznis/insightsync/internal/refresh/domain"
	"github.com/smallbiznis/insightsync/internal/scheduler"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, demographics.ErrInvalidPeriod),
		errors.Is(err, domain.ErrInvalidTenant),
		errors.Is(err, domain.ErrInvalidAccount):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrAccountNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case errors.Is(err, scheduler.ErrRefreshInProgress):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "refresh already running"}
	case errors.Is(err, ratelimit.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorPayload{Type: "quota_exceeded", Message: "daily refresh quota exhausted"}
	case errors.Is(err, scheduler.ErrAccountUnavailable):
		return http.StatusUnprocessableEntity, errorPayload{Type: "account_unavailable", Message: err.Error()}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	}

	if stage, ok := domain.StageOf(err); ok {
		status := http.StatusInternalServerError
		if domain.IsProviderError(err) {
			status = http.StatusBadGateway
		}
		return status, errorPayload{Type: "refresh_failed", Message: err.Error(), Stage: string(stage)}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}
