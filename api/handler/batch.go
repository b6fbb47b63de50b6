package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// Controller is the batch control surface the handlers drive.
// *batch.Controller implements it.
type Controller interface {
	Start(ctx context.Context, req models.StartRequest) (string, error)
	Stop() bool
	ConfirmCaptchaResolved() bool
	Current() models.BatchStatusResponse
	Running() bool
	Reporter() *engine.Reporter
}

// PostBatch returns a handler for POST /api/v1/batches.
// It validates the request and starts the batch in the background; progress
// is streamed on /api/v1/events.
func PostBatch(ctl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		id, err := ctl.Start(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, models.StartResponse{Success: true, BatchID: id})
	}
}

// GetCurrent returns a handler for GET /api/v1/batches/current.
func GetCurrent(ctl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ctl.Current())
	}
}

// PostStop returns a handler for POST /api/v1/stop.
func PostStop(ctl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ctl.Stop() {
			c.JSON(http.StatusConflict, models.ControlResponse{Success: false, Message: "no batch is running"})
			return
		}
		c.JSON(http.StatusOK, models.ControlResponse{Success: true, Message: "stop requested"})
	}
}

// PostCaptchaContinue returns a handler for POST /api/v1/captcha/continue.
func PostCaptchaContinue(ctl Controller) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ctl.ConfirmCaptchaResolved() {
			c.JSON(http.StatusConflict, models.ControlResponse{Success: false, Message: "no CAPTCHA is pending"})
			return
		}
		c.JSON(http.StatusOK, models.ControlResponse{Success: true, Message: "resuming"})
	}
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
	c.JSON(mapErrorToStatus(scrapeErr), models.ErrorResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeMissingCredential:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeBatchRunning:
		return http.StatusConflict // 409
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
