package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/answer-relay/internal/api/dto"
	"github.com/cuongbtq/answer-relay/internal/ask"
	"github.com/cuongbtq/answer-relay/internal/domain"
	"github.com/gin-gonic/gin"
)

// SSE event names
const (
	eventStatus   = "status"
	eventResult   = "result"
	eventError    = "error"
	eventComplete = "complete"
)

// Process handles GET|POST /api/v1/actions/process
// Submits the question and waits for the answer with its supporting links
func (h *ActionHandler) Process(c *gin.Context) {
	h.process(c, h.coordinator.WithLinks(true))
}

// ProcessText handles GET|POST /api/v1/actions/process-text
// Same as Process but the response carries no links
func (h *ActionHandler) ProcessText(c *gin.Context) {
	h.process(c, h.coordinator.WithLinks(false))
}

func (h *ActionHandler) process(c *gin.Context, coordinator *ask.Coordinator) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	resp := coordinator.Handle(c.Request.Context(), req.UserID, req.Question)
	if resp.Status == ask.StatusOK {
		c.JSON(http.StatusOK, okBody(resp))
		return
	}

	c.JSON(statusFor(resp.Err), errorBody(resp))
}

// Stream handles GET /api/v1/actions/stream
// Reports progress as server-sent events, then the result or error, then complete
func (h *ActionHandler) Stream(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	events := make(chan sseEvent, 8)

	go func() {
		defer close(events)

		resp := h.coordinator.WithLinks(true).HandleWithProgress(ctx, req.UserID, req.Question, func(p ask.Progress) {
			send(ctx, events, sseEvent{name: eventStatus, data: dto.ProgressEvent{
				Stage:   p.Stage,
				JobID:   p.JobID,
				Attempt: p.Attempt,
			}})
		})

		if resp.Status == ask.StatusOK {
			send(ctx, events, sseEvent{name: eventResult, data: okBody(resp)})
		} else {
			send(ctx, events, sseEvent{name: eventError, data: errorBody(resp)})
		}
		send(ctx, events, sseEvent{name: eventComplete, data: dto.CompleteEvent{Status: resp.Status, JobID: resp.JobID}})
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(ev.name, ev.data)
		return true
	})
}

type sseEvent struct {
	name string
	data any
}

func send(ctx context.Context, events chan<- sseEvent, ev sseEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// bind reads userId and question; a malformed body is answered directly
func (h *ActionHandler) bind(c *gin.Context) (dto.ActionRequest, bool) {
	var req dto.ActionRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Warn("Invalid request body",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, dto.ActionErrorResponse{
			Status: ask.StatusError,
			Answer: "issue processing the request: " + domain.ErrBadRequest.Error() + ": " + err.Error(),
		})
		return req, false
	}
	return req, true
}

func okBody(resp *ask.Response) dto.ActionOKResponse {
	return dto.ActionOKResponse{
		Status:      ask.StatusOK,
		LocalAnswer: resp.Answer,
		Links:       resp.Links,
	}
}

func errorBody(resp *ask.Response) dto.ActionErrorResponse {
	return dto.ActionErrorResponse{
		Status: ask.StatusError,
		Answer: resp.Message,
	}
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRetryExhausted):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
