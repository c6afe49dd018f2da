// Package gateway adapts API Gateway proxy events to lifecycle requests.
package gateway

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/edvin/dbmanager/internal/model"
	"github.com/edvin/dbmanager/internal/platform"
)

// RequestHandler runs one lifecycle request.
type RequestHandler interface {
	Handle(ctx context.Context, req model.Request) model.Response
}

// Handler is the Lambda entry point for API Gateway proxy integrations.
type Handler struct {
	lifecycle RequestHandler
	logger    zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(lifecycle RequestHandler, logger zerolog.Logger) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		logger:    logger.With().Str("component", "gateway").Logger(),
	}
}

// Handle converts the proxy request, runs it and converts the response.
// Failures are always reported in the response, never as a Lambda error.
func (h *Handler) Handle(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp := h.handle(ctx, ev)
	return toProxyResponse(resp), nil
}

func (h *Handler) handle(ctx context.Context, ev events.APIGatewayProxyRequest) model.Response {
	requestID := ev.RequestContext.RequestID
	if requestID == "" {
		requestID = platform.NewID()
	}

	req, err := model.ParseRequest(model.Event{
		RequestID:             requestID,
		QueryStringParameters: ev.QueryStringParameters,
	})
	if err != nil {
		h.logger.Warn().Str("request_id", requestID).Err(err).Msg("rejected event")
		return model.RejectEvent(err)
	}
	return h.lifecycle.Handle(ctx, req)
}

func toProxyResponse(resp model.Response) events.APIGatewayProxyResponse {
	headers := map[string]string{"Content-Type": "application/json"}
	if resp.Error != "" {
		headers["X-Error-Type"] = resp.Error
	}
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       resp.Body,
	}
}
