package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/dbmanager/internal/model"
)

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) Handle(ctx context.Context, req model.Request) model.Response {
	args := m.Called(ctx, req)
	return args.Get(0).(model.Response)
}

func TestHandle_Success(t *testing.T) {
	lc := &mockLifecycle{}
	h := NewHandler(lc, zerolog.Nop())
	ctx := context.Background()

	lc.On("Handle", ctx, model.Request{
		RequestID:    "gw-123",
		Operation:    model.OperationCreateDatabase,
		DatabaseName: "acme",
	}).Return(model.OK("Database created successfully"))

	ev := events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"operation": "createDatabase", "databaseName": "acme"},
		RequestContext:        events.APIGatewayProxyRequestContext{RequestID: "gw-123"},
	}
	resp, err := h.Handle(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
	assert.JSONEq(t, `{"message":"Database created successfully"}`, resp.Body)
	assert.NotContains(t, resp.Headers, "X-Error-Type")
	lc.AssertExpectations(t)
}

func TestHandle_GeneratesRequestID(t *testing.T) {
	lc := &mockLifecycle{}
	h := NewHandler(lc, zerolog.Nop())

	lc.On("Handle", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return len(req.RequestID) == 36 && req.Operation == model.OperationSelect
	})).Return(model.OK("2024-05-01T12:00:00Z"))

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"operation": "SELECT", "databaseName": "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	lc.AssertExpectations(t)
}

func TestHandle_MissingParameters(t *testing.T) {
	lc := &mockLifecycle{}
	h := NewHandler(lc, zerolog.Nop())

	for _, params := range []map[string]string{nil, {"operation": "SELECT"}, {"databaseName": "acme"}} {
		resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{QueryStringParameters: params})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"message":"Operation or Database name is not a string"}`, resp.Body)
		assert.Equal(t, model.ErrorTagValidation, resp.Headers["X-Error-Type"])
	}
	lc.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestHandle_EmptyParameters(t *testing.T) {
	lc := &mockLifecycle{}
	h := NewHandler(lc, zerolog.Nop())

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"operation": "", "databaseName": "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Event is invalid"}`, resp.Body)
	lc.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestHandle_ErrorResponse(t *testing.T) {
	lc := &mockLifecycle{}
	h := NewHandler(lc, zerolog.Nop())

	lc.On("Handle", mock.Anything, mock.Anything).
		Return(model.NewErrorResponse(http.StatusNotFound, model.ErrorTagNotFound, "Secret not found: admin"))

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		QueryStringParameters: map[string]string{"operation": "createDatabase", "databaseName": "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, model.ErrorTagNotFound, resp.Headers["X-Error-Type"])
	assert.JSONEq(t, `{"message":"Secret not found: admin"}`, resp.Body)
}
