package model

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error tags carried by the error variant of a Response.
const (
	ErrorTagValidation           = "ValidationError"
	ErrorTagNotFound             = "NotFound"
	ErrorTagMalformedSecret      = "MalformedSecret"
	ErrorTagUnsupportedOperation = "UnsupportedOperation"
	ErrorTagUnsupportedEngine    = "UnsupportedEngine"
	ErrorTagInternal             = "InternalError"
)

// Response is the structured result of one invocation. Body is the
// JSON-encoded {"message": ...} object.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
	Error      string `json:"error,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

// NewResponse builds a response with the given status and message.
func NewResponse(status int, message string) Response {
	b, _ := json.Marshal(messageBody{Message: message})
	return Response{StatusCode: status, Body: string(b)}
}

// NewErrorResponse builds the error variant of a response.
func NewErrorResponse(status int, tag, message string) Response {
	resp := NewResponse(status, message)
	resp.Error = tag
	return resp
}

// OK builds a 200 response.
func OK(message string) Response {
	return NewResponse(http.StatusOK, message)
}

// Message decodes the message from the response body.
func (r Response) Message() string {
	var b messageBody
	if err := json.Unmarshal([]byte(r.Body), &b); err != nil {
		return ""
	}
	return b.Message
}

// Success reports whether the status code is 2xx.
func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RejectEvent builds the 400 response for an event ParseRequest rejected.
func RejectEvent(err error) Response {
	msg := "Event is invalid"
	if errors.Is(err, ErrNotString) {
		msg = "Operation or Database name is not a string"
	}
	return NewErrorResponse(http.StatusBadRequest, ErrorTagValidation, msg)
}
