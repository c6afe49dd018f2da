package model

import "errors"

// Operation is the lifecycle action requested by a caller.
type Operation string

const (
	OperationCreateDatabase Operation = "createDatabase"
	OperationDropDatabase   Operation = "dropDatabase"
	OperationSelect         Operation = "SELECT"
)

// Query-string parameter names.
const (
	ParamOperation    = "operation"
	ParamDatabaseName = "databaseName"
)

var (
	// ErrNotString is returned when a required parameter is absent.
	ErrNotString = errors.New("operation or database name is not a string")
	// ErrInvalidEvent is returned when the event does not carry usable parameters.
	ErrInvalidEvent = errors.New("event is invalid")
)

// Event is the transport-neutral inbound invocation.
type Event struct {
	RequestID             string
	QueryStringParameters map[string]string
}

// Request is a validated lifecycle request.
type Request struct {
	RequestID    string    `json:"-"`
	Operation    Operation `json:"operation" validate:"required"`
	DatabaseName string    `json:"databaseName" validate:"required"`
}

// ParseRequest extracts a Request from the event's query-string parameters.
// Missing parameters yield ErrNotString; present but empty parameters fail the
// structural check with ErrInvalidEvent.
func ParseRequest(ev Event) (Request, error) {
	op, okOp := ev.QueryStringParameters[ParamOperation]
	name, okName := ev.QueryStringParameters[ParamDatabaseName]
	if !okOp || !okName {
		return Request{}, ErrNotString
	}

	req := Request{
		RequestID:    ev.RequestID,
		Operation:    Operation(op),
		DatabaseName: name,
	}
	if err := req.Validate(); err != nil {
		return Request{}, ErrInvalidEvent
	}
	return req, nil
}

// Validate checks that both fields are present and non-empty.
func (r Request) Validate() error {
	return validateStruct(r)
}
