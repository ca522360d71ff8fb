package pipeline

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable terminal outcome of a pipeline run.
type Kind string

const (
	KindInvalidMode        Kind = "invalid_mode"
	KindMissingInput       Kind = "missing_input"
	KindSchemaRequired     Kind = "schema_required"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindPayloadUnparseable Kind = "payload_unparseable"
	KindEmptyResult        Kind = "empty_result"
	KindUpstreamCallFailed Kind = "upstream_call_failed"
	KindContentBlocked     Kind = "content_blocked"
	KindDependency         Kind = "dependency_unavailable"
)

var userMessages = map[Kind]string{
	KindInvalidMode:        "Unsupported mode. Use one of: generate, optimize, validate, explain, format.",
	KindMissingInput:       "This mode needs input: a natural-language prompt for generate, or SQL text for the other modes.",
	KindSchemaRequired:     "Save your database schema before generating SQL. Generation without a schema is refused.",
	KindQuotaExceeded:      "Daily usage quota exceeded. Try again tomorrow or raise your limit.",
	KindPayloadUnparseable: "The model returned a response that could not be interpreted. Please try again.",
	KindEmptyResult:        "The request could not be satisfied from your schema.",
	KindUpstreamCallFailed: "The language model service is unavailable. Please try again shortly.",
	KindContentBlocked:     "The request was blocked by a content policy.",
	KindDependency:         "A required service is temporarily unavailable. Please try again shortly.",
}

// Error is a classified pipeline failure. Message is for logs; clients only
// ever see UserMessage.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the fixed text shown to end users for this kind.
func (e *Error) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return "Internal error."
}

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of a pipeline error, or "" for anything else.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
