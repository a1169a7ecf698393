// Package server exposes the retrieval core as MCP tools over stdio.
package server

import (
	"errors"
	"fmt"

	ricerrors "github.com/havenops/ric/internal/errors"
)

// JSON-RPC error codes. The -320xx range carries domain errors.
const (
	ErrCodeInvalidParams  = -32602
	ErrCodeMethodNotFound = -32601
	ErrCodeInternalError  = -32603

	ErrCodeNotFound          = -32001
	ErrCodeAccessDenied      = -32002
	ErrCodeTimeout           = -32003
	ErrCodeConflict          = -32004
	ErrCodeUnavailable       = -32005
	ErrCodeDimensionMismatch = -32006
)

// RPCError is a protocol error with a JSON-RPC code.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// MapError converts an internal error into a protocol error by kind.
func MapError(err error) *RPCError {
	if err == nil {
		return nil
	}

	message := err.Error()
	var ricErr *ricerrors.Error
	if errors.As(err, &ricErr) {
		message = ricErr.Message
		if ricErr.Suggestion != "" {
			message = fmt.Sprintf("%s %s", ricErr.Message, ricErr.Suggestion)
		}
	}

	switch ricerrors.KindOf(err) {
	case ricerrors.KindBadInput:
		return &RPCError{Code: ErrCodeInvalidParams, Message: message}
	case ricerrors.KindAccessDenied:
		return &RPCError{Code: ErrCodeAccessDenied, Message: message}
	case ricerrors.KindNotFound:
		return &RPCError{Code: ErrCodeNotFound, Message: message}
	case ricerrors.KindConflict:
		return &RPCError{Code: ErrCodeConflict, Message: message}
	case ricerrors.KindUnavailable:
		return &RPCError{Code: ErrCodeUnavailable, Message: message}
	case ricerrors.KindDimensionMismatch:
		return &RPCError{Code: ErrCodeDimensionMismatch, Message: message}
	case ricerrors.KindTimeout, ricerrors.KindCancelled:
		return &RPCError{Code: ErrCodeTimeout, Message: message}
	default:
		return &RPCError{Code: ErrCodeInternalError, Message: message}
	}
}

// NewInvalidParamsError reports a bad tool argument.
func NewInvalidParamsError(msg string) *RPCError {
	return &RPCError{Code: ErrCodeInvalidParams, Message: msg}
}
