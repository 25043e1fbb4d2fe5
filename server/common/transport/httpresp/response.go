package httpresp

import (
	"errors"
	"net/http"

	"workhub/server/common/apperr"
)

const (
	ErrUnauthorized       = "unauthorized"
	ErrInvalidCredentials = "invalid credentials"
	ErrMissingBearerToken = "bearer token is required"
	ErrInvalidToken       = "invalid token"
	ErrTokenExpired       = "token expired"
	ErrSessionInvalid     = "session is no longer valid, please log in again"
	ErrNoActiveCompany    = "no active company"
	ErrForbidden          = "forbidden"
	ErrInsufficientRole   = "insufficient permissions"
	ErrInternal           = "internal server error"
)

// Machine readable codes; the web client keys its refresh/re-login flow off these.
const (
	CodeValidation      = "validation_error"
	CodeMissingToken    = "missing_token"
	CodeInvalidToken    = "invalid_token"
	CodeTokenExpired    = "token_expired"
	CodeSessionInvalid  = "session_invalid"
	CodeForbidden       = "forbidden"
	CodeNoActiveCompany = "no_active_company"
	CodeNotFound        = "not_found"
	CodeInternal        = "internal_error"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewCodedErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: message, Code: code}
}

func NewOKResponse() OKResponse {
	return OKResponse{OK: true}
}

func NewMessageResponse(message string) MessageResponse {
	return MessageResponse{Message: message}
}

func NewCountResponse(count int64) CountResponse {
	return CountResponse{Count: count}
}

// StatusFor maps an error kind to its HTTP status and response body. Errors
// that carry no kind are treated as infrastructure failures and their text is
// not echoed to the client.
func StatusFor(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest, NewCodedErrorResponse(CodeValidation, err.Error())
	case errors.Is(err, apperr.ErrTokenExpired):
		return http.StatusUnauthorized, NewCodedErrorResponse(CodeTokenExpired, ErrTokenExpired)
	case errors.Is(err, apperr.ErrAuthentication):
		return http.StatusUnauthorized, NewCodedErrorResponse(CodeSessionInvalid, err.Error())
	case errors.Is(err, apperr.ErrAuthorization):
		return http.StatusForbidden, NewCodedErrorResponse(CodeForbidden, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, NewCodedErrorResponse(CodeNotFound, err.Error())
	default:
		return http.StatusInternalServerError, NewCodedErrorResponse(CodeInternal, ErrInternal)
	}
}
