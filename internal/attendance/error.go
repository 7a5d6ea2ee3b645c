package attendance

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model (shared by csvcodec / backup / remotesync / qrpass) =====
type Code string

const (
	CodeValidation   Code = "VALIDATION"
	CodeStorage      Code = "STORAGE"
	CodeIntegrity    Code = "INTEGRITY"
	CodeConnectivity Code = "CONNECTIVITY"
	CodeDecryption   Code = "DECRYPTION"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInternal     Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func ErrValidation(msg string) *APIError { return &APIError{Code: CodeValidation, Message: msg} }
func ErrNotFound(msg string) *APIError   { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrIntegrity(msg string) *APIError  { return &APIError{Code: CodeIntegrity, Message: msg} }
func ErrDecryption(msg string) *APIError { return &APIError{Code: CodeDecryption, Message: msg} }

func ErrStorage(msg string, cause error) *APIError {
	return &APIError{Code: CodeStorage, Message: msg, Err: cause}
}

func ErrConnectivity(msg string, cause error) *APIError {
	return &APIError{Code: CodeConnectivity, Message: msg, Err: cause}
}

func ErrInternal(msg string, cause error) *APIError {
	return &APIError{Code: CodeInternal, Message: msg, Err: cause}
}

// CodeOf reports the code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

// IsCode reports whether err (or anything it wraps) is an APIError with code c.
func IsCode(err error, c Code) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == c
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeDecryption:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeIntegrity:
		return http.StatusUnprocessableEntity
	case CodeConnectivity:
		return http.StatusBadGateway
	case CodeStorage:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

type ErrorResponse struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorBody is the JSON body every handler returns on failure.
func ErrorBody(err error) ErrorResponse {
	var e ErrorResponse
	var api *APIError
	if errors.As(err, &api) {
		e.Error.Code, e.Error.Message = api.Code, api.Message
	} else {
		e.Error.Code, e.Error.Message = CodeInternal, err.Error()
	}
	return e
}
