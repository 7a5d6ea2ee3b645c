package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"prefect-attendance/internal/attendance"
)

// OutputFormatter prints command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
}

// Response is the JSON envelope for --format json.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success prints data. In text mode the text callback renders it.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Fail prints err in the configured format and returns it so cobra exits
// non-zero.
func (f *OutputFormatter) Fail(err error) error {
	if f.Format == "json" {
		re := &ResponseError{Code: string(attendance.CodeOf(err)), Message: err.Error()}
		var api *attendance.APIError
		if errors.As(err, &api) {
			re.Message = api.Message
		}
		_ = json.NewEncoder(f.Writer).Encode(Response{Status: "error", Error: re})
		return err
	}
	fmt.Fprintf(f.ErrWriter, "Error: %v\n", err)
	return err
}
