// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fieldtrack/tracklog/export"
	"github.com/fieldtrack/tracklog/ingest"
)

// ErrorResponse is a struct for error responses that also implements the error interface.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	OK         bool   `json:"ok"`
	Message    string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

var (
	// ErrUnauthorized is returned when the shared token does not match.
	ErrUnauthorized = &ErrorResponse{StatusCode: http.StatusUnauthorized, Message: "unauthorized"}

	// ErrInternalError is returned when an internal error occurs.
	ErrInternalError = &ErrorResponse{StatusCode: http.StatusInternalServerError, Message: "internal error"}
)

func mapIngestError(err error) error {
	if ingest.ErrMalformedInput.Has(err) {
		return &ErrorResponse{StatusCode: http.StatusBadRequest, Message: err.Error()}
	}
	return err
}

func mapExportError(err error) error {
	switch {
	case export.ErrBadWindow.Has(err):
		return &ErrorResponse{StatusCode: http.StatusBadRequest, Message: err.Error()}
	case export.ErrUnknownDevice.Has(err):
		return &ErrorResponse{StatusCode: http.StatusNotFound, Message: err.Error()}
	}
	return err
}

func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	s.log.Warn("error during API request", zap.Error(err))

	var e *ErrorResponse
	if !errors.As(err, &e) {
		e = ErrInternalError
	}

	s.jsonResponse(w, e.StatusCode, e)
}
