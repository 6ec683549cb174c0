// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"errors"
	"net/http"

	"github.com/remiblancher/crl-engine/internal/api/dto"
	"github.com/remiblancher/crl-engine/internal/crl"
	"github.com/remiblancher/crl-engine/internal/store"
)

// Error codes for API responses.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeValidation     = "VALIDATION_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
	CodeCRLNotFound    = "CRL_NOT_FOUND"
	CodeCANotFound     = "CA_NOT_FOUND"
	CodeCADisabled     = "CA_DISABLED"
	CodePointNotFound  = "POINT_NOT_FOUND"
	CodeUnsignedCRL    = "UNSIGNED_CRL"
	CodeSigningError   = "SIGNING_ERROR"
	CodeConfiguration  = "CONFIGURATION_ERROR"
)

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	switch {
	case errors.Is(err, crl.ErrCRLNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, &dto.APIError{
			Code:    CodeCRLNotFound,
			Message: err.Error(),
		}
	case errors.Is(err, crl.ErrCANotFound):
		return http.StatusNotFound, &dto.APIError{
			Code:    CodeCANotFound,
			Message: err.Error(),
		}
	case errors.Is(err, crl.ErrPointNotFound):
		return http.StatusNotFound, &dto.APIError{
			Code:    CodePointNotFound,
			Message: err.Error(),
		}
	case errors.Is(err, crl.ErrCADisabled):
		return http.StatusConflict, &dto.APIError{
			Code:    CodeCADisabled,
			Message: err.Error(),
		}
	case errors.Is(err, crl.ErrUnsigned):
		return http.StatusConflict, &dto.APIError{
			Code:    CodeUnsignedCRL,
			Message: err.Error(),
		}
	}

	var cfgErr *crl.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeConfiguration,
			Message: cfgErr.Error(),
			Details: map[string]string{"field": cfgErr.Field},
		}
	}

	var sigErr *crl.SigningError
	if errors.As(err, &sigErr) {
		return http.StatusInternalServerError, &dto.APIError{
			Code:    CodeSigningError,
			Message: sigErr.Error(),
			Details: map[string]string{"ca": sigErr.CAID},
		}
	}

	return http.StatusInternalServerError, &dto.APIError{
		Code:    CodeInternal,
		Message: "An internal error occurred",
	}
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}

// NewNotFound creates a not found error.
func NewNotFound(resource, id string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeNotFound,
		Message: resource + " not found",
		Details: map[string]string{"id": id},
	}
}
