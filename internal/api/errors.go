package api

import (
	"errors"
	"net/http"

	"dynaquery/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var accessDenied *domain.AccessDeniedError
	var validation *domain.ValidationError
	var generation *domain.GenerationError
	var delivery *domain.DeliveryError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &accessDenied):
		return http.StatusForbidden
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &generation), errors.As(err, &delivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
