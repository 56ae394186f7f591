package api

import (
	"errors"
	"net/http"

	"github.com/finchly/tenancy/pkg/httputil"
	"github.com/finchly/tenancy/pkg/observability"
	"github.com/finchly/tenancy/pkg/orgs"
)

// writeServiceError maps the orgs error taxonomy to HTTP statuses. This
// is the single translation point: handlers never pick status codes for
// service errors themselves.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *orgs.ValidationError
	if errors.As(err, &ve) {
		httputil.WriteDetailedError(w, http.StatusBadRequest, ve.Error(), map[string]string{
			ve.Field: ve.Reason,
		})
		return
	}

	switch {
	case errors.Is(err, orgs.ErrUnauthenticated):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, orgs.ErrForbidden):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, orgs.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, orgs.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, orgs.ErrInvariant), errors.Is(err, orgs.ErrExpired):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("unhandled service error")
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}
