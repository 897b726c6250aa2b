package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/phessophissy/POSVault/internal/fault"
)

var (
	errInvalidRequest = fault.New("InvalidRequest", fault.KindValidation)
	errInvalidID      = fault.New("InvalidID", fault.KindValidation)
	errTooLarge       = fault.New("RequestTooLarge", fault.KindValidation)
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch fault.KindOf(err) {
	case fault.KindAuthorization:
		return http.StatusForbidden
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindStateConflict:
		return http.StatusConflict
	case fault.KindResourceAbsence:
		return http.StatusNotFound
	case fault.KindPolicyGate:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal", Kind: fault.KindInternal.String()})
		return
	}
	writeJSON(w, statusOf(err), errorResponse{Error: fe.Code, Kind: fe.Kind.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errTooLarge
		}
		return errInvalidRequest
	}
	return nil
}

func idParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errInvalidID
	}
	return id, nil
}
