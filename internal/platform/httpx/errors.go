package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// StatusMapping pairs a sentinel error with the HTTP status it maps to.
type StatusMapping struct {
	Err    error
	Status int
	Title  string
}

// RespondError renders err as an RFC7807 response. Mappings are checked in
// order; unmatched errors become 500 with the detail withheld.
func RespondError(w http.ResponseWriter, err error, mappings ...StatusMapping) {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", vErrs.Error())
		return
	}
	if errors.Is(err, ErrBadRequest) {
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			Problem(w, m.Status, m.Title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
