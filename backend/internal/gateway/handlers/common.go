package handlers

import (
	"net/http"

	"lms_core/backend/internal/policy"
)

// principal returns the caller placed in the context by the auth middleware.
// A missing principal yields the zero value, which every policy check rejects.
func principal(r *http.Request) policy.Principal {
	p, _ := policy.FromContext(r.Context())
	return p
}
