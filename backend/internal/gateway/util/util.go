package util

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error kinds reported in the "error" field of failed responses
const (
	ErrValidation   = "ValidationError"
	ErrUnauthorized = "UnauthorizedError"
	ErrForbidden    = "ForbiddenError"
	ErrNotFound     = "NotFoundError"
	ErrConflict     = "ConflictError"
	ErrUnavailable  = "UnavailableError"
	ErrTimeout      = "TimeoutError"
	ErrInternal     = "InternalError"
)

// JSONResponse structure for successful responses
type JSONResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// JSONError structure for error responses
type JSONError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// WriteJSON wraps payload in a success envelope
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	WriteJSONMessage(w, status, payload, "")
}

// WriteJSONMessage wraps payload in a success envelope with a message
func WriteJSONMessage(w http.ResponseWriter, status int, payload interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := JSONResponse{Success: true, Data: payload, Message: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

// WriteJSONError is a helper to write standardized error JSON responses
func WriteJSONError(w http.ResponseWriter, status int, kind, message string) {
	log.Printf("HTTP Error %d: %s", status, message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errorResponse := JSONError{
		Success: false,
		Message: message,
		Error:   kind,
	}

	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		log.Printf("Error writing JSON error response: %v", err)
	}
}

// HandleGRPCError translates gRPC status errors to HTTP responses
func HandleGRPCError(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		WriteJSONError(w, http.StatusInternalServerError, ErrInternal, "Internal server error")
		return
	}

	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		WriteJSONError(w, http.StatusBadRequest, ErrValidation, st.Message())
	case codes.Unauthenticated:
		WriteJSONError(w, http.StatusUnauthorized, ErrUnauthorized, st.Message())
	case codes.PermissionDenied:
		WriteJSONError(w, http.StatusForbidden, ErrForbidden, st.Message())
	case codes.NotFound:
		WriteJSONError(w, http.StatusNotFound, ErrNotFound, st.Message())
	case codes.AlreadyExists, codes.Aborted:
		WriteJSONError(w, http.StatusConflict, ErrConflict, st.Message())
	case codes.Unavailable:
		WriteJSONError(w, http.StatusServiceUnavailable, ErrUnavailable, "Service Unavailable: a backing store is unreachable.")
	case codes.DeadlineExceeded, codes.Canceled:
		WriteJSONError(w, http.StatusGatewayTimeout, ErrTimeout, "Service Timeout: the request took too long to complete.")
	default:
		WriteJSONError(w, http.StatusInternalServerError, ErrInternal, st.Message())
	}
}

// MaxBodyBytes caps the size of a JSON request body
const MaxBodyBytes = 1 << 20

// DecodeJSON reads the request body into dst; a malformed or oversized body
// is a validation error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return status.Error(codes.InvalidArgument, "request body is required")
	}
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return status.Errorf(codes.InvalidArgument, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

// ExtractToken extracts the token from the Authorization header (Bearer <token>)
func ExtractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}
