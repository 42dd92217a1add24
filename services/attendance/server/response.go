package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"auattend-backend/lib/scrapers/adamas"
	"auattend-backend/services/keystore"
)

// errorBody is the failure envelope every endpoint shares. The code is
// a stable string the mobile client switches on.
type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
	// populated on date_not_found so the client can offer alternatives
	AvailableDates []adamas.AvailableDate `json:"availableDates,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error: errorDetail{Code: "bad_request", Message: message},
	})
}

// handleError maps scrape and store failures onto stable error codes.
func handleError(w http.ResponseWriter, err error) {
	var noTable *adamas.NoTableError
	var noDate *adamas.DateNotFoundError

	switch {
	case errors.Is(err, adamas.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: errorDetail{
				Code:    "invalid_credentials",
				Message: "the portal rejected the registration number or password",
			},
		})
	case errors.Is(err, adamas.ErrCsrfMissing):
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: errorDetail{
				Code:    "csrf_missing",
				Message: "could not find the csrf token on the portal login page",
			},
		})
	case errors.Is(err, adamas.ErrTransport):
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: errorDetail{
				Code:    "transport_error",
				Message: "could not reach the portal",
			},
		})
	case errors.As(err, &noTable):
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: errorDetail{
				Code:    "no_table_found",
				Message: noTable.Error(),
			},
		})
	case errors.As(err, &noDate):
		writeJSON(w, http.StatusNotFound, errorBody{
			Error: errorDetail{
				Code:    "date_not_found",
				Message: noDate.Error(),
			},
			AvailableDates: noDate.Available,
		})
	case errors.Is(err, keystore.ErrEncryptionKey):
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: errorDetail{
				Code:    "encryption_key_invalid",
				Message: "credential encryption is misconfigured on the server",
			},
		})
	case errors.Is(err, keystore.ErrNoCredentials):
		writeJSON(w, http.StatusNotFound, errorBody{
			Error: errorDetail{
				Code:    "no_credentials",
				Message: "no credentials saved for this user",
			},
		})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: errorDetail{
				Code:    "internal",
				Message: "an unexpected error occurred",
			},
		})
	}
}
