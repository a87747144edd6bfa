package oauthx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openledger/oidcd/pkg/httpx"
)

// OAuth2 error codes per RFC 6749 / RFC 6750.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeInvalidScope            = "invalid_scope"
	CodeServerError             = "server_error"
	CodeInvalidToken            = "invalid_token"
	CodeConfigurationError      = "configuration_error"
)

// Error represents a standard OAuth2 error response per RFC 6749. It
// implements the error interface and knows how to write itself to an HTTP
// response, either as a JSON body or as RFC 6750 WWW-Authenticate challenge
// parameters.
type Error struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the OAuth2 error code (e.g., "invalid_request", "invalid_grant")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// New builds an Error with a custom description.
func New(status int, code, description string) *Error {
	return &Error{StatusCode: status, Code: code, Description: description}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteJSON writes this error to w as an OAuth2-compliant JSON response.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// WriteBearer writes this error as a 401 with a WWW-Authenticate header
// carrying error and error_description, per RFC 6750 section 3.
func (e *Error) WriteBearer(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer error=%q, error_description=%q`, e.Code, e.Description))
	httpx.NoCache(w)
	w.WriteHeader(http.StatusUnauthorized)
}

// Predefined wire errors.
var (
	// ErrInvalidRequest is returned when the request is missing a required
	// parameter or header, or is otherwise malformed.
	ErrInvalidRequest = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        CodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrInvalidClient is returned when client credentials are unknown,
	// malformed, or unverifiable.
	ErrInvalidClient = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        CodeInvalidClient,
		Description: "invalid client credentials",
	}

	// ErrInvalidGrant is returned when an authorization code or token is
	// unknown, expired, revoked, or already used.
	ErrInvalidGrant = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        CodeInvalidGrant,
		Description: "the grant is invalid, expired, or revoked",
	}

	// ErrUnauthorizedClient is returned when the requested scope exceeds the
	// client's granted scope set.
	ErrUnauthorizedClient = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        CodeUnauthorizedClient,
		Description: "requested scope exceeds the client grants",
	}

	// ErrUnsupportedGrantType is returned for valid but unimplemented grant types.
	ErrUnsupportedGrantType = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        CodeUnsupportedGrantType,
		Description: "grant type not supported",
	}

	// ErrUnsupportedResponseType is returned for response types other than "code".
	ErrUnsupportedResponseType = &Error{
		StatusCode:  http.StatusBadRequest,
		Code:        CodeUnsupportedResponseType,
		Description: "only the authorization code flow is supported",
	}

	// ErrInvalidToken is returned when a bearer token fails validation.
	ErrInvalidToken = &Error{
		StatusCode:  http.StatusUnauthorized,
		Code:        CodeInvalidToken,
		Description: "the access token is invalid or expired",
	}

	// ErrServerError is returned when an internal failure prevents handling
	// the request. Persistence failures are logged, never masked as protocol
	// errors beyond this generic code.
	ErrServerError = &Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        CodeServerError,
		Description: "internal server error",
	}

	// ErrConfiguration is returned for malformed salt or missing signing
	// configuration. Always fatal, never retried.
	ErrConfiguration = &Error{
		StatusCode:  http.StatusInternalServerError,
		Code:        CodeConfigurationError,
		Description: "server-side configuration error",
	}
)
