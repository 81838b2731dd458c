package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the "error" member of every non-token failure the
// development backend writes.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON encodes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes {"error":{"code":...,"message":...}}.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, map[string]ErrorBody{"error": {Code: code, Message: message}})
}

// TokenResponse is a successful OAuth 2.0 token response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type tokenError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// Token writes a token response. Token responses are never cacheable.
func Token(w http.ResponseWriter, resp TokenResponse) {
	noStore(w)
	JSON(w, http.StatusOK, resp)
}

// TokenError writes an OAuth 2.0 error such as "invalid_request" with 400.
func TokenError(w http.ResponseWriter, code, description string) {
	noStore(w)
	JSON(w, http.StatusBadRequest, tokenError{Error: code, Description: description})
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
