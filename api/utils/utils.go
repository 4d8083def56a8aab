package utils

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"
)

// ErrorResponse is the error envelope of every http error:
// {"error": {"kind": ..., "message": ...}}.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func WriteResponse(w http.ResponseWriter, r *http.Request, status int, response any, logger hclog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("write response error", "url", r.URL, "status", status, "err", err)
	}
}

func WriteErrorResponse(
	w http.ResponseWriter, r *http.Request, status int, kind string, err error, logger hclog.Logger,
) {
	logger.Info("request error", "url", r.URL, "status", status, "err", err)

	WriteResponse(w, r, status, ErrorResponse{Error: ErrorBody{
		Kind:    kind,
		Message: err.Error(),
	}}, logger)
}

func DecodeModel[T any](w http.ResponseWriter, r *http.Request, logger hclog.Logger) (T, bool) {
	var requestBody T

	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		WriteErrorResponse(w, r, http.StatusBadRequest, "Client",
			fmt.Errorf("bad request: %w", err), logger)

		return requestBody, false
	}

	return requestBody, true
}
