package httpresponse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	errs "board_sync/internal/errors"
)

type Response[T any] struct {
	Status int `json:"Status"`
	Body   T   `json:"Body,omitempty"`
}

type ErrorResponse struct {
	ErrorDescription string `json:"ErrorDescription"`
}

const INTERNALERRORJSON = "{\"Status\": 500,\"Body\":{\"ErrorDescription\": \"internal server error\"}}"

const MALFORMEDJSON_errorDesc = "json unmarshalling error"

func WriteResponseWithStatus(w http.ResponseWriter, status int, body any) {
	jsonByte, err := marshalStatusJson(status, body)
	if err != nil {
		WriteInternalErrorResponse(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(jsonByte)
}

func WriteErrorWithStatus(w http.ResponseWriter, status int, desc string) {
	WriteResponseWithStatus(w, status, ErrorResponse{ErrorDescription: desc})
}

// WriteError maps the sentinel error kinds onto HTTP statuses.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithStatus(w, StatusOf(err), err.Error())
}

func StatusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidMove), errors.Is(err, errs.ErrPromotionUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrTurnViolation),
		errors.Is(err, errs.ErrSyncHalted),
		errors.Is(err, errs.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, errs.ErrRemoteRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrTransportFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func marshalStatusJson(status int, body any) ([]byte, error) {
	response := Response[any]{
		Status: status,
		Body:   body,
	}
	return json.Marshal(response)
}

func WriteInternalErrorResponse(w http.ResponseWriter) {
	// same as http.Error, only the Content-Type differs
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = fmt.Fprintln(w, INTERNALERRORJSON)
}
