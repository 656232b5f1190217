// Package response renders every API payload in one envelope shape.
// Success bodies nest under "data", collections add a "meta" block, and
// failures carry a machine-readable code under "error".
package response

import (
	"encoding/json"
	"net/http"
)

type payload struct {
	Data any `json:"data"`
}

type listPayload struct {
	Data any      `json:"data"`
	Meta ListMeta `json:"meta"`
}

type failure struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ListMeta describes a bounded collection. Limit is only set on endpoints
// that accept one (job history); plain lists report just the count.
type ListMeta struct {
	Count int `json:"count"`
	Limit int `json:"limit,omitempty"`
}

// JSON writes data under the standard envelope with a 200.
func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, payload{Data: data})
}

// Created is JSON with a 201, for freshly created resources.
func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, payload{Data: data})
}

// Accepted is JSON with a 202, used when work continues after the
// response returns, such as starting a bulk job.
func Accepted(w http.ResponseWriter, data any) {
	write(w, http.StatusAccepted, payload{Data: data})
}

// Collection writes a list together with its meta block.
func Collection(w http.ResponseWriter, data any, meta ListMeta) {
	write(w, http.StatusOK, listPayload{Data: data, Meta: meta})
}

// Error writes the error envelope. code is the stable identifier
// clients branch on; message is for humans and may change freely.
func Error(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, failure{Error: apiError{Code: code, Message: message, Details: details}})
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
