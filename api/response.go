package api

import (
	"encoding/json"
	"net/http"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Response is the envelope of every API answer.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) respond(w http.ResponseWriter, code int, payload Response) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("mailqueue api encode response failed", "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (h *Handler) success(w http.ResponseWriter, code int, message string, data any) {
	h.respond(w, code, Response{Status: statusSuccess, Message: message, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, code int, message string) {
	h.respond(w, code, Response{Status: statusError, Message: message})
}
