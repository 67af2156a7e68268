package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// writeErrorAs answers in the caller's encoding.
func writeErrorAs(w http.ResponseWriter, asProto bool, status int, code, msg string) {
	if !asProto {
		writeError(w, status, code, msg)
		return
	}
	st, err := errorToStruct(code, msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	writeProto(w, status, st)
}

func writeAdmission(w http.ResponseWriter, asProto bool, status int, resp types.AdmissionResponse) {
	if !asProto {
		writeJSON(w, status, resp)
		return
	}
	st, err := admissionResponseToStruct(resp)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	writeProto(w, status, st)
}
