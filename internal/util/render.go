package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBody bounds every JSON request body.
const maxBody = 1 << 20

// View is the envelope page routes render.
type View struct {
	Title string `json:"title"`
	Flash string `json:"flash,omitempty"`
	User  any    `json:"user,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func Render(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, status int, msg string) {
	Render(w, status, map[string]string{"error": msg})
}

// Decode reads one JSON object from r into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
