package handlers_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/emissary/pkg/handlers"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name   string
		status int
		data   any
	}{
		{"200 with map", http.StatusOK, map[string]string{"key": "value"}},
		{"201 with struct", http.StatusCreated, struct{ ID int }{ID: 42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handlers.RespondJSON(rec, tt.status, tt.data)

			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.status {
				t.Errorf("status: got %d, want %d", res.StatusCode, tt.status)
			}
			if ct := res.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("content-type: got %s", ct)
			}

			var parsed map[string]any
			if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	handlers.RespondError(rec, logger, http.StatusBadRequest, errors.New("invalid input"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}

	var parsed map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if parsed["error"] != "invalid input" {
		t.Errorf("error: got %s, want invalid input", parsed["error"])
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Text string `json:"text"`
	}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"valid", `{"text":"invoice"}`, "invoice", false},
		{"unknown field", `{"text":"x","extra":1}`, "", true},
		{"malformed", `{"text":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.in))
			got, err := handlers.DecodeJSON[body](r)
			if tt.wantErr {
				if !errors.Is(err, handlers.ErrInvalidBody) {
					t.Errorf("err = %v, want ErrInvalidBody", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON: %v", err)
			}
			if got.Text != tt.want {
				t.Errorf("Text = %q", got.Text)
			}
		})
	}
}
