package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Run("sets content-type and status", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]string{"state": "running"})

		if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q; want application/json; charset=utf-8", got)
		}
		if w.Code != http.StatusOK {
			t.Errorf("Code = %d; want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("encodes body as JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusCreated, map[string]float64{"temperature": 21.5})

		var got map[string]float64
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("body is not valid JSON: %v", err)
		}
		if got["temperature"] != 21.5 {
			t.Errorf("body[temperature] = %v; want 21.5", got["temperature"])
		}
	})
}

func TestWriteText(t *testing.T) {
	w := httptest.NewRecorder()
	WriteText(w, http.StatusNotFound, "Whoopsie")

	if got := w.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q; want text/plain; charset=utf-8", got)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("Code = %d; want %d", w.Code, http.StatusNotFound)
	}
	if got := w.Body.String(); got != "Whoopsie" {
		t.Errorf("body = %q; want Whoopsie", got)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	status := http.StatusBadRequest
	msg := "invalid limit"
	WriteError(w, status, msg)

	if w.Code != status {
		t.Errorf("Code = %d; want %d", w.Code, status)
	}
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if got["error"] != http.StatusText(status) {
		t.Errorf("error = %q; want %q", got["error"], http.StatusText(status))
	}
	if got["message"] != msg {
		t.Errorf("message = %q; want %q", got["message"], msg)
	}
}

func TestHex(t *testing.T) {
	if got := Hex4(0x09C7); got != "09C7" {
		t.Errorf("Hex4(0x09C7) = %q; want 09C7", got)
	}
	if got := Hex4(0xFFFF); got != "FFFF" {
		t.Errorf("Hex4(0xFFFF) = %q; want FFFF", got)
	}
	if got := BytesToHex([]byte{0x00, 0x1F, 0xA0}); got != "001FA0" {
		t.Errorf("BytesToHex = %q; want 001FA0", got)
	}
	if got := BytesToHex(nil); got != "" {
		t.Errorf("BytesToHex(nil) = %q; want empty", got)
	}
}
