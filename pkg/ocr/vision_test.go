package ocr

import (
	"context"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/goccy/go-json"
)

func fixtureImage(t *testing.T) string {
	t.Helper()
	img := imaging.New(60, 30, color.NRGBA{0, 0, 0, 255})
	path := filepath.Join(t.TempDir(), "console.png")
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save fixture: %v", err)
	}
	return path
}

func TestVisionExtractTextFirstAnnotation(t *testing.T) {
	var gotBody visionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		_, _ = w.Write([]byte(`{"responses":[{"textAnnotations":[{"description":"TIME 25:30\nDIST 2.93"},{"description":"TIME"}]}]}`))
	}))
	defer srv.Close()

	eng := &VisionEngine{APIKey: "k", Endpoint: srv.URL, Client: srv.Client()}
	text, err := eng.ExtractText(context.Background(), fixtureImage(t))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "TIME 25:30\nDIST 2.93" {
		t.Fatalf("expected whole-image annotation, got %q", text)
	}
	if len(gotBody.Requests) != 1 || gotBody.Requests[0].Image.Content == "" {
		t.Fatalf("request did not carry image content: %+v", gotBody)
	}
	if gotBody.Requests[0].Features[0].Type != "TEXT_DETECTION" {
		t.Fatalf("expected TEXT_DETECTION feature, got %+v", gotBody.Requests[0].Features)
	}
}

func TestVisionExtractTextNoAnnotations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responses":[{}]}`))
	}))
	defer srv.Close()

	eng := &VisionEngine{Endpoint: srv.URL, Client: srv.Client()}
	text, err := eng.ExtractText(context.Background(), fixtureImage(t))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != NoTextFound {
		t.Fatalf("expected sentinel %q got %q", NoTextFound, text)
	}
}

func TestVisionExtractTextAnnotateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responses":[{"error":{"code":7,"message":"permission denied"}}]}`))
	}))
	defer srv.Close()

	eng := &VisionEngine{Endpoint: srv.URL, Client: srv.Client()}
	_, err := eng.ExtractText(context.Background(), fixtureImage(t))
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected annotate error surfaced, got %v", err)
	}
}

func TestVisionExtractTextHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	eng := &VisionEngine{Endpoint: srv.URL, Client: srv.Client()}
	_, err := eng.ExtractText(context.Background(), fixtureImage(t))
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected body surfaced in error, got %v", err)
	}
}
