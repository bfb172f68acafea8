package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// DefaultVisionEndpoint is the Google Vision annotate endpoint.
const DefaultVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// VisionEngine submits image bytes to the Google Vision text-detection
// endpoint and returns the first (whole-image) annotation.
type VisionEngine struct {
	APIKey   string
	Endpoint string // defaults to DefaultVisionEndpoint
	Client   *http.Client
}

type visionRequest struct {
	Requests []visionAnnotateRequest `json:"requests"`
}

type visionAnnotateRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string `json:"content"` // base64 image bytes
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionResponse struct {
	Responses []struct {
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// ExtractText sends the image at path for text detection. An empty
// annotation list yields the NoTextFound sentinel, not an error.
func (v *VisionEngine) ExtractText(ctx context.Context, path string) (string, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	payload := visionRequest{Requests: []visionAnnotateRequest{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(content)},
		Features: []visionFeature{{Type: "TEXT_DETECTION"}},
	}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode vision request: %w", err)
	}

	endpoint := v.Endpoint
	if endpoint == "" {
		endpoint = DefaultVisionEndpoint
	}
	if v.APIKey != "" {
		endpoint += "?key=" + v.APIKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vision service status %d: %s", resp.StatusCode, raw)
	}

	var decoded visionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode vision response: %w", err)
	}
	if len(decoded.Responses) == 0 {
		return NoTextFound, nil
	}
	r := decoded.Responses[0]
	if r.Error != nil {
		return "", fmt.Errorf("vision annotate error %d: %s", r.Error.Code, r.Error.Message)
	}
	if len(r.TextAnnotations) == 0 {
		return NoTextFound, nil
	}
	// first annotation covers the whole image
	return r.TextAnnotations[0].Description, nil
}
