package strava

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/agonajredini/Treadmill-to-Strava/models"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/exifmeta"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/ocr"
)

// Client uploads manually-entered activities. BaseURL defaults to the
// production API; override for tests.
type Client struct {
	BaseURL string
	Session *Session

	http *http.Client
	log  zerolog.Logger
}

// NewClient wires a Client to an authorized (or authorizable) session.
func NewClient(session *Session, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL: DefaultAPIBaseURL,
		Session: session,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger,
	}
}

// UploadResult carries the remote id of the created activity.
type UploadResult struct {
	ActivityID     int64
	StartDateLocal string
}

// UploadError is a non-201 response from the activity endpoint, body kept
// verbatim so the caller can show it to the user unchanged.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("activity upload failed: status %d: %s", e.Status, e.Body)
}

// UploadActivity creates a manual Run activity from act. Sequence: ensure a
// token exists, probe the athlete endpoint (one refresh on 401), read the
// photo's capture time unless act already carries one, post the form.
// Resubmitting the same activity creates a duplicate remotely — there is no
// idempotency key on this endpoint.
func (c *Client) UploadActivity(ctx context.Context, act models.ParsedActivity) (*UploadResult, error) {
	if _, err := c.Session.Token(ctx); err != nil {
		return nil, fmt.Errorf("obtain access token: %w", err)
	}
	if err := c.ensureAuthorized(ctx); err != nil {
		return nil, err
	}

	startDate := act.CaptureTime
	if startDate == "" {
		var err error
		startDate, err = exifmeta.CaptureTimeStravaLocal(act.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("extract capture datetime: %w", err)
		}
	}
	elapsed, err := ocr.ConvertTimeToSeconds(act.Time)
	if err != nil {
		return nil, err
	}
	meters, err := ocr.DistanceMeters(act.Distance)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("name", act.Title)
	form.Set("type", "Run")
	form.Set("start_date_local", startDate)
	form.Set("elapsed_time", strconv.Itoa(elapsed))
	form.Set("distance", strconv.FormatFloat(meters, 'f', -1, 64))
	form.Set("description", act.Description)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/activities", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.Session.AccessToken())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post activity: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read activity response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, &UploadError{Status: resp.StatusCode, Body: string(body)}
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		c.log.Warn().Err(err).Msg("created activity response not decodable, id unknown")
	}
	c.log.Info().Int64("activity_id", created.ID).Str("start", startDate).Msg("activity uploaded")
	return &UploadResult{ActivityID: created.ID, StartDateLocal: startDate}, nil
}

// ensureAuthorized probes the athlete endpoint. A 401 triggers exactly one
// refresh and one re-probe; any other failure, or a second non-200, aborts.
func (c *Client) ensureAuthorized(ctx context.Context) error {
	status, body, err := c.probe(ctx)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized:
		c.log.Info().Msg("access token rejected, refreshing")
		if err := c.Session.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh after 401: %w", err)
		}
		status, body, err = c.probe(ctx)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("authentication failed after token refresh: status %d: %s", status, body)
		}
		return nil
	default:
		return fmt.Errorf("athlete probe status %d: %s", status, body)
	}
}

func (c *Client) probe(ctx context.Context) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/athlete", nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.Session.AccessToken())
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("athlete probe: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), nil
}
