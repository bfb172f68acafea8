package strava

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/agonajredini/Treadmill-to-Strava/models"
	"github.com/agonajredini/Treadmill-to-Strava/pkg/envfile"
)

// exifFixture writes a minimal EXIF (TIFF) file whose DateTimeOriginal is
// "2024:01:15 07:30:00". goexif accepts raw TIFF bytes, so no JPEG wrapper
// is needed.
func exifFixture(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	le := binary.LittleEndian
	w := func(v interface{}) { _ = binary.Write(&buf, le, v) }

	// TIFF header
	buf.WriteString("II")
	w(uint16(42))
	w(uint32(8)) // IFD0 offset

	// IFD0: single entry pointing at the Exif sub-IFD
	w(uint16(1))
	w(uint16(0x8769)) // ExifIFDPointer
	w(uint16(4))      // LONG
	w(uint32(1))
	w(uint32(26)) // Exif IFD offset: 8 header + 18 IFD0
	w(uint32(0))  // next IFD

	// Exif IFD: DateTimeOriginal
	datetime := "2024:01:15 07:30:00\x00"
	w(uint16(1))
	w(uint16(0x9003)) // DateTimeOriginal
	w(uint16(2))      // ASCII
	w(uint32(len(datetime)))
	w(uint32(44)) // value offset: 26 + 18
	w(uint32(0))  // next IFD
	buf.WriteString(datetime)

	path := filepath.Join(t.TempDir(), "treadmill.jpg")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func seedStore(t *testing.T, access, refresh string) *envfile.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	content := "STRAVA_CLIENT_ID=111\nSTRAVA_CLIENT_SECRET=sec\n"
	if access != "" {
		content += "STRAVA_ACCESS_TOKEN=" + access + "\n"
	}
	if refresh != "" {
		content += "STRAVA_REFRESH_TOKEN=" + refresh + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return envfile.New(path)
}

func testSession(t *testing.T, store *envfile.Store, tokenURL string) *Session {
	t.Helper()
	sess, err := NewSession(store, zerolog.Nop())
	require.NoError(t, err)
	sess.TokenURL = tokenURL
	sess.OpenBrowser = func(string) error { return nil }
	return sess
}

func TestUploadAfterSingleRefreshOn401(t *testing.T) {
	var athleteHits, activityHits int32
	params := models.ParsedActivity{
		Time: "05:30", Distance: "2.93",
		ImagePath: exifFixture(t),
		Title:     "Treadmill Run", Description: "Uploaded from TreadmilltoStrava",
	}

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/athlete":
			n := atomic.AddInt32(&athleteHits, 1)
			if r.Header.Get("Authorization") != "Bearer fresh-access" && n == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/activities":
			atomic.AddInt32(&activityHits, 1)
			require.NoError(t, r.ParseForm())
			require.Equal(t, "Bearer fresh-access", r.Header.Get("Authorization"))
			require.Equal(t, "Treadmill Run", r.PostFormValue("name"))
			require.Equal(t, "Run", r.PostFormValue("type"))
			require.Equal(t, "2024-01-15T07:30:00Z", r.PostFormValue("start_date_local"))
			require.Equal(t, "330", r.PostFormValue("elapsed_time"))
			require.Equal(t, "2930", r.PostFormValue("distance"))
			require.Equal(t, "Uploaded from TreadmilltoStrava", r.PostFormValue("description"))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 4242}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer api.Close()

	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		require.Equal(t, "old-refresh", r.PostFormValue("refresh_token"))
		_, _ = w.Write([]byte(`{"access_token":"fresh-access","refresh_token":"fresh-refresh"}`))
	}))
	defer tokens.Close()

	store := seedStore(t, "stale-access", "old-refresh")
	sess := testSession(t, store, tokens.URL)
	client := NewClient(sess, zerolog.Nop())
	client.BaseURL = api.URL

	res, err := client.UploadActivity(context.Background(), params)
	require.NoError(t, err)
	require.EqualValues(t, 4242, res.ActivityID)
	require.Equal(t, "2024-01-15T07:30:00Z", res.StartDateLocal)

	// exactly one retried probe, then the upload
	require.EqualValues(t, 2, atomic.LoadInt32(&athleteHits))
	require.EqualValues(t, 1, atomic.LoadInt32(&activityHits))

	// both tokens replaced in the credential file
	vals, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "fresh-access", vals[KeyAccessToken])
	require.Equal(t, "fresh-refresh", vals[KeyRefreshToken])
}

func TestUploadAbortsAfterSecondUnauthorized(t *testing.T) {
	var athleteHits, activityHits int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/athlete":
			atomic.AddInt32(&athleteHits, 1)
			w.WriteHeader(http.StatusUnauthorized)
		case "/activities":
			atomic.AddInt32(&activityHits, 1)
		}
	}))
	defer api.Close()
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2"}`))
	}))
	defer tokens.Close()

	sess := testSession(t, seedStore(t, "a1", "r1"), tokens.URL)
	client := NewClient(sess, zerolog.Nop())
	client.BaseURL = api.URL

	_, err := client.UploadActivity(context.Background(), models.ParsedActivity{
		Time: "05:30", Distance: "2.93", ImagePath: exifFixture(t),
	})
	require.Error(t, err)
	// no third probe, no upload attempt
	require.EqualValues(t, 2, atomic.LoadInt32(&athleteHits))
	require.EqualValues(t, 0, atomic.LoadInt32(&activityHits))
}

func TestUploadRefreshFailureIsFatal(t *testing.T) {
	var athleteHits int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&athleteHits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid refresh token"}`, http.StatusBadRequest)
	}))
	defer tokens.Close()

	sess := testSession(t, seedStore(t, "a1", "r1"), tokens.URL)
	client := NewClient(sess, zerolog.Nop())
	client.BaseURL = api.URL

	_, err := client.UploadActivity(context.Background(), models.ParsedActivity{
		Time: "05:30", Distance: "2.93", ImagePath: exifFixture(t),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid refresh token")
	require.EqualValues(t, 1, atomic.LoadInt32(&athleteHits))
}

func TestUploadNon201SurfacesBody(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/athlete" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Validation Error","errors":[{"field":"distance"}]}`))
	}))
	defer api.Close()

	sess := testSession(t, seedStore(t, "a1", "r1"), "http://unused.invalid")
	client := NewClient(sess, zerolog.Nop())
	client.BaseURL = api.URL

	_, err := client.UploadActivity(context.Background(), models.ParsedActivity{
		Time: "05:30", Distance: "2.93", ImagePath: exifFixture(t),
	})
	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, http.StatusUnprocessableEntity, ue.Status)
	require.Equal(t, `{"message":"Validation Error","errors":[{"field":"distance"}]}`, ue.Body)
}

func TestUploadMissingMetadataAborts(t *testing.T) {
	var activityHits int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/athlete" {
			w.WriteHeader(http.StatusOK)
			return
		}
		atomic.AddInt32(&activityHits, 1)
	}))
	defer api.Close()

	// plain file, no EXIF
	path := filepath.Join(t.TempDir(), "noexif.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not really a jpeg"), 0o600))

	sess := testSession(t, seedStore(t, "a1", "r1"), "http://unused.invalid")
	client := NewClient(sess, zerolog.Nop())
	client.BaseURL = api.URL

	_, err := client.UploadActivity(context.Background(), models.ParsedActivity{
		Time: "05:30", Distance: "2.93", ImagePath: path,
	})
	require.Error(t, err)
	require.EqualValues(t, 0, atomic.LoadInt32(&activityHits))
}

func TestUploadErrorType(t *testing.T) {
	err := error(&UploadError{Status: 500, Body: "boom"})
	var ue *UploadError
	require.True(t, errors.As(err, &ue))
	require.Contains(t, err.Error(), "500")
	require.Contains(t, err.Error(), "boom")
}
