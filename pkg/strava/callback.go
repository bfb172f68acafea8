package strava

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CallbackServer obtains the authorization callback by serving the redirect
// URI locally: it listens on Addr, waits for the browser to hit Path with
// the code, and returns the full request URL. Use together with a redirect
// URI of http://<Addr><Path> registered on the Strava application.
type CallbackServer struct {
	Addr string // e.g. "127.0.0.1:8723"
	Path string // e.g. "/callback"
	Log  zerolog.Logger
}

// Obtain implements CallbackFunc.
func (cs *CallbackServer) Obtain(ctx context.Context, authURL string) (string, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	hit := make(chan string, 1)
	r.GET(cs.Path, func(c *gin.Context) {
		if e := c.Query("error"); e != "" {
			c.String(http.StatusOK, "Authorization was denied. You can close this window.")
		} else {
			c.String(http.StatusOK, "Authorization received. You can close this window and return to the terminal.")
		}
		select {
		case hit <- c.Request.URL.String():
		default: // a second hit after the first is ignored
		}
	})

	srv := &http.Server{Addr: cs.Addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	cs.Log.Info().Str("addr", cs.Addr).Str("path", cs.Path).Msg("waiting for authorization callback")

	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errCh:
		return "", fmt.Errorf("callback server: %w", err)
	case u := <-hit:
		return u, nil
	}
}
