package strava

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// PasteCallback returns a CallbackFunc that prints the authorization link and
// reads the redirected URL the user pastes back. nil readers/writers default
// to stdin/stdout. This is the path for the hosted redirect page, where no
// local server can receive the redirect.
func PasteCallback(in io.Reader, out io.Writer) CallbackFunc {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return func(ctx context.Context, authURL string) (string, error) {
		fmt.Fprintf(out, "Click here to authorize the app: %s\n", authURL)
		fmt.Fprint(out, "Enter the full callback URL: ")

		type line struct {
			text string
			err  error
		}
		// The reading goroutine stays blocked in Scan if ctx is cancelled
		// before a line arrives; in cannot be unblocked without closing it,
		// and closing stdin is not an option. The buffered channel lets the
		// goroutine finish whenever the read eventually returns.
		ch := make(chan line, 1)
		go func() {
			scanner := bufio.NewScanner(in)
			if scanner.Scan() {
				ch <- line{text: strings.TrimSpace(scanner.Text())}
				return
			}
			ch <- line{err: scanner.Err()}
		}()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case l := <-ch:
			if l.err != nil {
				return "", l.err
			}
			return l.text, nil
		}
	}
}
