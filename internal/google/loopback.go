package google

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// LoopbackAuthorizer runs the installed-app consent flow: it prints the
// consent URL, waits for Google to redirect the browser back to a local
// listener and exchanges the code using PKCE.
type LoopbackAuthorizer struct {
	// Port is the loopback port. Zero picks a free port.
	Port int
	// Out receives the consent URL. Defaults to os.Stderr.
	Out io.Writer
	// OpenURL, when set, is called with the consent URL after the listener
	// is ready, e.g. to launch a browser.
	OpenURL func(ctx context.Context, authURL string) error
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Authorizer.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", a.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to start loopback listener: %w", err)
	}

	c := *conf
	c.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state, err := randomState()
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := c.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	out := a.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "Visit the following URL to authorize calendar access:\n\n%s\n\nWaiting for the browser redirect...\n", authURL)

	if a.OpenURL != nil {
		if err := a.OpenURL(ctx, authURL); err != nil {
			return nil, fmt.Errorf("failed to open consent URL: %w", err)
		}
	}

	var res callbackResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := c.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return tok, nil
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var res callbackResult
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
			http.Error(w, "Authorization failed. You can close this window.", http.StatusForbidden)
		case q.Get("code") == "":
			res.err = errors.New("authorization response carried no code")
			http.Error(w, "Missing authorization code.", http.StatusBadRequest)
		default:
			res.code = q.Get("code")
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, "Authorization complete. You can close this window.\n")
		}

		select {
		case results <- res:
		default:
		}
	})
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
