package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/nhle/bdaycal/internal/logger"
)

// consentTimeout bounds how long the loopback flow waits for the browser.
const consentTimeout = 5 * time.Minute

// LoopbackConsent authorizes through the browser and receives the code on a
// one-shot HTTP listener bound to 127.0.0.1.
type LoopbackConsent struct {
	// Out receives the authorization URL.
	Out io.Writer

	// OnURL, when set, is called with the authorization URL instead of
	// printing it.
	OnURL func(authURL string)
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Consent.
func (c *LoopbackConsent) Authorize(
	ctx context.Context, base *oauth2.Config,
) (*oauth2.Token, error) {
	log := logger.FromContext(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening for authorization callback: %w", err)
	}

	cfg := *base
	cfg.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)

	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		res := readCallback(req.URL.Query(), state)
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Authorization complete. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("Authorization callback server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)
	if c.OnURL != nil {
		c.OnURL(authURL)
	} else if c.Out != nil {
		fmt.Fprintf(c.Out, "Open this URL in a browser to authorize calendar access:\n\n%s\n\n", authURL)
	}

	log.Info().Str("redirect_url", cfg.RedirectURL).Msg("Waiting for calendar authorization")

	waitCtx, cancel := context.WithTimeout(ctx, consentTimeout)
	defer cancel()

	var res callbackResult
	select {
	case res = <-results:
	case <-waitCtx.Done():
		return nil, fmt.Errorf("waiting for authorization: %w", waitCtx.Err())
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	return tok, nil
}

func readCallback(q url.Values, state string) callbackResult {
	if q.Get("state") != state {
		return callbackResult{err: errors.New("authorization callback state mismatch")}
	}
	if e := q.Get("error"); e != "" {
		return callbackResult{err: fmt.Errorf("authorization denied: %s", e)}
	}
	code := q.Get("code")
	if code == "" {
		return callbackResult{err: errors.New("authorization callback without code")}
	}
	return callbackResult{code: code}
}

// manualRedirectURL is where the browser lands after approval in the manual
// flow. Nothing listens there; the user copies the code from the address bar.
const manualRedirectURL = "http://localhost"

// ManualConsent prints the authorization URL and asks for the code to be
// pasted back, for machines without a local browser.
type ManualConsent struct {
	Out io.Writer

	// Prompt reads the pasted code or redirected URL. Defaults to a huh input.
	Prompt func() (string, error)
}

// Authorize implements Consent.
func (c *ManualConsent) Authorize(
	ctx context.Context, base *oauth2.Config,
) (*oauth2.Token, error) {
	cfg := *base
	cfg.RedirectURL = manualRedirectURL

	verifier := oauth2.GenerateVerifier()
	authURL := cfg.AuthCodeURL(uuid.NewString(),
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	if c.Out != nil {
		fmt.Fprintf(c.Out, "Step 1: Visit this URL to authorize calendar access:\n\n%s\n\n", authURL)
		fmt.Fprintln(c.Out, "Step 2: After approving, copy the 'code' parameter (or the whole URL) from the address bar.")
	}

	prompt := c.Prompt
	if prompt == nil {
		prompt = promptCode
	}

	input, err := prompt()
	if err != nil {
		return nil, fmt.Errorf("reading authorization code: %w", err)
	}

	code, err := parseCode(input)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}

	return tok, nil
}

func promptCode() (string, error) {
	var input string
	err := huh.NewInput().
		Title("Authorization code").
		Description("Paste the code or the full redirected URL").
		Value(&input).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("code is required")
			}
			return nil
		}).
		Run()
	return input, err
}

// parseCode accepts either a bare code or a redirected URL carrying one.
func parseCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("authorization code is required")
	}

	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parsing redirected URL: %w", err)
	}
	if e := u.Query().Get("error"); e != "" {
		return "", fmt.Errorf("authorization denied: %s", e)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("redirected URL has no code parameter")
	}
	return code, nil
}
