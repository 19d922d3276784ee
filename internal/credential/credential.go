// Package credential supplies an authorized HTTP client for the Gmail API.
//
// Client secrets come from a Google "installed app" JSON file. The OAuth2 token
// is cached in a TokenStore; when none is cached the user is walked through
// the offline authorization-code flow once. Refreshed tokens are written back
// to the store so the next run starts from a valid token.
package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// ErrNoToken is returned by a TokenStore that holds no token yet.
var ErrNoToken = errors.New("no cached token")

// TokenStore persists an OAuth2 token between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// Prompt is where the authorization URL is shown and the code is read from.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// Client returns an HTTP client authorized for the Gmail modify scope.
func Client(ctx context.Context, secretsPath string, store TokenStore, prompt Prompt) (*http.Client, error) {
	b, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, fmt.Errorf("read client secret file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret file: %w", err)
	}

	tok, err := store.Load()
	if errors.Is(err, ErrNoToken) {
		tok, err = tokenFromWeb(ctx, cfg, prompt)
		if err != nil {
			return nil, err
		}
		if err := store.Save(tok); err != nil {
			return nil, fmt.Errorf("save token: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	src := &savingSource{
		src:   cfg.TokenSource(ctx, tok),
		store: store,
		last:  tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, prompt Prompt) (*oauth2.Token, error) {
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(prompt.Out, "Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)

	var code string
	if _, err := fmt.Fscan(prompt.In, &code); err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// savingSource persists every token that differs from the last one seen.
type savingSource struct {
	mu    sync.Mutex
	src   oauth2.TokenSource
	store TokenStore
	last  string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.store.Save(tok); err != nil {
			return nil, fmt.Errorf("save refreshed token: %w", err)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
