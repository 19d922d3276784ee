package credential

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestFileStore(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "token.json")}

	_, err := store.Load()
	require.ErrorIs(t, err, ErrNoToken)

	want := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}
	require.NoError(t, store.Save(want))

	info, err := os.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
}

func TestKeyringStore(t *testing.T) {
	store := NewKeyringStore(keyring.NewArrayKeyring(nil), "gmail-token")

	_, err := store.Load()
	require.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
}

type sequenceSource struct {
	tokens []string
	i      int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	if s.i >= len(s.tokens) {
		return nil, errors.New("exhausted")
	}
	tok := &oauth2.Token{AccessToken: s.tokens[s.i]}
	s.i++
	return tok, nil
}

type countingStore struct {
	saved []string
}

func (c *countingStore) Load() (*oauth2.Token, error) { return nil, ErrNoToken }

func (c *countingStore) Save(tok *oauth2.Token) error {
	c.saved = append(c.saved, tok.AccessToken)
	return nil
}

func TestSavingSource_PersistsOnlyChangedTokens(t *testing.T) {
	store := &countingStore{}
	src := &savingSource{
		src:   &sequenceSource{tokens: []string{"a", "a", "b", "b"}},
		store: store,
		last:  "a",
	}

	for range 4 {
		_, err := src.Token()
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"b"}, store.saved)

	_, err := src.Token()
	require.Error(t, err)
}

func writeSecrets(t *testing.T, tokenURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	body := fmt.Sprintf(`{"installed":{"client_id":"id","client_secret":"secret",`+
		`"redirect_uris":["http://localhost"],`+
		`"auth_uri":"https://accounts.example.com/auth","token_uri":%q}}`, tokenURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestClient_AuthorizationFlow(t *testing.T) {
	var gotCode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		gotCode = r.PostForm.Get("code")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","refresh_token":"r","expires_in":3600}`)
	}))
	defer srv.Close()

	store := FileStore{Path: filepath.Join(t.TempDir(), "token.json")}
	var out bytes.Buffer
	prompt := Prompt{In: strings.NewReader("code-123\n"), Out: &out}

	client, err := Client(context.Background(), writeSecrets(t, srv.URL), store, prompt)
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.Equal(t, "code-123", gotCode)
	assert.Contains(t, out.String(), "https://accounts.example.com/auth")

	tok, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
}

func TestClient_CachedToken(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "token.json")}
	require.NoError(t, store.Save(&oauth2.Token{
		AccessToken: "cached",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}))

	prompt := Prompt{In: strings.NewReader(""), Out: &bytes.Buffer{}}
	client, err := Client(context.Background(), writeSecrets(t, "http://127.0.0.1:1/token"), store, prompt)
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestClient_MissingSecrets(t *testing.T) {
	store := FileStore{Path: filepath.Join(t.TempDir(), "token.json")}
	_, err := Client(context.Background(), filepath.Join(t.TempDir(), "nope.json"), store, Prompt{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read client secret file")
}
