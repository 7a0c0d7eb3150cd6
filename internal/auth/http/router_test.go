package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fablekids/auth/internal/auth/audit"
	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/internal/auth/store/drivers/sqlite"
	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/idx"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/fablekids/auth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://auth.fablekids.example"
	testPassword = "correct horse battery staple"
)

// testEnv wires a full Router over a real sqlite store and an ephemeral key
// manager, the same shape the application assembles at startup. Each test
// gets its own env, so rate limiter state never bleeds between tests.
type testEnv struct {
	store  *sqlite.Store
	keys   *jwtx.KeyManager
	router *Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cryptox.SetPepperPath(filepath.Join(t.TempDir(), "pepper.key"))

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    testIssuer,
		NumKeys:   1,
	})
	require.NoError(t, err)

	logger := slogx.New(slogx.Config{
		Service: "fablekids-auth",
		Env:     "test",
		Level:   "error",
		Format:  "text",
		Writer:  io.Discard,
	})

	r := NewRouter(km.KeySet, km.Verifier, testIssuer, "test", s, logger)
	r.TokenService = &service.TokenService{
		KeyManager: km,
		Store:      s,
		Issuer:     testIssuer,
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
		Audit:      audit.Nop{},
	}
	r.AuthorizeService = &service.AuthorizeService{
		Store:      s,
		KeyManager: km,
		Issuer:     testIssuer,
		Audit:      audit.Nop{},
	}
	r.ConsentService = &service.ConsentService{Store: s, Audit: audit.Nop{}}
	r.UserInfoService = &service.UserInfoService{Store: s}
	r.SubjectService = &service.SubjectService{Store: s}
	r.ClientService = &service.ClientService{Store: s}
	r.BootstrapService = &service.BootstrapService{Store: s}
	r.KeyRotationService = &service.KeyRotationService{
		KeyManager:  km,
		Algorithm:   jwtx.AlgorithmEdDSA,
		GracePeriod: time.Hour,
		Audit:       audit.Nop{},
	}
	r.ApplyRoutes()

	return &testEnv{store: s, keys: km, router: r}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// mintAccessToken signs an access token directly, sidestepping the full
// authorize+exchange dance for tests of resource endpoints.
func (e *testEnv) mintAccessToken(t *testing.T, subjectID, clientID string, scopes []string) string {
	t.Helper()

	claims := jwtx.NewAccessClaims(
		subjectID,
		idx.New().String(),
		clientID,
		scopes,
		[]string{jwtx.AMRPassword},
		5*time.Minute,
		testIssuer,
		[]string{clientID},
		time.Now().UTC(),
	)

	signer := e.keys.GetSigner()
	require.NotNil(t, signer)
	token, err := signer.Sign(claims)
	require.NoError(t, err)
	return token
}

func (e *testEnv) seedAdult(t *testing.T, username string) domain.Subject {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	sub := domain.Subject{
		ID:           idx.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Birthdate:    time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, e.store.Subjects().CreateSubject(context.Background(), sub))
	return sub
}

func (e *testEnv) seedChild(t *testing.T, username, guardianID string) domain.Subject {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	sub := domain.Subject{
		ID:                     idx.New().String(),
		Username:               username,
		PasswordHash:           hash,
		Birthdate:              time.Now().UTC().AddDate(-8, 0, 0),
		GuardianID:             &guardianID,
		CharacterID:            "char_fox_02",
		PreferredCharacterName: "Juniper the Fox",
		AppearanceURL:          "https://cdn.fablekids.example/avatars/fox-02.png",
		Traits:                 map[string]string{"favorite_color": "green"},
		Libraries:              []domain.Library{{ID: "lib_bedtime", Name: "Bedtime", Writable: false}},
	}
	require.NoError(t, e.store.Subjects().CreateSubject(context.Background(), sub))
	return sub
}

func (e *testEnv) seedPublicClient(t *testing.T, scopes []string) domain.Client {
	t.Helper()

	c := domain.Client{
		ID:           idx.New().String(),
		Name:         "Story Reader",
		RedirectURIs: []string{"https://reader.fablekids.example/callback"},
		Scopes:       scopes,
	}
	require.NoError(t, e.store.Clients().CreateClient(context.Background(), c))
	return c
}

func (e *testEnv) seedTrustedClient(t *testing.T, scopes []string) domain.Client {
	t.Helper()

	c := domain.Client{
		ID:           idx.New().String(),
		Name:         "FableKids Home",
		RedirectURIs: []string{"https://home.fablekids.example/callback"},
		Scopes:       scopes,
		Trusted:      true,
	}
	require.NoError(t, e.store.Clients().CreateClient(context.Background(), c))
	return c
}

func (e *testEnv) seedConfidentialClient(t *testing.T, scopes []string) domain.Client {
	t.Helper()

	secret := "shhh-" + idx.New().String()
	hash, err := cryptox.HashPassword(secret)
	require.NoError(t, err)

	c := domain.Client{
		ID:           idx.New().String(),
		Name:         "Backend Narrator",
		SecretHash:   hash,
		RedirectURIs: []string{"https://narrator.fablekids.example/callback"},
		Scopes:       scopes,
	}
	require.NoError(t, e.store.Clients().CreateClient(context.Background(), c))
	return c
}

// pkceChallenge returns a verifier and its S256 challenge.
func pkceChallenge(t *testing.T) (verifier, challenge string) {
	t.Helper()

	verifier, err := cryptox.GenerateToken(cryptox.TokenSize128)
	require.NoError(t, err)
	return verifier, cryptox.FingerprintToken(verifier)
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// obtainCode drives the authorization endpoint with password credentials and
// returns the issued code. The caller keeps the PKCE verifier for exchange.
func (e *testEnv) obtainCode(t *testing.T, client domain.Client, username string, scopes []string, challenge string) (code, state string) {
	t.Helper()

	form := url.Values{
		"response_type":  {"code"},
		"client_id":      {client.ID},
		"redirect_uri":   {client.RedirectURIs[0]},
		"scope":          {strings.Join(scopes, " ")},
		"state":          {"st-" + idx.New().String()},
		"code_challenge": {challenge},
		"username":       {username},
		"password":       {testPassword},
		"approved":       {"true"},
	}

	rec := e.do(formRequest(http.MethodPost, "/v1/oauth2/authorize", form))
	require.Equal(t, http.StatusFound, rec.Code, "body: %s", rec.Body.String())

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	code = loc.Query().Get("code")
	require.NotEmpty(t, code)
	return code, loc.Query().Get("state")
}
