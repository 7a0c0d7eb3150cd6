package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fablekids/auth/internal/auth/audit"
	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store/drivers/sqlite"
	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/idx"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newTokenService(s *sqlite.Store, km *jwtx.KeyManager) *TokenService {
	return &TokenService{
		KeyManager: km,
		Store:      s,
		Issuer:     testIssuer,
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
		Audit:      audit.Nop{},
	}
}

// issueCode runs a full authorize pass and returns the code plus the PKCE
// verifier that unlocks it.
func issueCode(t *testing.T, s *sqlite.Store, km *jwtx.KeyManager, subject domain.Subject, client domain.Client, scopes []string, nonce string) (code, verifier string) {
	t.Helper()

	verifier, challenge := pkceChallenge(t)
	svc := newAuthorizeService(s, km)

	resp, err := svc.Authorize(context.Background(), AuthorizeRequest{
		ResponseType:  "code",
		ClientID:      client.ID,
		RedirectURI:   client.RedirectURIs[0],
		Scope:         scopes,
		Nonce:         nonce,
		CodeChallenge: challenge,
		Username:      subject.Username,
		Password:      testPassword,
		Approved:      true,
	})
	require.NoError(t, err)
	return resp.Code, verifier
}

func TestExchangeAuthorizationCode(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID, domain.ScopeLibraryRead})

	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID, domain.ScopeLibraryRead}, "nonce-xyz")

	pair, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "openid library.read", pair.Scope)

	claims, err := km.Verifier.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, adult.ID, claims.Subject)
	require.Equal(t, client.ID, claims.ClientID)
	require.ElementsMatch(t, []string{domain.ScopeOpenID, domain.ScopeLibraryRead}, claims.Scopes)
	require.Contains(t, claims.AMR, jwtx.AMRPassword)

	// openid was granted, so an ID token comes back, echoing the nonce.
	require.NotEmpty(t, pair.IDToken)
	idClaims, err := km.Verifier.Verify(pair.IDToken)
	require.NoError(t, err)
	require.Equal(t, "nonce-xyz", idClaims.Nonce)
	require.Equal(t, adult.ID, idClaims.Subject)
}

func TestExchangeAuthorizationCodeNoOpenIDNoIDToken(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeLibraryRead})

	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeLibraryRead}, "")

	pair, err := svc.ExchangeAuthorizationCode(context.Background(), client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)
	require.Empty(t, pair.IDToken)
}

func TestExchangeAuthorizationCodeMismatchesAreUniform(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID})
	other := seedPublicClient(t, s, []string{domain.ScopeOpenID})

	t.Run("wrong verifier", func(t *testing.T) {
		code, _ := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID}, "")
		_, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], "not-the-verifier")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("wrong redirect_uri", func(t *testing.T) {
		code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID}, "")
		_, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, "https://other.example/cb", verifier)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("wrong client", func(t *testing.T) {
		code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID}, "")
		_, err := svc.ExchangeAuthorizationCode(ctx, other.ID, "", code, client.RedirectURIs[0], verifier)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", "no-such-code", client.RedirectURIs[0], "v")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})
}

func TestExchangeAuthorizationCodeSingleUse(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID})
	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID}, "")

	const redemptions = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < redemptions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes, "a code must redeem exactly once")
}

func TestExchangeRefreshTokenRotation(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID, domain.ScopeLibraryRead})
	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID, domain.ScopeLibraryRead}, "")

	pair, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)

	rotated, err := svc.ExchangeRefreshToken(ctx, client.ID, "", pair.RefreshToken, nil)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.Equal(t, pair.Scope, rotated.Scope)

	claims, err := km.Verifier.Verify(rotated.AccessToken)
	require.NoError(t, err)
	require.Contains(t, claims.AMR, jwtx.AMRRefresh)

	// The refreshed ID token must not carry a nonce.
	require.NotEmpty(t, rotated.IDToken)
	idClaims, err := km.Verifier.Verify(rotated.IDToken)
	require.NoError(t, err)
	require.Empty(t, idClaims.Nonce)

	// Presenting the predecessor again is reuse: the whole family dies,
	// including the freshly rotated token.
	_, err = svc.ExchangeRefreshToken(ctx, client.ID, "", pair.RefreshToken, nil)
	require.ErrorIs(t, err, ErrInvalidGrant)

	_, err = svc.ExchangeRefreshToken(ctx, client.ID, "", rotated.RefreshToken, nil)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangeRefreshTokenScopeNarrowing(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID, domain.ScopeLibraryRead})
	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID, domain.ScopeLibraryRead}, "")

	pair, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)

	narrowed, err := svc.ExchangeRefreshToken(ctx, client.ID, "", pair.RefreshToken, []string{domain.ScopeLibraryRead})
	require.NoError(t, err)
	require.Equal(t, domain.ScopeLibraryRead, narrowed.Scope)
	require.Empty(t, narrowed.IDToken, "openid was dropped, so no ID token")

	// Widening back is impossible: the successor only carries the narrow set.
	_, err = svc.ExchangeRefreshToken(ctx, client.ID, "", narrowed.RefreshToken, []string{domain.ScopeOpenID})
	require.ErrorIs(t, err, ErrInvalidScope)
}

func grantChildConsent(t *testing.T, s *sqlite.Store, guardian, child domain.Subject, client domain.Client, scopes []string, expiresAt *time.Time) {
	t.Helper()

	require.NoError(t, s.ParentalConsents().UpsertParentalConsent(context.Background(), domain.ParentalConsent{
		ID:         idx.New().String(),
		GuardianID: guardian.ID,
		ChildID:    child.ID,
		ClientID:   client.ID,
		Scopes:     scopes,
		Granted:    true,
		ExpiresAt:  expiresAt,
	}))
}

func TestExchangeRefreshTokenMinorConsentLapsed(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	guardian := seedAdult(t, s, "mara")
	child := seedChild(t, s, "stella", guardian.ID)
	scopes := []string{domain.ScopeOpenID, domain.ScopeKidProfile}
	client := seedPublicClient(t, s, scopes)

	grantChildConsent(t, s, guardian, child, client, scopes, nil)

	code, verifier := issueCode(t, s, km, child, client, scopes, "")
	pair, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)

	// While the consent is active the refresh grant works normally.
	rotated, err := svc.ExchangeRefreshToken(ctx, client.ID, "", pair.RefreshToken, nil)
	require.NoError(t, err)

	// Once the consent expires the refresh grant dies with it, long before
	// the refresh token's own expiry.
	expired := time.Now().UTC().Add(-time.Minute)
	grantChildConsent(t, s, guardian, child, client, scopes, &expired)

	_, err = svc.ExchangeRefreshToken(ctx, client.ID, "", rotated.RefreshToken, nil)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangeAuthorizationCodeMinorConsentLapsed(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	guardian := seedAdult(t, s, "mara")
	child := seedChild(t, s, "stella", guardian.ID)
	scopes := []string{domain.ScopeOpenID, domain.ScopeKidProfile}
	client := seedPublicClient(t, s, scopes)

	grantChildConsent(t, s, guardian, child, client, scopes, nil)
	code, verifier := issueCode(t, s, km, child, client, scopes, "")

	// The consent lapses inside the code's 60s window; the exchange must
	// refuse rather than honor the stale authorization.
	expired := time.Now().UTC().Add(-time.Minute)
	grantChildConsent(t, s, guardian, child, client, scopes, &expired)

	_, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangeRefreshTokenWrongClient(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID})
	other := seedPublicClient(t, s, []string{domain.ScopeOpenID})

	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID}, "")
	pair, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)

	_, err = svc.ExchangeRefreshToken(ctx, other.ID, "", pair.RefreshToken, nil)
	require.ErrorIs(t, err, ErrInvalidGrant)

	// The legitimate client is unaffected by the failed attempt.
	_, err = svc.ExchangeRefreshToken(ctx, client.ID, "", pair.RefreshToken, nil)
	require.NoError(t, err)
}

func TestConfidentialClientMustAuthenticate(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")

	secret := "shhh-" + idx.New().String()
	hash, err := cryptox.HashPassword(secret)
	require.NoError(t, err)

	client := domain.Client{
		ID:           idx.New().String(),
		Name:         "Backend Narrator",
		SecretHash:   hash,
		RedirectURIs: []string{"https://narrator.fablekids.example/callback"},
		Scopes:       []string{domain.ScopeOpenID},
	}
	require.NoError(t, s.Clients().CreateClient(ctx, client))

	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID}, "")

	_, err = svc.ExchangeAuthorizationCode(ctx, client.ID, "wrong-secret", code, client.RedirectURIs[0], verifier)
	require.ErrorIs(t, err, ErrInvalidClient)

	_, err = svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.ErrorIs(t, err, ErrInvalidClient)

	pair, err := svc.ExchangeAuthorizationCode(ctx, client.ID, secret, code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestRevokeIsSilent(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID})
	other := seedPublicClient(t, s, []string{domain.ScopeOpenID})

	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID}, "")
	pair, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)

	// Unknown token: success, no information leaked.
	require.NoError(t, svc.Revoke(ctx, client.ID, "", "never-issued"))

	// Someone else's token looks exactly like an unknown one, and survives.
	require.NoError(t, svc.Revoke(ctx, other.ID, "", pair.RefreshToken))
	_, err = svc.ExchangeRefreshToken(ctx, client.ID, "", pair.RefreshToken, nil)
	require.NoError(t, err)
}

func TestRevokeKillsFamily(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID})

	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID}, "")
	pair, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)

	rotated, err := svc.ExchangeRefreshToken(ctx, client.ID, "", pair.RefreshToken, nil)
	require.NoError(t, err)

	// Revoking by the old handle still takes out the live successor.
	require.NoError(t, svc.Revoke(ctx, client.ID, "", pair.RefreshToken))
	_, err = svc.ExchangeRefreshToken(ctx, client.ID, "", rotated.RefreshToken, nil)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestIntrospect(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID, domain.ScopeLibraryRead})

	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID, domain.ScopeLibraryRead}, "")
	pair, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)

	t.Run("access token", func(t *testing.T) {
		intro, err := svc.Introspect(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.True(t, intro.Active)
		require.Equal(t, "access_token", intro.TokenType)
		require.Equal(t, adult.ID, intro.Subject)
		require.Equal(t, client.ID, intro.ClientID)
		require.True(t, strings.Contains(intro.Scope, domain.ScopeLibraryRead))
		require.Greater(t, intro.ExpiresAt, time.Now().UTC().Unix())
	})

	t.Run("refresh token", func(t *testing.T) {
		intro, err := svc.Introspect(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.True(t, intro.Active)
		require.Equal(t, "refresh_token", intro.TokenType)
		require.Equal(t, adult.ID, intro.Subject)
	})

	t.Run("garbage is inactive, not an error", func(t *testing.T) {
		intro, err := svc.Introspect(ctx, "complete-nonsense")
		require.NoError(t, err)
		require.False(t, intro.Active)
	})

	t.Run("revoked refresh token is inactive", func(t *testing.T) {
		require.NoError(t, svc.Revoke(ctx, client.ID, "", pair.RefreshToken))
		intro, err := svc.Introspect(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.False(t, intro.Active)
	})
}

func TestVerifyCodeVerifier(t *testing.T) {
	t.Parallel()

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := cryptox.FingerprintToken(verifier)

	require.True(t, verifyCodeVerifier(challenge, domain.CodeChallengeMethodS256, verifier))
	require.True(t, verifyCodeVerifier("", "", "anything"), "no challenge stored means PKCE was skipped")
	require.False(t, verifyCodeVerifier(challenge, domain.CodeChallengeMethodS256, "wrong"))
	require.False(t, verifyCodeVerifier(challenge, domain.CodeChallengeMethodS256, ""))
	require.False(t, verifyCodeVerifier(challenge, "plain", challenge))
	require.False(t, verifyCodeVerifier(challenge, "", verifier), "stored method must be S256")
}

func TestSignerUnavailable(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	svc := newTokenService(s, km)
	ctx := context.Background()

	adult := seedAdult(t, s, "alice")
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID})
	code, verifier := issueCode(t, s, km, adult, client, []string{domain.ScopeOpenID}, "")

	// A key manager with no signers cannot mint tokens.
	svc.KeyManager = &jwtx.KeyManager{}
	_, err := svc.ExchangeAuthorizationCode(ctx, client.ID, "", code, client.RedirectURIs[0], verifier)
	require.ErrorIs(t, err, ErrSignerUnavailable)
}
