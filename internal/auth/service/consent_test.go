package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fablekids/auth/internal/auth/audit"
	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store/drivers/sqlite"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func newConsentService(s *sqlite.Store) *ConsentService {
	return &ConsentService{Store: s, Audit: audit.Nop{}}
}

func TestGrantConsentGuardianChecks(t *testing.T) {
	s := newServiceStore(t)
	svc := newConsentService(s)
	ctx := context.Background()

	guardian := seedAdult(t, s, "parent")
	stranger := seedAdult(t, s, "stranger")
	child := seedChild(t, s, "stella", guardian.ID)
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID, domain.ScopeKidProfile})

	base := GrantConsentRequest{
		GuardianID: guardian.ID,
		ChildID:    child.ID,
		ClientID:   client.ID,
		Scopes:     []string{domain.ScopeOpenID},
	}

	t.Run("unknown guardian", func(t *testing.T) {
		req := base
		req.GuardianID = "nope"
		_, err := svc.GrantConsent(ctx, req)
		require.ErrorIs(t, err, ErrNotGuardian)
	})

	t.Run("adult who is not the registered guardian", func(t *testing.T) {
		req := base
		req.GuardianID = stranger.ID
		_, err := svc.GrantConsent(ctx, req)
		require.ErrorIs(t, err, ErrNotGuardian)
	})

	t.Run("minor cannot act as guardian", func(t *testing.T) {
		sibling := seedChild(t, s, "ben", guardian.ID)
		req := base
		req.GuardianID = sibling.ID
		req.ChildID = child.ID
		_, err := svc.GrantConsent(ctx, req)
		require.ErrorIs(t, err, ErrAgeVerificationFailed)
	})

	t.Run("scopes outside client registration", func(t *testing.T) {
		req := base
		req.Scopes = []string{domain.ScopeLibraryWrite}
		_, err := svc.GrantConsent(ctx, req)
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("happy path", func(t *testing.T) {
		consent, err := svc.GrantConsent(ctx, base)
		require.NoError(t, err)
		require.True(t, consent.Granted)
		require.Equal(t, []string{domain.ScopeOpenID}, consent.Scopes)
	})
}

func TestGrantConsentUnblocksAuthorize(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	consents := newConsentService(s)
	authz := newAuthorizeService(s, km)
	ctx := context.Background()

	guardian := seedAdult(t, s, "parent")
	child := seedChild(t, s, "stella", guardian.ID)
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID, domain.ScopeKidProfile})
	_, challenge := pkceChallenge(t)

	req := AuthorizeRequest{
		ResponseType:  "code",
		ClientID:      client.ID,
		RedirectURI:   client.RedirectURIs[0],
		Scope:         []string{domain.ScopeOpenID, domain.ScopeKidProfile},
		CodeChallenge: challenge,
		Username:      child.Username,
		Password:      testPassword,
	}

	// First attempt pauses into a consent session.
	_, err := authz.Authorize(ctx, req)
	var consentErr *ConsentRequiredError
	require.ErrorAs(t, err, &consentErr)

	_, err = consents.GrantConsent(ctx, GrantConsentRequest{
		GuardianID: guardian.ID,
		ChildID:    child.ID,
		ClientID:   client.ID,
		Scopes:     []string{domain.ScopeOpenID, domain.ScopeKidProfile},
	})
	require.NoError(t, err)

	// The grant cleared the pending session, so the retry goes through
	// instead of reporting guardian_approval_pending.
	resp, err := authz.Authorize(ctx, req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Code)
}

func TestRevokeConsentCascades(t *testing.T) {
	s := newServiceStore(t)
	km := newTestKeyManager(t)
	consents := newConsentService(s)
	authz := newAuthorizeService(s, km)
	tokens := newTokenService(s, km)
	ctx := context.Background()

	guardian := seedAdult(t, s, "parent")
	child := seedChild(t, s, "stella", guardian.ID)
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID, domain.ScopeKidProfile})

	_, err := consents.GrantConsent(ctx, GrantConsentRequest{
		GuardianID: guardian.ID,
		ChildID:    child.ID,
		ClientID:   client.ID,
		Scopes:     []string{domain.ScopeOpenID, domain.ScopeKidProfile},
	})
	require.NoError(t, err)

	verifier, challenge := pkceChallenge(t)
	resp, err := authz.Authorize(ctx, AuthorizeRequest{
		ResponseType:  "code",
		ClientID:      client.ID,
		RedirectURI:   client.RedirectURIs[0],
		Scope:         []string{domain.ScopeOpenID, domain.ScopeKidProfile},
		CodeChallenge: challenge,
		Username:      child.Username,
		Password:      testPassword,
	})
	require.NoError(t, err)

	pair, err := tokens.ExchangeAuthorizationCode(ctx, client.ID, "", resp.Code, client.RedirectURIs[0], verifier)
	require.NoError(t, err)

	// A second code left un-redeemed when the guardian revokes.
	verifier2, challenge2 := pkceChallenge(t)
	resp2, err := authz.Authorize(ctx, AuthorizeRequest{
		ResponseType:  "code",
		ClientID:      client.ID,
		RedirectURI:   client.RedirectURIs[0],
		Scope:         []string{domain.ScopeOpenID},
		CodeChallenge: challenge2,
		Username:      child.Username,
		Password:      testPassword,
	})
	require.NoError(t, err)

	require.NoError(t, consents.RevokeConsent(ctx, guardian.ID, child.ID, client.ID))

	// Refresh tokens died with the consent.
	_, err = tokens.ExchangeRefreshToken(ctx, client.ID, "", pair.RefreshToken, nil)
	require.ErrorIs(t, err, ErrInvalidGrant)

	// The outstanding code died too.
	_, err = tokens.ExchangeAuthorizationCode(ctx, client.ID, "", resp2.Code, client.RedirectURIs[0], verifier2)
	require.ErrorIs(t, err, ErrInvalidGrant)

	// New authorization attempts hit the gate again.
	_, challenge3 := pkceChallenge(t)
	_, err = authz.Authorize(ctx, AuthorizeRequest{
		ResponseType:  "code",
		ClientID:      client.ID,
		RedirectURI:   client.RedirectURIs[0],
		Scope:         []string{domain.ScopeOpenID},
		CodeChallenge: challenge3,
		Username:      child.Username,
		Password:      testPassword,
	})
	var consentErr *ConsentRequiredError
	require.ErrorAs(t, err, &consentErr)

	// Revoking twice is a silent no-op.
	require.NoError(t, consents.RevokeConsent(ctx, guardian.ID, child.ID, client.ID))
}

func TestRevokeConsentGuardianOnly(t *testing.T) {
	s := newServiceStore(t)
	svc := newConsentService(s)
	ctx := context.Background()

	guardian := seedAdult(t, s, "parent")
	stranger := seedAdult(t, s, "stranger")
	child := seedChild(t, s, "stella", guardian.ID)
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID})

	require.ErrorIs(t, svc.RevokeConsent(ctx, stranger.ID, child.ID, client.ID), ErrNotGuardian)
	require.ErrorIs(t, svc.RevokeConsent(ctx, guardian.ID, "no-such-child", client.ID), ErrNotGuardian)
}

func TestGuardianTOTPVerification(t *testing.T) {
	s := newServiceStore(t)
	svc := newConsentService(s)
	ctx := context.Background()

	guardian := seedAdult(t, s, "parent")
	child := seedChild(t, s, "stella", guardian.ID)
	client := seedPublicClient(t, s, []string{domain.ScopeOpenID})

	url, err := svc.EnrollGuardianTOTP(ctx, guardian.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "otpauth://totp/"))

	enrolled, err := s.Subjects().GetSubjectByID(ctx, guardian.ID)
	require.NoError(t, err)
	require.NotNil(t, enrolled.TOTPSecret)

	req := GrantConsentRequest{
		GuardianID: guardian.ID,
		ChildID:    child.ID,
		ClientID:   client.ID,
		Scopes:     []string{domain.ScopeOpenID},
	}

	// Missing and wrong codes both fail verification.
	_, err = svc.GrantConsent(ctx, req)
	require.ErrorIs(t, err, ErrGuardianVerification)

	req.TOTPCode = "000000"
	_, err = svc.GrantConsent(ctx, req)
	require.ErrorIs(t, err, ErrGuardianVerification)

	code, err := totp.GenerateCode(*enrolled.TOTPSecret, time.Now())
	require.NoError(t, err)

	req.TOTPCode = code
	consent, err := svc.GrantConsent(ctx, req)
	require.NoError(t, err)
	require.True(t, consent.Granted)
}

func TestEnrollGuardianTOTPRejectsMinors(t *testing.T) {
	s := newServiceStore(t)
	svc := newConsentService(s)

	guardian := seedAdult(t, s, "parent")
	child := seedChild(t, s, "stella", guardian.ID)

	_, err := svc.EnrollGuardianTOTP(context.Background(), child.ID)
	require.ErrorIs(t, err, ErrAgeVerificationFailed)
}

func TestListConsents(t *testing.T) {
	s := newServiceStore(t)
	svc := newConsentService(s)
	ctx := context.Background()

	guardian := seedAdult(t, s, "parent")
	child := seedChild(t, s, "stella", guardian.ID)
	clientA := seedPublicClient(t, s, []string{domain.ScopeOpenID})
	clientB := seedPublicClient(t, s, []string{domain.ScopeOpenID})

	for _, clientID := range []string{clientA.ID, clientB.ID} {
		_, err := svc.GrantConsent(ctx, GrantConsentRequest{
			GuardianID: guardian.ID,
			ChildID:    child.ID,
			ClientID:   clientID,
			Scopes:     []string{domain.ScopeOpenID},
		})
		require.NoError(t, err)
	}
	require.NoError(t, svc.RevokeConsent(ctx, guardian.ID, child.ID, clientB.ID))

	list, err := svc.ListConsents(ctx, guardian.ID)
	require.NoError(t, err)
	require.Len(t, list, 2, "revoked consents stay visible in the guardian's history")

	now := time.Now().UTC()
	var active int
	for i := range list {
		if list[i].IsActive(now) {
			active++
		}
	}
	require.Equal(t, 1, active)
}
