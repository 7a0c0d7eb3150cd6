package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fablekids/auth/internal/auth/audit"
	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store"
	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/idx"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/fablekids/auth/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidClient      = errors.New("invalid_client")
	ErrInvalidScope       = errors.New("invalid_scope")
	ErrInvalidGrant       = errors.New("invalid_grant")

	// ErrSignerUnavailable means no signing key is ready. Callers surface it
	// as temporarily_unavailable; an unsigned token is never an option.
	ErrSignerUnavailable = errors.New("signer_unavailable")
)

type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	MinorAge   int // years; zero means DefaultMinorAgeThreshold
	Audit      audit.Sink
}

// requireMinorConsent refuses issuance for a minor whose parental consent is
// not active or does not cover the requested scopes. Consents that lapse by
// expiry cut off token issuance exactly like an explicit revocation; a
// refresh token outliving its consent must stop working at the consent
// boundary, not at the refresh TTL.
func (s *TokenService) requireMinorConsent(
	ctx context.Context,
	consents store.ParentalConsents,
	subject domain.Subject,
	clientID string,
	scopes []string,
	now time.Time,
) error {
	threshold := s.MinorAge
	if threshold <= 0 {
		threshold = DefaultMinorAgeThreshold
	}
	if !subject.IsMinor(now, threshold) {
		return nil
	}

	consent, err := consents.GetParentalConsent(ctx, subject.ID, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidGrant
		}
		return err
	}
	if !consent.IsActive(now) || !consent.Covers(scopes) {
		return ErrInvalidGrant
	}
	return nil
}

// ExchangeAuthorizationCode implements the OAuth2 authorization_code grant.
//
// It authenticates the client (confidential clients must present their
// secret), atomically consumes the code, enforces PKCE, and issues the
// access/ID/refresh token set. The code consume and the refresh-token write
// happen in one transaction; nothing is returned unless the write committed.
func (s *TokenService) ExchangeAuthorizationCode(
	ctx context.Context,
	clientID, clientSecret, code, redirectURI, codeVerifier string,
) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}

	// Confidential clients must authenticate
	if client.IsConfidential() {
		if clientSecret == "" || cryptox.VerifyPassword(clientSecret, client.SecretHash) != nil {
			l.Info("authorization_code grant client authentication failed", slog.String("client_id", clientID))
			return nil, ErrInvalidClient
		}
	}

	code = strings.TrimSpace(code)
	redirectURI = strings.TrimSpace(redirectURI)
	codeVerifier = strings.TrimSpace(codeVerifier)
	if code == "" || redirectURI == "" {
		return nil, ErrInvalidGrant
	}

	codeHash := cryptox.FingerprintToken(code)

	var result *domain.TokenPair

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		authCode, err := tx.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, codeHash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		// Uniform invalid_grant for every mismatch; the caller learns
		// nothing about which check failed.
		if authCode.ClientID != client.ID {
			return ErrInvalidGrant
		}
		if authCode.RedirectURI != redirectURI {
			return ErrInvalidGrant
		}
		if !verifyCodeVerifier(authCode.CodeChallenge, authCode.CodeChallengeMethod, codeVerifier) {
			return ErrInvalidGrant
		}

		// Atomic consume. Losing a concurrent redemption race lands here as
		// zero rows affected, not as a 5xx.
		won, err := tx.AuthorizationCodes().ConsumeAuthorizationCode(ctx, authCode.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return ErrInvalidGrant
		}

		subject, err := tx.Subjects().GetSubjectByID(ctx, authCode.SubjectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		effective := intersectScopes(authCode.Scopes, client.Scopes)
		if len(effective) == 0 {
			return ErrInvalidScope
		}

		// The authorize pass already gated minors, but a consent can lapse
		// within the code's lifetime. Issuance, not authorization, is the
		// boundary the consent protects.
		if err := s.requireMinorConsent(ctx, tx.ParentalConsents(), subject, client.ID, effective, now); err != nil {
			return err
		}

		sessionID := authCode.SessionID
		if sessionID == "" {
			sessionID = idx.New().String()
		}

		amr := dedupe(authCode.AMR)
		if len(amr) == 0 {
			amr = []string{jwtx.AMRPassword}
		}

		accessToken, err := s.signAccess(subject.ID, client.ID, sessionID, effective, amr, now)
		if err != nil {
			return err
		}

		var idToken string
		if containsScope(effective, domain.ScopeOpenID) {
			idToken, err = s.signIDToken(subject, client.ID, sessionID, authCode.Nonce, amr, now)
			if err != nil {
				return err
			}
		}

		refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		refresh := domain.RefreshToken{
			ID:        idx.New().String(),
			SubjectID: subject.ID,
			ClientID:  client.ID,
			TokenHash: cryptox.FingerprintToken(refreshOpaque),
			FamilyID:  idx.New().String(), // fresh grant, fresh family
			SessionID: sessionID,
			Scopes:    effective,
			AMR:       amr,
			ExpiresAt: now.Add(s.RefreshTTL),
			Revoked:   false,
		}

		if err := tx.RefreshTokens().CreateRefreshToken(ctx, refresh); err != nil {
			return err
		}

		result = &domain.TokenPair{
			AccessToken:  accessToken,
			IDToken:      idToken,
			RefreshToken: refreshOpaque,
			TokenType:    "Bearer",
			ExpiresIn:    s.AccessTTL,
			Scope:        strings.Join(effective, " "),
		}

		s.emit(ctx, audit.Record{
			Action:    audit.ActionTokenIssued,
			SubjectID: subject.ID,
			ClientID:  client.ID,
			Scopes:    effective,
			At:        now,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExchangeRefreshToken implements the OAuth2 refresh_token grant with
// rotation. Presenting an already-revoked member of a token family is
// treated as theft: the whole family is revoked and the grant fails.
func (s *TokenService) ExchangeRefreshToken(
	ctx context.Context,
	clientID, clientSecret string,
	refreshOpaque string,
	requestedScopes []string, // Empty means reuse original scopes
) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}

	if client.IsConfidential() {
		if clientSecret == "" || cryptox.VerifyPassword(clientSecret, client.SecretHash) != nil {
			l.Info("refresh_token grant client authentication failed", slog.String("client_id", clientID))
			return nil, ErrInvalidClient
		}
	}

	fp := cryptox.FingerprintToken(refreshOpaque)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	if rt.ClientID != client.ID {
		return nil, ErrInvalidGrant
	}

	// Reuse of a revoked token means the rotation chain forked: someone
	// besides the legitimate client holds a member of this family.
	if rt.Revoked {
		l.Warn("revoked refresh token presented, revoking family",
			slog.String("client_id", client.ID),
			slog.String("family_id", rt.FamilyID),
		)
		if err := s.Store.RefreshTokens().RevokeRefreshTokenFamily(ctx, rt.FamilyID); err != nil {
			return nil, err
		}
		s.emit(ctx, audit.Record{
			Action:    audit.ActionTokenReuseDetected,
			SubjectID: rt.SubjectID,
			ClientID:  client.ID,
			At:        now,
		})
		return nil, ErrInvalidGrant
	}

	if now.After(rt.ExpiresAt) {
		return nil, ErrInvalidGrant
	}

	// Scope narrowing only; a refresh can never widen the grant.
	effective := rt.Scopes
	if len(requestedScopes) > 0 {
		effective = intersectScopes(requestedScopes, rt.Scopes)
	}
	effective = intersectScopes(effective, client.Scopes)
	if len(effective) == 0 {
		return nil, ErrInvalidScope
	}

	subject, err := s.Store.Subjects().GetSubjectByID(ctx, rt.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	// A minor's refresh grant is only as durable as the parental consent
	// behind it. Expired or revoked consent ends the grant here even though
	// the refresh token itself has lifetime left.
	if err := s.requireMinorConsent(ctx, s.Store.ParentalConsents(), subject, client.ID, effective, now); err != nil {
		if errors.Is(err, ErrInvalidGrant) {
			l.Info("refresh refused: parental consent no longer active",
				slog.String("client_id", client.ID),
				slog.String("subject_id", subject.ID),
			)
		}
		return nil, err
	}

	amr := dedupe(append(rt.AMR, jwtx.AMRRefresh))

	accessToken, err := s.signAccess(subject.ID, client.ID, rt.SessionID, effective, amr, now)
	if err != nil {
		return nil, err
	}

	var idToken string
	if containsScope(effective, domain.ScopeOpenID) {
		// No nonce on refresh; the nonce binds only the original request.
		idToken, err = s.signIDToken(subject, client.ID, rt.SessionID, "", amr, now)
		if err != nil {
			return nil, err
		}
	}

	newRefreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	successor := domain.RefreshToken{
		ID:        idx.New().String(),
		SubjectID: subject.ID,
		ClientID:  client.ID,
		TokenHash: cryptox.FingerprintToken(newRefreshOpaque),
		FamilyID:  rt.FamilyID, // rotation stays in the family
		SessionID: rt.SessionID,
		Scopes:    effective,
		AMR:       amr,
		ExpiresAt: now.Add(s.RefreshTTL),
		Revoked:   false,
	}

	// Rotate atomically. The conditional revoke closes the race where two
	// requests rotate the same token: only the winner creates a successor,
	// the loser trips the family revocation.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		won, err := tx.RefreshTokens().RevokeRefreshToken(ctx, fp)
		if err != nil {
			return err
		}
		if !won {
			if err := tx.RefreshTokens().RevokeRefreshTokenFamily(ctx, rt.FamilyID); err != nil {
				return err
			}
			return ErrInvalidGrant
		}
		return tx.RefreshTokens().CreateRefreshToken(ctx, successor)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, audit.Record{
		Action:    audit.ActionTokenRefreshed,
		SubjectID: subject.ID,
		ClientID:  client.ID,
		Scopes:    effective,
		At:        now,
	})

	return &domain.TokenPair{
		AccessToken:  accessToken,
		IDToken:      idToken,
		RefreshToken: newRefreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
		Scope:        strings.Join(effective, " "),
	}, nil
}

// Revoke implements RFC 7009 semantics for the service layer. Unknown and
// already-revoked tokens succeed silently; the endpoint never confirms
// whether a token existed. Access tokens are a no-op: their short lifetime
// is the documented residual-risk bound.
func (s *TokenService) Revoke(ctx context.Context, clientID, clientSecret, token string) error {
	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidClient
		}
		return err
	}

	if client.IsConfidential() {
		if clientSecret == "" || cryptox.VerifyPassword(clientSecret, client.SecretHash) != nil {
			return ErrInvalidClient
		}
	}

	fp := cryptox.FingerprintToken(token)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil // unknown token, nothing to reveal
		}
		return err
	}

	// A client can only revoke its own tokens; someone else's token looks
	// exactly like an unknown one.
	if rt.ClientID != client.ID {
		return nil
	}

	// Revoke the whole family so descendants of the surrendered token die too.
	if err := s.Store.RefreshTokens().RevokeRefreshTokenFamily(ctx, rt.FamilyID); err != nil {
		return err
	}

	s.emit(ctx, audit.Record{
		Action:    audit.ActionTokenRevoked,
		SubjectID: rt.SubjectID,
		ClientID:  client.ID,
		At:        time.Now().UTC(),
	})
	return nil
}

// Introspect implements RFC 7662. It first tries the token as an access JWT,
// then as an opaque refresh token. Invalid tokens report active=false rather
// than an error.
func (s *TokenService) Introspect(ctx context.Context, token string) (domain.Introspection, error) {
	now := time.Now().UTC()

	if s.KeyManager != nil && s.KeyManager.Verifier != nil {
		if claims, err := s.KeyManager.Verifier.Verify(token); err == nil {
			if claims.ValidateExpiry() == nil {
				intro := domain.Introspection{
					Active:    true,
					TokenType: "access_token",
					Scope:     strings.Join(claims.Scopes, " "),
					ClientID:  claims.ClientID,
					Subject:   claims.Subject,
				}
				if claims.ExpiresAt != nil {
					intro.ExpiresAt = claims.ExpiresAt.Unix()
				}
				return intro, nil
			}
			return domain.Introspection{Active: false}, nil
		}
	}

	fp := cryptox.FingerprintToken(token)
	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Introspection{Active: false}, nil
		}
		return domain.Introspection{}, err
	}

	if rt.Revoked || now.After(rt.ExpiresAt) {
		return domain.Introspection{Active: false}, nil
	}

	return domain.Introspection{
		Active:    true,
		TokenType: "refresh_token",
		Scope:     strings.Join(rt.Scopes, " "),
		ClientID:  rt.ClientID,
		Subject:   rt.SubjectID,
		ExpiresAt: rt.ExpiresAt.Unix(),
	}, nil
}

func (s *TokenService) signAccess(
	subjectID, clientID, sessionID string,
	scopes, amr []string,
	now time.Time,
) (string, error) {
	claims := jwtx.NewAccessClaims(
		subjectID,
		sessionID,
		clientID,
		scopes,
		amr,
		s.AccessTTL,
		s.Issuer,
		[]string{clientID},
		now,
	)

	signer := s.KeyManager.GetSigner()
	if signer == nil {
		return "", ErrSignerUnavailable
	}
	return signer.Sign(claims)
}

// signIDToken mints an OIDC ID token. The claim set is dynamic (nonce only
// when the request carried one), so it goes through SignRaw.
func (s *TokenService) signIDToken(
	subject domain.Subject,
	clientID, sessionID, nonce string,
	amr []string,
	now time.Time,
) (string, error) {
	signer := s.KeyManager.GetSigner()
	if signer == nil {
		return "", ErrSignerUnavailable
	}

	claims := jwt.MapClaims{
		"iss":       s.Issuer,
		"sub":       subject.ID,
		"aud":       clientID,
		"iat":       now.Unix(),
		"exp":       now.Add(s.AccessTTL).Unix(),
		"auth_time": now.Unix(),
		"sid":       sessionID,
		"amr":       amr,
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	return signer.SignRaw(claims)
}

func (s *TokenService) emit(ctx context.Context, r audit.Record) {
	if s.Audit != nil {
		s.Audit.Emit(ctx, r)
	}
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

func intersectScopes(a, b []string) []string {
	set := map[string]struct{}{}
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// verifyCodeVerifier checks the PKCE S256 binding. Only S256 is accepted;
// a stored challenge with any other method never matches.
func verifyCodeVerifier(challenge, method, verifier string) bool {
	challenge = strings.TrimSpace(challenge)
	if challenge == "" {
		// Confidential clients may have omitted PKCE.
		return true
	}

	verifier = strings.TrimSpace(verifier)
	if verifier == "" {
		return false
	}

	if !strings.EqualFold(strings.TrimSpace(method), domain.CodeChallengeMethodS256) {
		return false
	}

	sum := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(expected)) == 1
}
