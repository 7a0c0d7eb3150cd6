package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fablekids/auth/internal/auth/audit"
	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/fablekids/auth/pkg/cryptox"
	"github.com/fablekids/auth/pkg/idx"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/fablekids/auth/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrLoginRequired  = errors.New("login_required")
	ErrInvalidRequest = errors.New("invalid_request")

	// ErrUnsupportedResponseType means a response_type was present but is
	// not one this server issues. A missing response_type is
	// ErrInvalidRequest instead.
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")

	// ErrConsentRequired means an adult subject has not approved an
	// untrusted client's request. Distinct from the minor gate.
	ErrConsentRequired = errors.New("consent_required")

	// ErrGuardianApprovalPending means a consent session already exists for
	// this (child, client) pair and the guardian has not acted on it yet.
	ErrGuardianApprovalPending = errors.New("guardian_approval_pending")
)

// ConsentRequiredError is an alias to the SDK's ConsentRequiredError for
// consistency. Use authsdk.ConsentRequiredError directly in new code.
type ConsentRequiredError = authsdk.ConsentRequiredError

// DefaultConsentSessionTTL is how long a paused authorization request waits
// for the guardian before it lapses.
const DefaultConsentSessionTTL = 72 * time.Hour

// DefaultMinorAgeThreshold is the age (in years) below which the parental
// consent gate applies.
const DefaultMinorAgeThreshold = 13

// AuthorizeService encapsulates the OAuth2 authorization-code issuance flow,
// including the parental-consent gate for minors.
type AuthorizeService struct {
	Store      store.Store
	KeyManager *jwtx.KeyManager // used when response_type includes id_token
	Issuer     string
	CodeTTL    time.Duration // clamped to domain.MaxAuthorizationCodeTTL
	ConsentTTL time.Duration // consent session lifetime
	MinorAge   int           // years; subjects younger than this need guardian consent
	Audit      audit.Sink
}

// AuthorizeRequest captures the validated inputs required to issue an authorization code.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               []string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string

	// Username/password pair for interactive login (if no existing session).
	Username string
	Password string

	// Existing authenticated session context (e.g., from a bearer token).
	Session *SessionContext

	// Approved is set when the subject submitted the consent screen.
	// Untrusted clients require it for adult subjects; trusted first-party
	// clients skip the prompt. Minors go through the guardian gate instead.
	Approved bool
}

// SessionContext describes an already authenticated subject session.
type SessionContext struct {
	SubjectID string
	SessionID string
	AMR       []string
	Scopes    []string
}

// AuthorizeCodeResponse contains the authorization code and redirect
// information, plus an ID token when response_type was "code id_token".
type AuthorizeCodeResponse struct {
	Code        string
	RedirectURI string
	State       string
	IDToken     string
}

// Authorize implements the OAuth2 authorization code flow (RFC 6749 §4.1,
// OAuth 2.1 profile) with the hybrid "code id_token" response and the
// parental-consent gate.
//
// Validation order:
//
//  1. response_type must be "code" or "code id_token".
//  2. client_id must exist; redirect_uri must exactly match one of the
//     client's registered URIs (no prefix or wildcard matching).
//  3. PKCE: code_challenge_method must be S256. Public clients MUST send a
//     challenge; confidential clients may omit PKCE entirely.
//  4. Requested scopes must be registered scopes and a subset of the
//     client's allowed scopes.
//  5. The subject authenticates by session context or username/password.
//  6. Consent gate: minors need an active parental consent covering every
//     requested scope. A missing consent pauses the request into a
//     ConsentSession and fails with *ConsentRequiredError carrying the
//     resumption token; an existing pending session fails with
//     ErrGuardianApprovalPending. No code is minted in either case.
//
// On success the code is ≤60s single-use, stored only as a fingerprint.
func (s *AuthorizeService) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeCodeResponse, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	if strings.TrimSpace(req.ResponseType) == "" {
		return nil, ErrInvalidRequest
	}
	responseType := normalizeResponseType(req.ResponseType)
	if responseType == "" {
		return nil, ErrUnsupportedResponseType
	}
	if strings.TrimSpace(req.ClientID) == "" || strings.TrimSpace(req.RedirectURI) == "" {
		return nil, ErrInvalidRequest
	}

	client, err := s.Store.Clients().GetClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}

	// Exact-match redirect URI. A mismatch never redirects.
	if !client.AllowsRedirectURI(req.RedirectURI) {
		return nil, ErrInvalidRequest
	}

	challenge, err := validatePKCE(req.CodeChallenge, req.CodeChallengeMethod, client)
	if err != nil {
		return nil, err
	}

	requested := dedupe(req.Scope)
	if len(requested) == 0 {
		requested = client.Scopes
	}
	for _, scope := range requested {
		if !domain.KnownScope(scope) {
			return nil, ErrInvalidScope
		}
	}
	effective := intersectScopes(requested, client.Scopes)
	if len(effective) != len(requested) || len(effective) == 0 {
		return nil, ErrInvalidScope
	}

	subject, sessionID, amr, err := s.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}

	nonce := strings.TrimSpace(req.Nonce)
	if responseType == "code id_token" && nonce == "" {
		// OIDC requires a nonce whenever an ID token comes back via redirect.
		return nil, ErrInvalidRequest
	}

	if subject.IsMinor(now, s.minorAge()) {
		if err := s.checkMinorConsent(ctx, now, subject, client, effective, req); err != nil {
			return nil, err
		}
	} else if !client.Trusted && !req.Approved {
		return nil, ErrConsentRequired
	}

	code, record, err := s.prepareAuthorizationCode(now, subject.ID, client.ID, req.RedirectURI, challenge, effective, nonce, sessionID, amr)
	if err != nil {
		return nil, err
	}

	if err := s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, record); err != nil {
		return nil, err
	}

	resp := &AuthorizeCodeResponse{
		Code:        code,
		RedirectURI: req.RedirectURI,
		State:       req.State,
	}

	if responseType == "code id_token" {
		idToken, err := s.signAuthorizeIDToken(subject.ID, client.ID, sessionID, nonce, amr, now)
		if err != nil {
			return nil, err
		}
		resp.IDToken = idToken
	}

	log.Info("authorization code issued",
		"client_id", client.ID,
		"subject_id", subject.ID,
		"scopes", effective,
	)
	s.emit(ctx, audit.Record{
		Action:    audit.ActionAuthorizeIssued,
		Actor:     subject.ID,
		SubjectID: subject.ID,
		ClientID:  client.ID,
		Scopes:    effective,
		At:        now,
	})

	return resp, nil
}

func (s *AuthorizeService) authenticate(ctx context.Context, req AuthorizeRequest) (domain.Subject, string, []string, error) {
	log := slogx.FromContext(ctx)

	if req.Session != nil {
		if strings.TrimSpace(req.Session.SubjectID) == "" {
			return domain.Subject{}, "", nil, ErrInvalidGrant
		}
		subject, err := s.Store.Subjects().GetSubjectByID(ctx, req.Session.SubjectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Subject{}, "", nil, ErrInvalidGrant
			}
			return domain.Subject{}, "", nil, err
		}

		sessionID := req.Session.SessionID
		if sessionID == "" {
			sessionID = idx.New().String()
		}
		amr := dedupe(req.Session.AMR)
		if len(amr) == 0 {
			amr = []string{jwtx.AMRPassword}
		}
		return subject, sessionID, amr, nil
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return domain.Subject{}, "", nil, ErrLoginRequired
	}

	subject, err := s.Store.Subjects().GetSubjectByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Info("authorize: unknown username")
			return domain.Subject{}, "", nil, ErrInvalidCredentials
		}
		return domain.Subject{}, "", nil, err
	}

	if cryptox.VerifyPassword(req.Password, subject.PasswordHash) != nil {
		return domain.Subject{}, "", nil, ErrInvalidCredentials
	}

	return subject, idx.New().String(), []string{jwtx.AMRPassword}, nil
}

// checkMinorConsent enforces the guardian gate. It returns nil only when an
// active parental consent covers every requested scope; otherwise it pauses
// the request and reports how.
func (s *AuthorizeService) checkMinorConsent(
	ctx context.Context,
	now time.Time,
	child domain.Subject,
	client domain.Client,
	scopes []string,
	req AuthorizeRequest,
) error {
	consent, err := s.Store.ParentalConsents().GetParentalConsent(ctx, child.ID, client.ID)
	if err == nil && consent.IsActive(now) && consent.Covers(scopes) {
		return nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// Already waiting on the guardian? Don't mint a second session.
	if _, err := s.Store.ConsentSessions().GetPendingConsentSession(ctx, child.ID, client.ID); err == nil {
		return ErrGuardianApprovalPending
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	resumption, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	ttl := s.ConsentTTL
	if ttl <= 0 {
		ttl = DefaultConsentSessionTTL
	}

	session := domain.ConsentSession{
		ID:          idx.New().String(),
		TokenHash:   cryptox.FingerprintToken(resumption),
		ChildID:     child.ID,
		ClientID:    client.ID,
		Scopes:      scopes,
		RedirectURI: req.RedirectURI,
		State:       req.State,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	if err := s.Store.ConsentSessions().CreateConsentSession(ctx, session); err != nil {
		return err
	}

	s.emit(ctx, audit.Record{
		Action:    audit.ActionAuthorizePaused,
		SubjectID: child.ID,
		ClientID:  client.ID,
		Scopes:    scopes,
		At:        now,
	})

	return &ConsentRequiredError{
		ConsentSession: resumption,
		Scopes:         scopes,
	}
}

func (s *AuthorizeService) prepareAuthorizationCode(
	now time.Time,
	subjectID, clientID, redirectURI, challenge string,
	scopes []string,
	nonce, sessionID string,
	amr []string,
) (string, domain.AuthorizationCode, error) {
	code, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", domain.AuthorizationCode{}, err
	}

	ttl := s.CodeTTL
	if ttl <= 0 || ttl > domain.MaxAuthorizationCodeTTL {
		ttl = domain.MaxAuthorizationCodeTTL
	}

	method := ""
	if challenge != "" {
		method = domain.CodeChallengeMethodS256
	}

	record := domain.AuthorizationCode{
		ID:                  idx.New().String(),
		SubjectID:           subjectID,
		ClientID:            clientID,
		CodeHash:            cryptox.FingerprintToken(code),
		RedirectURI:         redirectURI,
		Scopes:              scopes,
		Nonce:               nonce,
		SessionID:           sessionID,
		AMR:                 dedupe(amr),
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}

	return code, record, nil
}

func (s *AuthorizeService) signAuthorizeIDToken(
	subjectID, clientID, sessionID, nonce string,
	amr []string,
	now time.Time,
) (string, error) {
	if s.KeyManager == nil {
		return "", ErrSignerUnavailable
	}
	signer := s.KeyManager.GetSigner()
	if signer == nil {
		return "", ErrSignerUnavailable
	}

	claims := jwt.MapClaims{
		"iss":       s.Issuer,
		"sub":       subjectID,
		"aud":       clientID,
		"iat":       now.Unix(),
		"exp":       now.Add(jwtx.DefaultAccessTokenTTL).Unix(),
		"auth_time": now.Unix(),
		"sid":       sessionID,
		"amr":       amr,
		"nonce":     nonce,
	}
	return signer.SignRaw(claims)
}

func (s *AuthorizeService) minorAge() int {
	if s.MinorAge > 0 {
		return s.MinorAge
	}
	return DefaultMinorAgeThreshold
}

func (s *AuthorizeService) emit(ctx context.Context, r audit.Record) {
	if s.Audit != nil {
		s.Audit.Emit(ctx, r)
	}
}

func normalizeResponseType(rt string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(rt)))
	switch {
	case len(parts) == 1 && parts[0] == "code":
		return "code"
	case len(parts) == 2 && parts[0] == "code" && parts[1] == "id_token",
		len(parts) == 2 && parts[0] == "id_token" && parts[1] == "code":
		return "code id_token"
	default:
		return ""
	}
}

// validatePKCE enforces the S256-only rule. Public clients must send a
// challenge; confidential clients may skip PKCE entirely.
func validatePKCE(challenge, method string, client domain.Client) (string, error) {
	trimmedChallenge := strings.TrimSpace(challenge)
	trimmedMethod := strings.TrimSpace(method)

	if trimmedChallenge == "" {
		if !client.IsConfidential() {
			return "", ErrInvalidRequest
		}
		return "", nil
	}

	// Method defaults to S256 when omitted; anything else (including
	// "plain") is rejected outright.
	if trimmedMethod != "" && !strings.EqualFold(trimmedMethod, domain.CodeChallengeMethodS256) {
		return "", ErrInvalidRequest
	}

	return trimmedChallenge, nil
}
