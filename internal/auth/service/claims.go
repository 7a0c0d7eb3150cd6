package service

import (
	"context"
	"errors"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/store"
)

// claimBuilder copies one scope's worth of claims from the subject record
// into the response map.
type claimBuilder func(sub domain.Subject, out map[string]any)

// scopeClaims is the static scope → claims table. Userinfo responses are a
// pure function of (granted scopes, subject record): a scope absent from
// this table contributes nothing, and write scopes grant no read access.
var scopeClaims = map[string]claimBuilder{
	domain.ScopeEmail: func(sub domain.Subject, out map[string]any) {
		out["email"] = sub.Email
	},
	domain.ScopeKidProfile: func(sub domain.Subject, out map[string]any) {
		out["character_id"] = sub.CharacterID
		out["preferred_character_name"] = sub.PreferredCharacterName
		out["appearance_url"] = sub.AppearanceURL
		if len(sub.Traits) > 0 {
			out["traits"] = sub.Traits
		}
	},
	domain.ScopeLibraryRead: func(sub domain.Subject, out map[string]any) {
		libraries := make([]map[string]any, 0, len(sub.Libraries))
		for _, lib := range sub.Libraries {
			libraries = append(libraries, map[string]any{
				"id":       lib.ID,
				"name":     lib.Name,
				"writable": lib.Writable,
			})
		}
		out["libraries"] = libraries
	},
}

// BuildUserInfoClaims assembles the userinfo claim set for the granted
// scopes. "sub" is always present; everything else comes from scopeClaims.
func BuildUserInfoClaims(sub domain.Subject, scopes []string) map[string]any {
	out := map[string]any{"sub": sub.ID}

	for _, scope := range scopes {
		if build, ok := scopeClaims[scope]; ok {
			build(sub, out)
		}
	}

	return out
}

// UserInfoService serves the OIDC userinfo endpoint.
type UserInfoService struct {
	Store store.Store
}

// UserInfo loads the subject and filters its record down to the claims the
// token's scopes allow.
func (s *UserInfoService) UserInfo(ctx context.Context, subjectID string, scopes []string) (map[string]any, error) {
	subject, err := s.Store.Subjects().GetSubjectByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	return BuildUserInfoClaims(subject, scopes), nil
}
