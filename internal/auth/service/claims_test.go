package service

import (
	"context"
	"testing"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestBuildUserInfoClaims(t *testing.T) {
	t.Parallel()

	sub := domain.Subject{
		ID:                     "subj_01",
		Email:                  "stella@example.com",
		CharacterID:            "char_fox_02",
		PreferredCharacterName: "Juniper the Fox",
		AppearanceURL:          "https://cdn.fablekids.example/avatars/fox-02.png",
		Traits:                 map[string]string{"favorite_color": "green"},
		Libraries: []domain.Library{
			{ID: "lib_bedtime", Name: "Bedtime", Writable: false},
			{ID: "lib_drafts", Name: "My Drafts", Writable: true},
		},
	}

	tests := []struct {
		name     string
		scopes   []string
		wantKeys []string
	}{
		{
			name:     "no scopes still yields sub",
			scopes:   nil,
			wantKeys: []string{"sub"},
		},
		{
			name:     "openid alone adds nothing",
			scopes:   []string{domain.ScopeOpenID},
			wantKeys: []string{"sub"},
		},
		{
			name:     "email",
			scopes:   []string{domain.ScopeEmail},
			wantKeys: []string{"sub", "email"},
		},
		{
			name:     "kid profile",
			scopes:   []string{domain.ScopeKidProfile},
			wantKeys: []string{"sub", "character_id", "preferred_character_name", "appearance_url", "traits"},
		},
		{
			name:     "library read",
			scopes:   []string{domain.ScopeLibraryRead},
			wantKeys: []string{"sub", "libraries"},
		},
		{
			name:     "write scopes expose nothing",
			scopes:   []string{domain.ScopeLibraryWrite, domain.ScopeEmotionWrite},
			wantKeys: []string{"sub"},
		},
		{
			name:   "combined",
			scopes: []string{domain.ScopeOpenID, domain.ScopeEmail, domain.ScopeKidProfile, domain.ScopeLibraryRead},
			wantKeys: []string{
				"sub", "email",
				"character_id", "preferred_character_name", "appearance_url", "traits",
				"libraries",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := BuildUserInfoClaims(sub, tt.scopes)

			keys := make([]string, 0, len(claims))
			for k := range claims {
				keys = append(keys, k)
			}
			require.ElementsMatch(t, tt.wantKeys, keys)
			require.Equal(t, sub.ID, claims["sub"])
		})
	}
}

func TestBuildUserInfoClaimsValues(t *testing.T) {
	t.Parallel()

	sub := domain.Subject{
		ID:    "subj_01",
		Email: "stella@example.com",
		Libraries: []domain.Library{
			{ID: "lib_drafts", Name: "My Drafts", Writable: true},
		},
	}

	claims := BuildUserInfoClaims(sub, []string{domain.ScopeEmail, domain.ScopeLibraryRead})
	require.Equal(t, "stella@example.com", claims["email"])

	libraries, ok := claims["libraries"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, libraries, 1)
	require.Equal(t, "lib_drafts", libraries[0]["id"])
	require.Equal(t, true, libraries[0]["writable"])
}

func TestBuildUserInfoClaimsOmitsEmptyTraits(t *testing.T) {
	t.Parallel()

	claims := BuildUserInfoClaims(domain.Subject{ID: "x"}, []string{domain.ScopeKidProfile})
	require.NotContains(t, claims, "traits")
	require.Contains(t, claims, "character_id")
}

func TestUserInfoService(t *testing.T) {
	s := newServiceStore(t)
	svc := &UserInfoService{Store: s}
	ctx := context.Background()

	guardian := seedAdult(t, s, "parent")
	child := seedChild(t, s, "stella", guardian.ID)

	claims, err := svc.UserInfo(ctx, child.ID, []string{domain.ScopeKidProfile})
	require.NoError(t, err)
	require.Equal(t, child.ID, claims["sub"])
	require.Equal(t, "char_fox_02", claims["character_id"])

	_, err = svc.UserInfo(ctx, "ghost", []string{domain.ScopeOpenID})
	require.ErrorIs(t, err, ErrInvalidGrant)
}
