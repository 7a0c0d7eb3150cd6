package authsdk

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	bootstrapRequiredReason = "required"
	bootstrapOnlyAlphanum   = "must only contain a-z, A-Z, 0-9, _ or -"
)

// Validate checks if the bootstrap request fields are valid.
// Returns a map of field names to error messages, or nil if all fields are valid.
func (b BootstrapRequest) Validate() map[string]string {
	errs := make(map[string]string)

	reName := regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	reScope := regexp.MustCompile(`^[a-z][a-z0-9._:-]*$`)

	b.validateUsername(errs, reName)
	b.validatePassword(errs)
	b.validateClientName(errs, reName)
	b.validateRedirectURIs(errs)
	b.validateClientScopes(errs, reScope)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (b BootstrapRequest) validateUsername(errs map[string]string, reName *regexp.Regexp) {
	username := strings.TrimSpace(b.AdminUsername)
	switch {
	case username == "":
		errs["admin_username"] = bootstrapRequiredReason
	case len(username) < 3 || len(username) > 32:
		errs["admin_username"] = "must be 3-32 characters"
	case !reName.MatchString(username):
		errs["admin_username"] = bootstrapOnlyAlphanum
	}
}

func (b BootstrapRequest) validatePassword(errs map[string]string) {
	pw := b.AdminPassword
	switch {
	case pw == "":
		errs["admin_password"] = bootstrapRequiredReason
	case len(pw) < 8:
		errs["admin_password"] = "too short (min 8)"
	case len(pw) > 128:
		errs["admin_password"] = "too long (max 128)"
	}
}

func (b BootstrapRequest) validateClientName(errs map[string]string, reName *regexp.Regexp) {
	cname := strings.TrimSpace(b.ClientName)
	switch {
	case cname == "":
		errs["client_name"] = bootstrapRequiredReason
	case len(cname) > 100:
		errs["client_name"] = "too long (max 100)"
	case !reName.MatchString(cname):
		errs["client_name"] = bootstrapOnlyAlphanum
	}
}

func (b BootstrapRequest) validateRedirectURIs(errs map[string]string) {
	if len(b.ClientRedirectURIs) == 0 {
		errs["client_redirect_uris"] = "at least one redirect URI required"
		return
	}

	seen := make(map[string]struct{}, len(b.ClientRedirectURIs))
	for _, uri := range b.ClientRedirectURIs {
		u, err := url.Parse(uri)
		if err != nil || !u.IsAbs() {
			errs["client_redirect_uris"] = fmt.Sprintf("invalid redirect URI: %q", uri)
			return
		}
		if _, dup := seen[uri]; dup {
			errs["client_redirect_uris"] = "duplicate redirect URIs"
			return
		}
		seen[uri] = struct{}{}
	}
}

func (b BootstrapRequest) validateClientScopes(errs map[string]string, reScope *regexp.Regexp) {
	// Empty means the server grants its default scope set.
	if len(b.ClientScopes) == 0 {
		return
	}

	seen := make(map[string]struct{}, len(b.ClientScopes))
	for _, s := range b.ClientScopes {
		if !reScope.MatchString(s) {
			errs["client_scopes"] = fmt.Sprintf("invalid scope: %q", s)
			return
		}
		if _, dup := seen[s]; dup {
			errs["client_scopes"] = "duplicate scopes"
			return
		}
		seen[s] = struct{}{}
	}
}
