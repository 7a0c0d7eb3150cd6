/*
Package authsdk provides a client SDK for the FableKids authorization server.

# Overview

The authsdk package implements an OAuth 2.1 / OIDC client for the FableKids
authorization server. It covers the public surface: discovery, JWKS, the
token endpoint, token revocation, userinfo, and health checks. It also
defines the wire types and error taxonomy shared between the server handlers
and SDK consumers.

Create an SDKClient to interact with the server:

	client := authsdk.NewSDKClient("https://auth.fablekids.example")

	// Fetch provider metadata
	doc, err := client.GetDiscovery(ctx)

	// Redeem an authorization code with PKCE
	tokens, err := client.ExchangeAuthorizationCode(ctx, clientID, "", code, redirectURI, verifier)

	// Rotate the refresh token
	tokens, err = client.RefreshGrant(ctx, clientID, tokens.RefreshToken)

# Error Handling

Server errors follow RFC 6749 and arrive as *OAuth2Error values:

	_, err := client.RefreshGrant(ctx, clientID, oldToken)
	var oe *authsdk.OAuth2Error
	if errors.As(err, &oe) && oe.Code == authsdk.ErrorCodeInvalidGrant {
		// token was rotated or the family was revoked; re-authorize
	}

Authorization requests on behalf of a minor may pause for parental consent.
That condition surfaces as *ConsentRequiredError carrying the resumption
token the guardian flow uses to approve the request.
*/
package authsdk
