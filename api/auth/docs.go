// Package auth registers the Swagger specification for the FableKids
// authorization server. Served by httpSwagger at /swagger/.
package auth

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "FableKids Platform Team",
            "url": "https://github.com/fablekids/auth"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/.well-known/openid-configuration": {
            "get": {
                "produces": ["application/json"],
                "tags": ["discovery"],
                "summary": "OIDC provider metadata",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/.well-known/jwks.json": {
            "get": {
                "produces": ["application/json"],
                "tags": ["discovery"],
                "summary": "JSON Web Key Set with active and grace-period signing keys",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/oauth2/authorize": {
            "get": {
                "produces": ["application/json"],
                "tags": ["oauth2"],
                "summary": "Authorization endpoint (code, code id_token) with PKCE S256 and parental-consent gating",
                "responses": {
                    "302": {"description": "Redirect with code"},
                    "400": {"description": "invalid_request / invalid_scope"},
                    "403": {"description": "parental_consent_required / guardian_approval_pending"}
                }
            }
        },
        "/v1/oauth2/token": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["oauth2"],
                "summary": "Token endpoint: authorization_code and refresh_token grants",
                "responses": {
                    "200": {"description": "Token pair"},
                    "401": {"description": "invalid_grant / invalid_client"},
                    "503": {"description": "temporarily_unavailable"}
                }
            }
        },
        "/v1/oauth2/revoke": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "tags": ["oauth2"],
                "summary": "RFC 7009 token revocation (always 200)",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/oauth2/introspect": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["oauth2"],
                "summary": "RFC 7662 token introspection",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/userinfo": {
            "get": {
                "produces": ["application/json"],
                "tags": ["oidc"],
                "summary": "Scope-filtered subject claims",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}, "401": {"description": "invalid_token"}}
            }
        },
        "/v1/consents": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["consent"],
                "summary": "Guardian grants parental consent (idempotent upsert)",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Consent stored"},
                    "403": {"description": "access_denied / age_verification_failed"}
                }
            },
            "get": {
                "produces": ["application/json"],
                "tags": ["consent"],
                "summary": "List the guardian's consent records",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/consents/revoke": {
            "post": {
                "consumes": ["application/json"],
                "tags": ["consent"],
                "summary": "Guardian revokes consent; cascades to tokens and codes",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "Revoked"}}
            }
        },
        "/v1/clients": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Register an OAuth2 client",
                "security": [{"BearerAuth": []}],
                "responses": {"201": {"description": "Created"}}
            },
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "List registered clients",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/keys/rotate": {
            "post": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Rotate signing keys; retired keys keep verifying through the grace period",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/livez": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/readyz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Readiness probe (database + signer checks)",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Not ready"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "JWT access token. Format: \"Bearer {token}\"."
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "FableKids Authorization Server API",
	Description:      "Kid-safe OAuth 2.1 / OpenID Connect 1.0 authorization server with parental-consent gating for minors. Tokens are signed with ES256 or EdDSA and verifiable via the JWKS endpoint.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
