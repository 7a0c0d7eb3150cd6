package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/pkg/authsdk"
	"github.com/fablekids/auth/pkg/httpx"
	"github.com/fablekids/auth/pkg/slogx"
)

// ClientsHandler handles all client management endpoints.
type ClientsHandler struct {
	ClientService *service.ClientService
}

// HandleCreate handles POST /v1/clients
//
//	@Summary		Create OAuth2 Client
//	@Description	Registers a new OAuth2 client. Redirect URIs are matched exactly at
//	@Description	authorize time, so they must be complete URLs. If confidential=true, a
//	@Description	secret is auto-generated and returned once. Trusted clients skip the
//	@Description	adult consent prompt; the minor consent gate applies regardless.
//	@Tags			Clients
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string							true	"Bearer token with admin:write scope"
//	@Param			request			body		authsdk.CreateClientRequest		true	"Client creation request"
//	@Success		201				{object}	authsdk.CreateClientResponse	"client_id and client_secret (if confidential)"
//	@Failure		400				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Router			/v1/clients [post].
func (h *ClientsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON in request body",
		})
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Client name is required",
		})
		return
	}

	if len(req.RedirectURIs) == 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "At least one redirect URI is required",
		})
		return
	}

	if len(req.Scopes) == 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "At least one scope is required",
		})
		return
	}

	clientID, secret, err := h.ClientService.CreateClient(
		ctx,
		req.Name,
		req.RedirectURIs,
		req.Confidential,
		req.Scopes,
		req.Trusted,
	)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) || errors.Is(err, service.ErrInvalidScope) {
			httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
				Error:            "invalid_request",
				ErrorDescription: "Client registration request is invalid",
			})
			return
		}
		log.Error("failed to create client", "error", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, authsdk.ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "Failed to create client",
		})
		return
	}

	// Secret is only returned once at creation time
	httpx.WriteJSON(w, http.StatusCreated, authsdk.CreateClientResponse{
		ClientID:     clientID,
		ClientSecret: secret,
	})
}

// HandleList handles GET /v1/clients
//
//	@Summary		List OAuth2 Clients
//	@Description	Returns all OAuth2 clients. Protected clients are flagged.
//	@Tags			Clients
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string						true	"Bearer token with admin:read scope"
//	@Success		200				{object}	authsdk.ListClientsResponse	"List of clients"
//	@Failure		401				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse		"error, error_description"
//	@Router			/v1/clients [get].
func (h *ClientsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clients, err := h.ClientService.ListClients(ctx)
	if err != nil {
		log.Error("failed to list clients", "error", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, authsdk.ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "Failed to list clients",
		})
		return
	}

	clientResponses := make([]authsdk.ClientInfo, len(clients))
	for i, client := range clients {
		clientResponses[i] = authsdk.ClientInfo{
			ID:           client.ID,
			Name:         client.Name,
			RedirectURIs: client.RedirectURIs,
			Scopes:       client.Scopes,
			HasSecret:    client.SecretHash != "",
			Trusted:      client.Trusted,
			Protected:    client.Protected,
			CreatedAt:    client.CreatedAt.Format(time.RFC3339),
		}
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.ListClientsResponse{
		Clients: clientResponses,
	})
}

// HandleUpdateRedirectURIs handles PUT /v1/clients/:id/redirect-uris
//
//	@Summary		Replace a client's redirect URIs
//	@Description	Replaces the registered redirect URIs for a client. The new list takes
//	@Description	effect immediately; authorization requests using a removed URI fail.
//	@Tags			Clients
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header	string	true	"Bearer token with admin:write scope"
//	@Param			id				path	string	true	"Client ID (ULID)"
//	@Param			request			body	object	true	"{"redirect_uris": [...]}"
//	@Success		204				"Redirect URIs replaced"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		404				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/v1/clients/{id}/redirect-uris [put].
func (h *ClientsHandler) HandleUpdateRedirectURIs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clientID := r.PathValue("id")

	var req struct {
		RedirectURIs []string `json:"redirect_uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON in request body",
		})
		return
	}
	if len(req.RedirectURIs) == 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "At least one redirect URI is required",
		})
		return
	}

	if err := h.ClientService.UpdateRedirectURIs(ctx, clientID, req.RedirectURIs); err != nil {
		switch {
		case errors.Is(err, service.ErrClientNotFound):
			httpx.WriteJSON(w, http.StatusNotFound, authsdk.ErrorResponse{
				Error:            "client_not_found",
				ErrorDescription: "Client not found",
			})
		case errors.Is(err, service.ErrInvalidRequest):
			httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
				Error:            "invalid_request",
				ErrorDescription: "Redirect URI list is invalid",
			})
		default:
			log.Error("failed to update redirect URIs", "error", err, "client_id", clientID)
			httpx.WriteJSON(w, http.StatusInternalServerError, authsdk.ErrorResponse{
				Error:            "server_error",
				ErrorDescription: "Failed to update redirect URIs",
			})
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete handles DELETE /v1/clients/:id
//
//	@Summary		Delete OAuth2 Client
//	@Description	Deletes an OAuth2 client by ID. Protected clients cannot be deleted.
//	@Tags			Clients
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header	string	true	"Bearer token with admin:write scope"
//	@Param			id				path	string	true	"Client ID (ULID)"
//	@Success		204				"Client deleted successfully"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		403				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		404				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		500				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Router			/v1/clients/{id} [delete].
func (h *ClientsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	clientID := r.PathValue("id")

	err := h.ClientService.DeleteClient(ctx, clientID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrClientNotFound):
			httpx.WriteJSON(w, http.StatusNotFound, authsdk.ErrorResponse{
				Error:            "client_not_found",
				ErrorDescription: "Client not found",
			})
		case errors.Is(err, service.ErrClientProtected):
			httpx.WriteJSON(w, http.StatusForbidden, authsdk.ErrorResponse{
				Error:            "client_protected",
				ErrorDescription: "Cannot delete protected client",
			})
		default:
			log.Error("failed to delete client", "error", err, "client_id", clientID)
			httpx.WriteJSON(w, http.StatusInternalServerError, authsdk.ErrorResponse{
				Error:            "server_error",
				ErrorDescription: "Failed to delete client",
			})
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
