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

// SubjectsHandler handles subject account management.
type SubjectsHandler struct {
	SubjectService *service.SubjectService
}

// HandleCreate handles POST /v1/subjects
//
//	@Summary		Create a subject account
//	@Description	Registers a new subject. Accounts whose birthdate makes them a minor must
//	@Description	name an adult guardian; the guardian must already exist and pass the adult
//	@Description	age check.
//	@Tags			Subjects
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			Authorization	header		string							true	"Bearer token with admin:write scope"
//	@Param			request			body		authsdk.CreateSubjectRequest	true	"Subject creation request"
//	@Success		201				{object}	authsdk.CreateSubjectResponse	"Created subject"
//	@Failure		400				{object}	authsdk.ErrorResponse			"Missing or invalid fields, or missing guardian"
//	@Failure		403				{object}	authsdk.ErrorResponse			"Guardian failed the adult age check"
//	@Failure		409				{object}	authsdk.ErrorResponse			"Username already taken"
//	@Failure		500				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Router			/v1/subjects [post].
func (h *SubjectsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.CreateSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON in request body",
		})
		return
	}

	if strings.TrimSpace(req.Username) == "" || req.Password == "" || req.Birthdate == 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "username, password and birthdate are required",
		})
		return
	}

	var guardianID *string
	if req.GuardianID != "" {
		guardianID = &req.GuardianID
	}

	subject, err := h.SubjectService.CreateSubject(ctx, service.CreateSubjectRequest{
		Username:               strings.TrimSpace(req.Username),
		Email:                  strings.TrimSpace(req.Email),
		Password:               req.Password,
		Birthdate:              time.Unix(req.Birthdate, 0).UTC(),
		GuardianID:             guardianID,
		CharacterID:            req.CharacterID,
		PreferredCharacterName: req.PreferredCharacterName,
		AppearanceURL:          req.AppearanceURL,
		Traits:                 req.Traits,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUsernameTaken):
			httpx.WriteJSON(w, http.StatusConflict, authsdk.ErrorResponse{
				Error:            "username_taken",
				ErrorDescription: "Username is already taken",
			})
		case errors.Is(err, service.ErrGuardianRequired):
			httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
				Error:            "invalid_request",
				ErrorDescription: "Minor accounts must name an existing adult guardian",
			})
		case errors.Is(err, service.ErrAgeVerificationFailed):
			authsdk.ErrAgeVerificationFailed.WriteError(w)
		case errors.Is(err, service.ErrInvalidRequest):
			httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{
				Error:            "invalid_request",
				ErrorDescription: "Subject creation request is invalid",
			})
		default:
			log.Error("failed to create subject", "error", err)
			httpx.WriteJSON(w, http.StatusInternalServerError, authsdk.ErrorResponse{
				Error:            "server_error",
				ErrorDescription: "Failed to create subject",
			})
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.CreateSubjectResponse{
		SubjectID: subject.ID,
		Username:  subject.Username,
	})
}
