/**
 * @description
 * This file contains the HTTP handlers for the orchestration service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tamfolio/treegar-orchestration-service/internal/app"
	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
	"github.com/tamfolio/treegar-orchestration-service/internal/payout"
	"github.com/tamfolio/treegar-orchestration-service/internal/pin"
	"github.com/tamfolio/treegar-orchestration-service/internal/store"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service) *Handlers {
	return &Handlers{service: service}
}

type createDraftRequest struct {
	Kind      string `json:"kind"`
	GroupName string `json:"group_name,omitempty"`
}

type lineItemRequest struct {
	BankID          string `json:"bank_id,omitempty"`
	AccountNumber   string `json:"account_number,omitempty"`
	RecipientTag    string `json:"recipient_tag,omitempty"`
	Amount          string `json:"amount"`
	Narration       string `json:"narration"`
	SaveBeneficiary bool   `json:"save_beneficiary"`
}

type challengeDigitRequest struct {
	Digit string `json:"digit"`
}

type challengePasteRequest struct {
	Text string `json:"text"`
}

type authorizeResponse struct {
	ChallengeID string `json:"challenge_id"`
}

// customer resolves the authenticated customer or writes the error response.
func (h *Handlers) customer(w http.ResponseWriter, r *http.Request) (*domain.Customer, bool) {
	subject, ok := GetSubjectID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	customer, err := h.service.ResolveCustomer(r.Context(), subject)
	if err != nil {
		if errors.Is(err, store.ErrCustomerNotFound) {
			h.writeError(w, http.StatusNotFound, "Customer profile not found")
			return nil, false
		}
		log.Printf("level=error component=api msg=\"failed to resolve customer\" subject=%s err=%v", subject, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to resolve customer")
		return nil, false
	}
	return customer, true
}

// CreateDraftHandler opens a new transfer draft.
func (h *Handlers) CreateDraftHandler(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.customer(w, r)
	if !ok {
		return
	}

	var req createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	draft, err := h.service.CreateDraft(r.Context(), customer.ID, domain.DraftKind(req.Kind), req.GroupName)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, draft)
}

// GetDraftHandler returns a draft snapshot with live resolution states.
func (h *Handlers) GetDraftHandler(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.customer(w, r)
	if !ok {
		return
	}
	draftID, ok := h.pathID(w, r, "draftID")
	if !ok {
		return
	}

	draft, err := h.service.Draft(r.Context(), customer.ID, draftID)
	if err != nil {
		h.writeDraftError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draft)
}

// UpsertLineItemHandler creates or updates a draft line item.
func (h *Handlers) UpsertLineItemHandler(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.customer(w, r)
	if !ok {
		return
	}
	draftID, ok := h.pathID(w, r, "draftID")
	if !ok {
		return
	}

	var req lineItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	input := app.LineItemInput{
		BankID:          req.BankID,
		AccountNumber:   req.AccountNumber,
		RecipientTag:    req.RecipientTag,
		Amount:          req.Amount,
		Narration:       req.Narration,
		SaveBeneficiary: req.SaveBeneficiary,
	}
	if raw := chi.URLParam(r, "itemID"); raw != "" {
		itemID, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid item id")
			return
		}
		input.ItemID = &itemID
	}

	draft, err := h.service.UpsertLineItem(r.Context(), customer.ID, draftID, input)
	if err != nil {
		if errors.Is(err, payout.ErrInvalidAmount) {
			h.writeError(w, http.StatusBadRequest, "Amount must be a number with at most two decimal places")
			return
		}
		h.writeDraftError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, draft)
}

// RemoveLineItemHandler deletes a draft line item.
func (h *Handlers) RemoveLineItemHandler(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.customer(w, r)
	if !ok {
		return
	}
	draftID, ok := h.pathID(w, r, "draftID")
	if !ok {
		return
	}
	itemID, ok := h.pathID(w, r, "itemID")
	if !ok {
		return
	}

	if err := h.service.RemoveLineItem(r.Context(), customer.ID, draftID, itemID); err != nil {
		h.writeDraftError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// AuthorizeDraftHandler freezes a draft into an intent and opens a PIN challenge.
func (h *Handlers) AuthorizeDraftHandler(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.customer(w, r)
	if !ok {
		return
	}
	draftID, ok := h.pathID(w, r, "draftID")
	if !ok {
		return
	}

	challengeID, err := h.service.Authorize(r.Context(), customer.ID, draftID)
	if err != nil {
		var vErr *payout.ValidationError
		switch {
		case errors.As(err, &vErr):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error": "Draft failed validation",
				"items": vErr.Items,
			})
		case errors.Is(err, app.ErrIntentAlreadyPending):
			h.writeError(w, http.StatusConflict, "Another transfer is already awaiting authorization")
		case errors.Is(err, app.ErrEmptyDraft):
			h.writeError(w, http.StatusUnprocessableEntity, "Draft has no line items")
		default:
			h.writeDraftError(w, err)
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, authorizeResponse{ChallengeID: challengeID.String()})
}

// GetChallengeHandler returns the masked challenge view.
func (h *Handlers) GetChallengeHandler(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := h.pathID(w, r, "challengeID")
	if !ok {
		return
	}
	view, err := h.service.Challenge(challengeID)
	if err != nil {
		h.writeChallengeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ChallengeDigitHandler records one typed PIN digit.
func (h *Handlers) ChallengeDigitHandler(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := h.pathID(w, r, "challengeID")
	if !ok {
		return
	}
	var req challengeDigitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Digit) != 1 {
		h.writeError(w, http.StatusBadRequest, "Body must carry a single digit")
		return
	}
	view, err := h.service.EnterChallengeDigit(challengeID, req.Digit[0])
	if err != nil {
		h.writeChallengeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ChallengeBackspaceHandler records a backspace keystroke.
func (h *Handlers) ChallengeBackspaceHandler(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := h.pathID(w, r, "challengeID")
	if !ok {
		return
	}
	view, err := h.service.ChallengeBackspace(challengeID)
	if err != nil {
		h.writeChallengeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ChallengePasteHandler distributes pasted digits across the slots.
func (h *Handlers) ChallengePasteHandler(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := h.pathID(w, r, "challengeID")
	if !ok {
		return
	}
	var req challengePasteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	view, err := h.service.ChallengePaste(challengeID, req.Text)
	if err != nil {
		h.writeChallengeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ChallengeSubmitHandler submits the collected PIN.
func (h *Handlers) ChallengeSubmitHandler(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := h.pathID(w, r, "challengeID")
	if !ok {
		return
	}
	view, err := h.service.SubmitChallenge(r.Context(), challengeID)
	if err != nil {
		if errors.Is(err, pin.ErrRejected) {
			// The challenge reopened for another attempt; hand the cleared
			// view back alongside the rejection.
			h.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error":     "Incorrect transaction PIN",
				"challenge": view,
			})
			return
		}
		h.writeChallengeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ChallengeCloseHandler cancels a challenge.
func (h *Handlers) ChallengeCloseHandler(w http.ResponseWriter, r *http.Request) {
	challengeID, ok := h.pathID(w, r, "challengeID")
	if !ok {
		return
	}
	if err := h.service.CloseChallenge(r.Context(), challengeID); err != nil {
		h.writeChallengeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// VerificationOverviewHandler returns the KYC journey read model.
func (h *Handlers) VerificationOverviewHandler(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.customer(w, r)
	if !ok {
		return
	}
	overview, err := h.service.Overview(r.Context(), customer)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to build verification overview\" customer_id=%s err=%v", customer.ID, err)
		h.writeError(w, http.StatusBadGateway, "Unable to load verification records")
		return
	}
	h.writeJSON(w, http.StatusOK, overview)
}

// VerificationRefreshHandler schedules a delayed record re-fetch.
func (h *Handlers) VerificationRefreshHandler(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.customer(w, r)
	if !ok {
		return
	}
	h.service.RequestVerificationRefresh(customer)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

// ListBeneficiariesHandler lists the user's saved recipients.
func (h *Handlers) ListBeneficiariesHandler(w http.ResponseWriter, r *http.Request) {
	customer, ok := h.customer(w, r)
	if !ok {
		return
	}
	beneficiaries, err := h.service.Beneficiaries(r.Context(), customer.ID)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to list beneficiaries\" customer_id=%s err=%v", customer.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list beneficiaries")
		return
	}
	if beneficiaries == nil {
		beneficiaries = []domain.Beneficiary{}
	}
	h.writeJSON(w, http.StatusOK, beneficiaries)
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) writeDraftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrDraftNotFound):
		h.writeError(w, http.StatusNotFound, "Draft not found")
	case errors.Is(err, app.ErrLineItemNotFound):
		h.writeError(w, http.StatusNotFound, "Line item not found")
	case errors.Is(err, app.ErrNotDraftOwner):
		h.writeError(w, http.StatusForbidden, "Draft belongs to another user")
	default:
		h.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *Handlers) writeChallengeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrChallengeNotFound), errors.Is(err, pin.ErrChallengeClosed):
		h.writeError(w, http.StatusNotFound, "Challenge not found")
	case errors.Is(err, pin.ErrSubmitInFlight):
		h.writeError(w, http.StatusConflict, "A submission is already in flight")
	case errors.Is(err, pin.ErrNotADigit), errors.Is(err, pin.ErrBadPaste), errors.Is(err, pin.ErrIncompletePin):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api msg=\"challenge operation failed\" err=%v", err)
		h.writeError(w, http.StatusBadGateway, "Transfer submission failed")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
