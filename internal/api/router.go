/**
 * @description
 * This file sets up the HTTP router for the orchestration service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, panic recovery, CORS, and authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates and returns the router for the orchestration service.
func Routes(h *Handlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		// Transfer draft endpoints
		r.Post("/drafts", h.CreateDraftHandler)
		r.Get("/drafts/{draftID}", h.GetDraftHandler)
		r.Post("/drafts/{draftID}/items", h.UpsertLineItemHandler)
		r.Put("/drafts/{draftID}/items/{itemID}", h.UpsertLineItemHandler)
		r.Delete("/drafts/{draftID}/items/{itemID}", h.RemoveLineItemHandler)
		r.Post("/drafts/{draftID}/authorize", h.AuthorizeDraftHandler)

		// PIN challenge endpoints
		r.Get("/challenges/{challengeID}", h.GetChallengeHandler)
		r.Post("/challenges/{challengeID}/digits", h.ChallengeDigitHandler)
		r.Post("/challenges/{challengeID}/backspace", h.ChallengeBackspaceHandler)
		r.Post("/challenges/{challengeID}/paste", h.ChallengePasteHandler)
		r.Post("/challenges/{challengeID}/submit", h.ChallengeSubmitHandler)
		r.Delete("/challenges/{challengeID}", h.ChallengeCloseHandler)

		// Verification endpoints
		r.Get("/verification/overview", h.VerificationOverviewHandler)
		r.Post("/verification/refresh", h.VerificationRefreshHandler)

		// Saved beneficiaries
		r.Get("/beneficiaries", h.ListBeneficiariesHandler)
	})

	return r
}
