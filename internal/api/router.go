package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/storycast/storycast/internal/api/middleware"
	"github.com/storycast/storycast/internal/api/response"
	"github.com/storycast/storycast/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateProject  http.HandlerFunc
	ListProjects   http.HandlerFunc
	GetProject     http.HandlerFunc
	UpdateSettings http.HandlerFunc

	CreateScene http.HandlerFunc
	ListScenes  http.HandlerFunc

	ListUtterances    http.HandlerFunc
	UpdateUtterance   http.HandlerFunc
	GenerateUtterance http.HandlerFunc

	PutCharacterVoice http.HandlerFunc
	ListCharacters    http.HandlerFunc

	StartBulk   http.HandlerFunc
	BulkStatus  http.HandlerFunc
	CancelBulk  http.HandlerFunc
	BulkHistory http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
	UsageHandler     http.HandlerFunc
}

// NewRouter assembles the chi router: a public health probe, the
// authenticated project and audio surface, and an admin-scoped group
// for key management and usage reporting.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Route("/api/v1", func(r chi.Router) {
		// Health stays public so load balancer probes need no key.
		r.Get("/health", stub501(deps.HealthHandler))

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate)
			r.Use(deps.RateLimit.Limit)

			r.Post("/projects", stub501(deps.CreateProject))
			r.Get("/projects", stub501(deps.ListProjects))
			r.Get("/projects/{projectID}", stub501(deps.GetProject))
			r.Patch("/projects/{projectID}/settings", stub501(deps.UpdateSettings))
			r.Post("/projects/{projectID}/scenes", stub501(deps.CreateScene))
			r.Get("/projects/{projectID}/scenes", stub501(deps.ListScenes))
			r.Put("/projects/{projectID}/characters/{key}", stub501(deps.PutCharacterVoice))
			r.Get("/projects/{projectID}/characters", stub501(deps.ListCharacters))

			r.Get("/scenes/{sceneID}/utterances", stub501(deps.ListUtterances))
			r.Patch("/utterances/{utteranceID}", stub501(deps.UpdateUtterance))
			r.Post("/utterances/{utteranceID}/audio", stub501(deps.GenerateUtterance))

			r.Route("/projects/{projectID}/audio/bulk", func(r chi.Router) {
				r.Post("/", stub501(deps.StartBulk))
				r.Get("/status", stub501(deps.BulkStatus))
				r.Post("/cancel", stub501(deps.CancelBulk))
				r.Get("/history", stub501(deps.BulkHistory))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

				r.Post("/keys", stub501(deps.CreateKeyHandler))
				r.Get("/keys", stub501(deps.ListKeysHandler))
				r.Delete("/keys/{keyID}", stub501(deps.RevokeKeyHandler))
				r.Get("/usage", stub501(deps.UsageHandler))
			})
		})
	})

	return r
}

// stub501 keeps route registration total while a handler is not wired
// yet, answering 501 instead of 404.
func stub501(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
