package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prudhvinik1/capsulesync/internal/models"
	"github.com/prudhvinik1/capsulesync/internal/services"
)

// Authenticator is the part of the auth service the HTTP layer needs.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*services.LoginResponse, error)
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
	Logout(ctx context.Context, token string) error
}

// CapsuleReconciler is the part of the capsule service the HTTP layer needs.
type CapsuleReconciler interface {
	CreateCapsule(ctx context.Context, senderID, receiverID uuid.UUID, content string, unlockAt time.Time) (uuid.UUID, error)
	ListCapsules(ctx context.Context, receiverID uuid.UUID) ([]models.Capsule, error)
	WatchCapsules(ctx context.Context, receiverID uuid.UUID) (*services.CapsuleWatch, error)
}

type Handler struct {
	auth     Authenticator
	capsules CapsuleReconciler
	identity services.IdentityProvider
	logger   *slog.Logger
}

func NewHandler(auth Authenticator, capsules CapsuleReconciler, identity services.IdentityProvider, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:     auth,
		capsules: capsules,
		identity: identity,
		logger:   logger,
	}
}

// NewRouter registers the public routes. Everything under /v1/capsules and
// /v1/auth/logout requires a bearer token.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware)
			r.Post("/auth/logout", h.logout)
			r.Post("/capsules", h.createCapsule)
			r.Get("/capsules", h.listCapsules)
			r.Get("/capsules/watch", h.watchCapsules)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
