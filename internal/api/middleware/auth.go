package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/storycast/storycast/internal/api/response"
	"github.com/storycast/storycast/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is how many leading characters of a raw key are stored as its
// lookup prefix. Key creation slices with the same constant.
const KeyPrefixLen = 8

// KeyStore is the slice of the data layer the auth middleware needs.
type KeyStore interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// Auth authenticates Bearer API keys and gates routes by scope.
type Auth struct {
	keys KeyStore
}

func NewAuth(keys KeyStore) *Auth {
	return &Auth{keys: keys}
}

// Authenticate resolves the Bearer token to an API key. Candidates are
// fetched by key prefix, then bcrypt comparison picks the match among
// prefix collisions. On success the account ID, key prefix, and scopes
// land in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}
		if len(raw) < KeyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		key, err := a.matchKey(r.Context(), raw)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}
		if key == nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		ctx := SetAccountID(r.Context(), key.AccountID)
		ctx = withKeyPrefix(ctx, raw[:KeyPrefixLen])
		ctx = withScopes(ctx, key.Scopes)

		// Last-used tracking is advisory; never hold up the request for it.
		go a.keys.UpdateAPIKeyLastUsed(context.Background(), key.ID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// matchKey fetches candidate keys by prefix and returns the one whose
// bcrypt hash matches the raw key, or nil when none does.
func (a *Auth) matchKey(ctx context.Context, raw string) (*models.APIKey, error) {
	candidates, err := a.keys.GetAPIKeyByPrefix(ctx, raw[:KeyPrefixLen])
	if err != nil {
		return nil, err
	}
	for _, k := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(raw)) == nil {
			return k, nil
		}
	}
	return nil, nil
}

// RequireScope rejects authenticated requests whose key lacks the given
// scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(getScopes(r), scope) {
				response.Error(w, http.StatusForbidden,
					"FORBIDDEN", "Insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
