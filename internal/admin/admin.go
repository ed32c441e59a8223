// internal/admin/admin.go
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/coding-eval-platform/lti13demo/internal/keys"
	"github.com/coding-eval-platform/lti13demo/internal/trust"
)

/*
Registration/onboarding API.

Thin CRUD over the trust and key stores so deployments can be registered
without redeploying. The login core never writes through these endpoints;
they are the administrative collaborator around it.

Mount under /admin behind BasicAuth.
*/

// Routes returns the registration endpoints.
func Routes(trustStore trust.Store, keyStore keys.Store) http.Handler {
	r := chi.NewRouter()
	r.Post("/deployments", saveDeployment(trustStore))
	r.Post("/keys", saveKey(keyStore))
	return r
}

func saveDeployment(store trust.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d trust.PlatformDeployment
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if err := d.Validate(); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := store.Save(r.Context(), d); err != nil {
			writeErr(w, http.StatusInternalServerError, "save failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func saveKey(store keys.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec keys.KeyRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if err := rec.Validate(); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := store.Save(r.Context(), rec); err != nil {
			writeErr(w, http.StatusInternalServerError, "save failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// BasicAuth guards the registration API with a single admin credential; the
// stored password is a bcrypt hash, never plaintext.
func BasicAuth(user, passHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || u != user ||
				bcrypt.CompareHashAndPassword([]byte(passHash), []byte(p)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
