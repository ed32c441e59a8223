// internal/launch/launch.go
package launch

import (
	"fmt"
	"log"
	"net/http"

	"github.com/coding-eval-platform/lti13demo/internal/nonce"
	"github.com/coding-eval-platform/lti13demo/internal/state"
)

// Handler receives the platform's id_token POST back at the tool.
//
// It verifies the echoed state token against the tool's own key and consumes
// the embedded nonce exactly once, rejecting replays. Full id_token claim
// validation belongs to the launch-validation layer and is not done here.
func Handler(states *state.Signer, nonces nonce.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostFormValue("id_token") == "" {
			http.Error(w, "missing id_token", http.StatusBadRequest)
			return
		}
		stateToken := r.PostFormValue("state")
		if stateToken == "" {
			http.Error(w, "missing state", http.StatusBadRequest)
			return
		}

		claims, err := states.Verify(r.Context(), stateToken)
		if err != nil {
			http.Error(w, "state verification failed", http.StatusUnauthorized)
			return
		}
		res, err := nonces.Consume(r.Context(), claims.Nonce)
		if err != nil {
			log.Printf("launch: nonce consume: %v", err)
			http.Error(w, "nonce check failed", http.StatusInternalServerError)
			return
		}
		if res != nonce.Fresh {
			http.Error(w, "nonce "+res.String(), http.StatusUnauthorized)
			return
		}

		fmt.Fprintf(w, "LTI launch accepted for %s (client %s)\n", claims.PlatformIssuer, claims.ClientID)
	}
}
