// internal/login/handler.go
package login

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/coding-eval-platform/lti13demo/internal/trust"
)

// Error classifications handed to the presentation layer. Unknown-issuer and
// malformed-request conditions get distinct, non-sensitive types; signing
// and storage failures collapse into a generic one that leaks nothing.
const (
	errTypeUnknownIssuer = "iss_nonexisting"
	errTypeBadRequest    = "bad_request"
	errTypeGeneric       = "initiation_failed"
)

// Handler accepts the OIDC third-party login initiation (GET or form POST)
// and redirects the browser to the platform's authorization endpoint.
func Handler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeErrType(w, http.StatusBadRequest, errTypeBadRequest)
			return
		}
		req := InitiationRequest{
			Issuer:         r.Form.Get("iss"),
			LoginHint:      r.Form.Get("login_hint"),
			TargetLinkURI:  r.Form.Get("target_link_uri"),
			LTIMessageHint: r.Form.Get("lti_message_hint"),
			ClientID:       r.Form.Get("client_id"),
		}

		ar, err := svc.Initiate(r.Context(), req)
		if err != nil {
			status, errType := classify(err)
			if errType == errTypeGeneric {
				// Configuration or storage defect, not a user error.
				log.Printf("login: initiation failed: %v", err)
			}
			writeErrType(w, status, errType)
			return
		}
		http.Redirect(w, r, ar.RedirectURL, http.StatusFound)
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest, errTypeBadRequest
	case errors.Is(err, ErrUnknownIssuer), errors.Is(err, trust.ErrAmbiguousDeployment):
		return http.StatusBadRequest, errTypeUnknownIssuer
	default:
		return http.StatusInternalServerError, errTypeGeneric
	}
}

func writeErrType(w http.ResponseWriter, status int, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error_type": errType})
}
