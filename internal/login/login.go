// internal/login/login.go
package login

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coding-eval-platform/lti13demo/internal/nonce"
	"github.com/coding-eval-platform/lti13demo/internal/state"
	"github.com/coding-eval-platform/lti13demo/internal/trust"
)

/*
Login initiation orchestrator.

Per request: resolve the deployment for the inbound issuer, issue a nonce,
mint the signed state token, and assemble the authorization redirect. Any
failure aborts the initiation before a redirect is emitted; nothing is
retried internally.
*/

var (
	// ErrUnknownIssuer: no trust record for the inbound issuer. Recoverable
	// and user-facing, not a system fault.
	ErrUnknownIssuer = errors.New("login: unknown issuer")

	// ErrMalformedRequest: a required inbound parameter is missing. Rejected
	// before any store access.
	ErrMalformedRequest = errors.New("login: malformed request")
)

// InitiationRequest carries the inbound third-party login parameters.
type InitiationRequest struct {
	Issuer         string // iss, required
	LoginHint      string // login_hint, required
	TargetLinkURI  string // target_link_uri, required
	LTIMessageHint string // lti_message_hint, optional
	ClientID       string // client_id, optional; used for disambiguation
}

// Validate rejects requests missing required parameters.
func (r InitiationRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Issuer) == "":
		return fmt.Errorf("%w: iss required", ErrMalformedRequest)
	case strings.TrimSpace(r.LoginHint) == "":
		return fmt.Errorf("%w: login_hint required", ErrMalformedRequest)
	case strings.TrimSpace(r.TargetLinkURI) == "":
		return fmt.Errorf("%w: target_link_uri required", ErrMalformedRequest)
	}
	return nil
}

// AuthRequest is the assembled authorization request: the platform's OIDC
// endpoint, the full parameter set, and the composed redirect URL. Built
// once and never mutated afterwards.
type AuthRequest struct {
	Deployment  trust.PlatformDeployment
	Endpoint    string
	Params      url.Values
	RedirectURL string
}

// Service composes the trust store, nonce registry, and state signer into
// the full login-initiation flow.
type Service struct {
	Trust  trust.Store
	Nonces nonce.Registry
	States *state.Signer
}

// Initiate runs one login initiation end to end.
//
// For an unknown issuer no nonce is issued and the key store is never
// contacted; the caller gets ErrUnknownIssuer to render as a recoverable
// condition. Signing and nonce-persistence failures propagate unwrapped
// enough for errors.Is against state.ErrSigning / state.ErrSecurity.
func (s *Service) Initiate(ctx context.Context, req InitiationRequest) (*AuthRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	deployments, err := s.Trust.ResolveByIssuer(ctx, req.Issuer)
	if err != nil {
		return nil, fmt.Errorf("login: trust lookup: %w", err)
	}
	dep, err := trust.Select(deployments, req.ClientID)
	if err != nil {
		if errors.Is(err, trust.ErrNoDeployment) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownIssuer, req.Issuer)
		}
		return nil, err
	}
	if strings.TrimSpace(dep.OIDCAuthEndpoint) == "" {
		return nil, fmt.Errorf("login: deployment %s/%s has no authorization endpoint", dep.Issuer, dep.ClientID)
	}

	n, err := s.Nonces.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("login: nonce issuance: %w", err)
	}

	stateToken, err := s.States.Mint(ctx, dep, n.Value, state.Params{
		LoginHint:      req.LoginHint,
		TargetLinkURI:  req.TargetLinkURI,
		LTIMessageHint: req.LTIMessageHint,
	})
	if err != nil {
		return nil, err
	}

	// The parameter set and naming are the protocol contract with the
	// platform; every entry below must be present.
	params := url.Values{}
	params.Set("scope", "openid")
	params.Set("response_type", "id_token")
	params.Set("response_mode", "form_post")
	params.Set("prompt", "none")
	params.Set("client_id", dep.ClientID)
	params.Set("redirect_uri", req.TargetLinkURI)
	params.Set("login_hint", req.LoginHint)
	params.Set("nonce", n.Value)
	params.Set("state", stateToken)
	params.Set("lti_message_hint", req.LTIMessageHint)

	return &AuthRequest{
		Deployment:  dep,
		Endpoint:    dep.OIDCAuthEndpoint,
		Params:      params,
		RedirectURL: dep.OIDCAuthEndpoint + "?" + params.Encode(),
	}, nil
}
