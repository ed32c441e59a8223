// internal/trust/trust.go
package trust

import (
	"context"
	"errors"
	"strings"
	"sync"
)

/*
Trust store (platform deployment registry) for the LTI 1.3 tool.

A PlatformDeployment is one trusted platform/tool pairing: the issuer the
platform identifies itself with on login initiation, the client_id the tool
was registered under, the platform's OIDC endpoints, and the key ids used
for signing and verification.

Resolution happens in two steps: the store returns every record for an
issuer (zero, one, or many), and Select applies the disambiguation policy.
*/

var (
	// ErrNoDeployment is returned by Select when nothing matches. An empty
	// store result is a recoverable "unknown platform", not a system fault.
	ErrNoDeployment = errors.New("trust: no deployment for issuer")

	// ErrAmbiguousDeployment is returned when multiple records match and the
	// request carried nothing to tell them apart. Picking one silently would
	// sign state for a deployment the platform may not have meant.
	ErrAmbiguousDeployment = errors.New("trust: ambiguous deployment for issuer")
)

// PlatformDeployment maps an issuer (plus client/deployment ids) to a
// platform's configuration. Created at registration time, read on every
// login initiation, never mutated by the login flow.
type PlatformDeployment struct {
	Issuer       string `json:"iss"`
	ClientID     string `json:"client_id"`
	DeploymentID string `json:"deployment_id,omitempty"`

	OIDCAuthEndpoint string `json:"oidc_auth_endpoint,omitempty"`
	TokenEndpoint    string `json:"token_endpoint,omitempty"`
	JWKSEndpoint     string `json:"jwks_endpoint,omitempty"`

	ToolKID     string `json:"tool_kid,omitempty"`
	PlatformKID string `json:"platform_kid,omitempty"`
}

// Validate checks the fields required to register a deployment.
func (d PlatformDeployment) Validate() error {
	if strings.TrimSpace(d.Issuer) == "" {
		return errors.New("trust: issuer required")
	}
	if strings.TrimSpace(d.ClientID) == "" {
		return errors.New("trust: client_id required")
	}
	return nil
}

// Store persists platform deployments.
type Store interface {
	// ResolveByIssuer returns all deployments registered for the issuer, in
	// stored order. An empty result is valid and signals "unknown platform".
	ResolveByIssuer(ctx context.Context, issuer string) ([]PlatformDeployment, error)
	// Save inserts or replaces the record keyed by
	// (issuer, client_id, deployment_id).
	Save(ctx context.Context, d PlatformDeployment) error
}

// Select applies the disambiguation policy to an issuer's deployments.
//
// When the initiation request carries a client_id, resolution requires it to
// match. Without one, a single registration wins; multiple registrations are
// an explicit ambiguity error rather than a silent first-match pick.
func Select(deployments []PlatformDeployment, clientID string) (PlatformDeployment, error) {
	clientID = strings.TrimSpace(clientID)
	candidates := deployments
	if clientID != "" {
		candidates = candidates[:0:0]
		for _, d := range deployments {
			if d.ClientID == clientID {
				candidates = append(candidates, d)
			}
		}
	}
	switch len(candidates) {
	case 0:
		return PlatformDeployment{}, ErrNoDeployment
	case 1:
		return candidates[0], nil
	default:
		return PlatformDeployment{}, ErrAmbiguousDeployment
	}
}

// InMemoryStore is a process-local Store preserving insertion order
// (dev/tests).
type InMemoryStore struct {
	mu   sync.RWMutex
	recs []PlatformDeployment
}

func NewInMemoryStore() *InMemoryStore { return &InMemoryStore{} }

func (s *InMemoryStore) ResolveByIssuer(_ context.Context, issuer string) ([]PlatformDeployment, error) {
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("trust: issuer required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PlatformDeployment
	for _, d := range s.recs {
		if d.Issuer == issuer {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, d PlatformDeployment) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, old := range s.recs {
		if old.Issuer == d.Issuer && old.ClientID == d.ClientID && old.DeploymentID == d.DeploymentID {
			s.recs[i] = d
			return nil
		}
	}
	s.recs = append(s.recs, d)
	return nil
}
