// internal/state/state.go
package state

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coding-eval-platform/lti13demo/internal/keys"
	"github.com/coding-eval-platform/lti13demo/internal/trust"
)

/*
State/assertion signer.

The state token binds a login initiation to the later callback: it carries
the resolved deployment's identity, the issued nonce, and the inbound
parameters needed to revalidate the callback, signed RS256 with the tool's
own private key. The token is self-describing; verifying the callback needs
only the tool public key plus the nonce check, no server session state.
*/

var (
	// ErrSigning wraps key-resolution failures: the deployment's signing key
	// is missing or carries no usable material. A configuration defect, not
	// a user error; not retryable without operator intervention.
	ErrSigning = errors.New("state: signing key unavailable")

	// ErrSecurity wraps cryptographic failures (malformed key material,
	// unsupported formats). Also fatal for the request.
	ErrSecurity = errors.New("state: cryptographic failure")
)

// Params is the subset of inbound login-initiation parameters echoed into
// the state token so the callback can be revalidated.
type Params struct {
	LoginHint      string
	TargetLinkURI  string
	LTIMessageHint string
}

// Claims is the signed state payload.
type Claims struct {
	PlatformIssuer string `json:"platform_iss"`
	ClientID       string `json:"client_id"`
	DeploymentID   string `json:"deployment_id,omitempty"`
	Nonce          string `json:"nonce"`
	LoginHint      string `json:"login_hint,omitempty"`
	TargetLinkURI  string `json:"target_link_uri"`
	LTIMessageHint string `json:"lti_message_hint,omitempty"`
	jwt.RegisteredClaims
}

// Signer mints and verifies state tokens with the tool's own RSA key,
// resolved through the key store under a fixed canonical key id.
type Signer struct {
	Keys keys.Store

	// ToolKID is the canonical id of the tool's signing key. Default "OWNKEY".
	ToolKID string
	// TTL bounds how long a minted state stays verifiable. Default 1h.
	TTL time.Duration
	// Clock override (tests).
	Now func() time.Time
}

const defaultToolKID = "OWNKEY"

func (s *Signer) kid() string {
	if strings.TrimSpace(s.ToolKID) != "" {
		return s.ToolKID
	}
	return defaultToolKID
}

func (s *Signer) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return time.Hour
}

func (s *Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Mint produces the signed state token for one login initiation.
func (s *Signer) Mint(ctx context.Context, dep trust.PlatformDeployment, nonceValue string, p Params) (string, error) {
	priv, _, err := s.toolKey(ctx)
	if err != nil {
		return "", err
	}
	now := s.now()
	claims := Claims{
		PlatformIssuer: dep.Issuer,
		ClientID:       dep.ClientID,
		DeploymentID:   dep.DeploymentID,
		Nonce:          nonceValue,
		LoginHint:      p.LoginHint,
		TargetLinkURI:  p.TargetLinkURI,
		LTIMessageHint: p.LTIMessageHint,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "lti13demo",
			Audience:  jwt.ClaimStrings{dep.Issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl())),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid()
	signed, err := tok.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecurity, err)
	}
	return signed, nil
}

// Verify checks the signature and validity window of a state token and
// returns its claims. Used by the callback phase and by tests.
func (s *Signer) Verify(ctx context.Context, token string) (*Claims, error) {
	_, pub, err := s.toolKey(ctx)
	if err != nil {
		return nil, err
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (interface{}, error) { return pub, nil },
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecurity, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", ErrSecurity)
	}
	return &claims, nil
}

// toolKey resolves the tool's key record and parses both halves. The public
// half is derived from the private key when the record carries none.
func (s *Signer) toolKey(ctx context.Context) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if s.Keys == nil {
		return nil, nil, fmt.Errorf("%w: key store not configured", ErrSigning)
	}
	rec, err := s.Keys.Get(ctx, s.kid(), true)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	priv, err := keys.ParseRSAPrivateKey(rec.PrivatePEM)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSecurity, err)
	}
	if strings.TrimSpace(rec.PublicPEM) != "" {
		pub, err := keys.ParseRSAPublicKey(rec.PublicPEM)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrSecurity, err)
		}
		return priv, pub, nil
	}
	return priv, &priv.PublicKey, nil
}
