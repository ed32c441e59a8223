// internal/trust/store_sql.go
package trust

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLStore persists deployments in the platform_deployments table
// (sqlite or postgres, see internal/db for the schema).
type SQLStore struct{ DB *sql.DB }

func (s *SQLStore) ResolveByIssuer(ctx context.Context, issuer string) ([]PlatformDeployment, error) {
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("trust: issuer required")
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT iss, client_id, deployment_id,
		       oidc_auth_endpoint, token_endpoint, jwks_endpoint,
		       tool_kid, platform_kid
		FROM platform_deployments
		WHERE iss=$1
		ORDER BY id`, issuer)
	if err != nil {
		return nil, fmt.Errorf("trust: resolve %q: %w", issuer, err)
	}
	defer rows.Close()

	var out []PlatformDeployment
	for rows.Next() {
		var d PlatformDeployment
		if err := rows.Scan(&d.Issuer, &d.ClientID, &d.DeploymentID,
			&d.OIDCAuthEndpoint, &d.TokenEndpoint, &d.JWKSEndpoint,
			&d.ToolKID, &d.PlatformKID); err != nil {
			return nil, fmt.Errorf("trust: scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) Save(ctx context.Context, d PlatformDeployment) error {
	if err := d.Validate(); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO platform_deployments
			(iss, client_id, deployment_id,
			 oidc_auth_endpoint, token_endpoint, jwks_endpoint,
			 tool_kid, platform_kid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (iss, client_id, deployment_id) DO UPDATE SET
			oidc_auth_endpoint=EXCLUDED.oidc_auth_endpoint,
			token_endpoint=EXCLUDED.token_endpoint,
			jwks_endpoint=EXCLUDED.jwks_endpoint,
			tool_kid=EXCLUDED.tool_kid,
			platform_kid=EXCLUDED.platform_kid`,
		d.Issuer, d.ClientID, d.DeploymentID,
		d.OIDCAuthEndpoint, d.TokenEndpoint, d.JWKSEndpoint,
		d.ToolKID, d.PlatformKID)
	if err != nil {
		return fmt.Errorf("trust: save %s/%s: %w", d.Issuer, d.ClientID, err)
	}
	return nil
}
