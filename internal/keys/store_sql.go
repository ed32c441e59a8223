// internal/keys/store_sql.go
package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLStore persists key records in the rsa_keys table (sqlite or postgres,
// see internal/db for the schema).
type SQLStore struct{ DB *sql.DB }

func (s *SQLStore) Get(ctx context.Context, kid string, private bool) (KeyRecord, error) {
	var rec KeyRecord
	err := s.DB.QueryRowContext(ctx, `
		SELECT kid, is_private, public_pem, private_pem
		FROM rsa_keys WHERE kid=$1 AND is_private=$2`, kid, private).
		Scan(&rec.KID, &rec.Private, &rec.PublicPEM, &rec.PrivatePEM)
	if errors.Is(err, sql.ErrNoRows) {
		return KeyRecord{}, ErrKeyNotFound
	}
	if err != nil {
		return KeyRecord{}, fmt.Errorf("keys: get %q: %w", kid, err)
	}
	return rec, nil
}

func (s *SQLStore) Save(ctx context.Context, rec KeyRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rsa_keys (kid, is_private, public_pem, private_pem)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (kid, is_private) DO UPDATE SET
			public_pem=EXCLUDED.public_pem,
			private_pem=EXCLUDED.private_pem`,
		rec.KID, rec.Private, rec.PublicPEM, rec.PrivatePEM)
	if err != nil {
		return fmt.Errorf("keys: save %q: %w", rec.KID, err)
	}
	return nil
}
