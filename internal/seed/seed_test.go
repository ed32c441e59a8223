package seed_test

import (
	"context"
	"testing"

	"github.com/coding-eval-platform/lti13demo/internal/keys"
	"github.com/coding-eval-platform/lti13demo/internal/seed"
	"github.com/coding-eval-platform/lti13demo/internal/trust"
)

func TestPreload_InstallsSampleData(t *testing.T) {
	ctx := context.Background()
	ts := trust.NewInMemoryStore()
	ks := keys.NewInMemoryStore()

	if err := seed.Preload(ctx, ts, ks, seed.OwnKey{KID: "OWNKEY"}); err != nil {
		t.Fatal(err)
	}

	deps, err := ts.ResolveByIssuer(ctx, "https://sakai.org")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 {
		t.Fatalf("expected 1 sakai deployment, got %d", len(deps))
	}
	if deps[0].ClientID != "Ddbo123456" || deps[0].DeploymentID != "0002" {
		t.Fatalf("unexpected sample deployment: %+v", deps[0])
	}

	// The seeded key material must actually parse.
	rec, err := ks.Get(ctx, deps[0].ToolKID, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := keys.ParseRSAPrivateKey(rec.PrivatePEM); err != nil {
		t.Fatalf("seeded private key unusable: %v", err)
	}

	// A generated OWNKEY must exist and parse too.
	own, err := ks.Get(ctx, "OWNKEY", true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := keys.ParseRSAPrivateKey(own.PrivatePEM); err != nil {
		t.Fatalf("generated own key unusable: %v", err)
	}
}

func TestPreload_SkipsWhenDataPresent(t *testing.T) {
	ctx := context.Background()
	ts := trust.NewInMemoryStore()
	ks := keys.NewInMemoryStore()

	// Operator already customized the sakai registration.
	custom := trust.PlatformDeployment{
		Issuer:           "https://sakai.org",
		ClientID:         "CustomClient",
		OIDCAuthEndpoint: "https://sakai.org/auth",
	}
	if err := ts.Save(ctx, custom); err != nil {
		t.Fatal(err)
	}

	if err := seed.Preload(ctx, ts, ks, seed.OwnKey{}); err != nil {
		t.Fatal(err)
	}

	deps, err := ts.ResolveByIssuer(ctx, "https://sakai.org")
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0].ClientID != "CustomClient" {
		t.Fatalf("preload clobbered operator data: %+v", deps)
	}

	// The own key is still ensured even when sample data is skipped.
	if _, err := ks.Get(ctx, "OWNKEY", true); err != nil {
		t.Fatalf("own key missing after skip: %v", err)
	}
}

func TestPreload_KeepsConfiguredOwnKey(t *testing.T) {
	ctx := context.Background()
	ts := trust.NewInMemoryStore()
	ks := keys.NewInMemoryStore()

	existing := keys.KeyRecord{KID: "OWNKEY", Private: true, PrivatePEM: "operator-pem"}
	if err := ks.Save(ctx, existing); err != nil {
		t.Fatal(err)
	}

	if err := seed.Preload(ctx, ts, ks, seed.OwnKey{KID: "OWNKEY"}); err != nil {
		t.Fatal(err)
	}
	got, err := ks.Get(ctx, "OWNKEY", true)
	if err != nil {
		t.Fatal(err)
	}
	if got.PrivatePEM != "operator-pem" {
		t.Fatal("preload replaced an existing own key")
	}
}
