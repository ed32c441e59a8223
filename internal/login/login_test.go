package login_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/coding-eval-platform/lti13demo/internal/keys"
	"github.com/coding-eval-platform/lti13demo/internal/login"
	"github.com/coding-eval-platform/lti13demo/internal/nonce"
	"github.com/coding-eval-platform/lti13demo/internal/state"
	"github.com/coding-eval-platform/lti13demo/internal/trust"
)

// countingRegistry wraps a Registry and counts Issue calls.
type countingRegistry struct {
	nonce.Registry
	issued int
}

func (c *countingRegistry) Issue(ctx context.Context) (nonce.Nonce, error) {
	c.issued++
	return c.Registry.Issue(ctx)
}

// countingKeyStore wraps a key store and counts lookups.
type countingKeyStore struct {
	keys.Store
	gets int
}

func (c *countingKeyStore) Get(ctx context.Context, kid string, private bool) (keys.KeyRecord, error) {
	c.gets++
	return c.Store.Get(ctx, kid, private)
}

type fixture struct {
	svc    *login.Service
	trust  *trust.InMemoryStore
	nonces *countingRegistry
	keys   *countingKeyStore
	signer *state.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	privPEM, err := keys.EncodePrivatePEM(priv)
	if err != nil {
		t.Fatal(err)
	}
	ks := keys.NewInMemoryStore()
	err = ks.Save(context.Background(), keys.KeyRecord{
		KID: "OWNKEY", Private: true, PrivatePEM: privPEM,
	})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		trust:  trust.NewInMemoryStore(),
		nonces: &countingRegistry{Registry: nonce.NewInMemoryRegistry(0)},
		keys:   &countingKeyStore{Store: ks},
	}
	f.signer = &state.Signer{Keys: f.keys}
	f.svc = &login.Service{Trust: f.trust, Nonces: f.nonces, States: f.signer}
	return f
}

func (f *fixture) register(t *testing.T, d trust.PlatformDeployment) {
	t.Helper()
	if err := f.trust.Save(context.Background(), d); err != nil {
		t.Fatal(err)
	}
}

func sakaiDeployment() trust.PlatformDeployment {
	return trust.PlatformDeployment{
		Issuer:           "https://sakai.org",
		ClientID:         "Ddbo123456",
		DeploymentID:     "0002",
		OIDCAuthEndpoint: "https://lti-ri.imsglobal.org/platforms/89/authorizations/new",
	}
}

func validRequest() login.InitiationRequest {
	return login.InitiationRequest{
		Issuer:        "https://sakai.org",
		LoginHint:     "azeckoski",
		TargetLinkURI: "https://tool.example/launch",
	}
}

func TestInitiate_AssemblesFullParameterSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, sakaiDeployment())

	req := validRequest()
	req.LTIMessageHint = "hint-77"
	ar, err := f.svc.Initiate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	fixed := map[string]string{
		"scope":            "openid",
		"response_type":    "id_token",
		"response_mode":    "form_post",
		"prompt":           "none",
		"client_id":        "Ddbo123456",
		"redirect_uri":     "https://tool.example/launch",
		"login_hint":       "azeckoski",
		"lti_message_hint": "hint-77",
	}
	for k, want := range fixed {
		if got := ar.Params.Get(k); got != want {
			t.Errorf("param %s: got %q want %q", k, got, want)
		}
	}
	if ar.Params.Get("nonce") == "" {
		t.Error("nonce param missing")
	}
	if ar.Params.Get("state") == "" {
		t.Error("state param missing")
	}
	if ar.Endpoint != "https://lti-ri.imsglobal.org/platforms/89/authorizations/new" {
		t.Errorf("endpoint: %q", ar.Endpoint)
	}

	// Redirect URL must be the endpoint plus exactly the assembled params.
	u, err := url.Parse(ar.RedirectURL)
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Query().Get("client_id"); got != "Ddbo123456" {
		t.Errorf("redirect client_id: %q", got)
	}
	if got := u.Query().Get("state"); got != ar.Params.Get("state") {
		t.Error("redirect state differs from assembled state")
	}
}

func TestInitiate_StateVerifiableAndBoundToNonce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, sakaiDeployment())

	ar, err := f.svc.Initiate(ctx, validRequest())
	if err != nil {
		t.Fatal(err)
	}

	claims, err := f.signer.Verify(ctx, ar.Params.Get("state"))
	if err != nil {
		t.Fatalf("state does not verify with the tool key: %v", err)
	}
	if claims.PlatformIssuer != "https://sakai.org" {
		t.Errorf("platform_iss: %q", claims.PlatformIssuer)
	}
	if claims.ClientID != "Ddbo123456" || claims.DeploymentID != "0002" {
		t.Errorf("deployment identity: %+v", claims)
	}
	if claims.Nonce != ar.Params.Get("nonce") {
		t.Error("state nonce differs from redirect nonce param")
	}
	if claims.TargetLinkURI != "https://tool.example/launch" {
		t.Errorf("target_link_uri: %q", claims.TargetLinkURI)
	}

	// The nonce in the redirect must be the one the registry issued.
	res, err := f.nonces.Consume(ctx, claims.Nonce)
	if err != nil {
		t.Fatal(err)
	}
	if res != nonce.Fresh {
		t.Fatalf("issued nonce not consumable: %s", res)
	}
}

func TestInitiate_UnknownIssuerLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// Nothing registered.

	_, err := f.svc.Initiate(ctx, validRequest())
	if !errors.Is(err, login.ErrUnknownIssuer) {
		t.Fatalf("want ErrUnknownIssuer, got %v", err)
	}
	if f.nonces.issued != 0 {
		t.Errorf("nonce issued for unknown issuer: %d", f.nonces.issued)
	}
	if f.keys.gets != 0 {
		t.Errorf("key store contacted for unknown issuer: %d", f.keys.gets)
	}
}

func TestInitiate_AmbiguousIssuer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d1 := sakaiDeployment()
	d2 := sakaiDeployment()
	d2.ClientID = "OtherClient"
	f.register(t, d1)
	f.register(t, d2)

	// No client_id to disambiguate: explicit error, no silent first-match.
	_, err := f.svc.Initiate(ctx, validRequest())
	if !errors.Is(err, trust.ErrAmbiguousDeployment) {
		t.Fatalf("want ErrAmbiguousDeployment, got %v", err)
	}

	// With client_id the same request resolves.
	req := validRequest()
	req.ClientID = "OtherClient"
	ar, err := f.svc.Initiate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if ar.Deployment.ClientID != "OtherClient" {
		t.Fatalf("wrong deployment selected: %+v", ar.Deployment)
	}
}

func TestInitiate_MissingParams(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, sakaiDeployment())

	for _, tc := range []struct {
		name   string
		mutate func(*login.InitiationRequest)
	}{
		{"no iss", func(r *login.InitiationRequest) { r.Issuer = "" }},
		{"no login_hint", func(r *login.InitiationRequest) { r.LoginHint = "" }},
		{"no target_link_uri", func(r *login.InitiationRequest) { r.TargetLinkURI = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := f.svc.Initiate(ctx, req)
			if !errors.Is(err, login.ErrMalformedRequest) {
				t.Fatalf("want ErrMalformedRequest, got %v", err)
			}
		})
	}
	if f.nonces.issued != 0 {
		t.Errorf("nonce issued for malformed request: %d", f.nonces.issued)
	}
}

func TestInitiate_DeploymentWithoutEndpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := sakaiDeployment()
	d.OIDCAuthEndpoint = ""
	f.register(t, d)

	_, err := f.svc.Initiate(ctx, validRequest())
	if err == nil {
		t.Fatal("endpointless deployment accepted")
	}
	if errors.Is(err, login.ErrUnknownIssuer) || errors.Is(err, login.ErrMalformedRequest) {
		t.Fatalf("should be a generic failure, got %v", err)
	}
}

func TestHandler_RedirectsOnSuccess(t *testing.T) {
	f := newFixture(t)
	f.register(t, sakaiDeployment())
	h := login.Handler(f.svc)

	form := url.Values{}
	form.Set("iss", "https://sakai.org")
	form.Set("login_hint", "azeckoski")
	form.Set("target_link_uri", "https://tool.example/launch")

	r := httptest.NewRequest(http.MethodPost, "/oidc/login_initiations",
		strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != http.StatusFound {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	loc := w.Header().Get("Location")
	if !strings.HasPrefix(loc, "https://lti-ri.imsglobal.org/platforms/89/authorizations/new?") {
		t.Fatalf("location: %q", loc)
	}
	u, err := url.Parse(loc)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	for _, p := range []string{"scope", "response_type", "response_mode", "prompt",
		"client_id", "redirect_uri", "login_hint", "nonce", "state", "lti_message_hint"} {
		if !q.Has(p) {
			t.Errorf("redirect missing %s", p)
		}
	}
}

func TestHandler_GetWithQueryParams(t *testing.T) {
	f := newFixture(t)
	f.register(t, sakaiDeployment())
	h := login.Handler(f.svc)

	r := httptest.NewRequest(http.MethodGet,
		"/oidc/login_initiations?iss=https%3A%2F%2Fsakai.org&login_hint=azeckoski&target_link_uri=https%3A%2F%2Ftool.example%2Flaunch", nil)
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != http.StatusFound {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
}

func TestHandler_ErrorTypes(t *testing.T) {
	f := newFixture(t)
	f.register(t, sakaiDeployment())
	h := login.Handler(f.svc)

	cases := []struct {
		name    string
		form    url.Values
		status  int
		errType string
	}{
		{
			name: "unknown issuer",
			form: url.Values{
				"iss":             {"https://nowhere.example"},
				"login_hint":      {"u"},
				"target_link_uri": {"https://tool.example/launch"},
			},
			status:  http.StatusBadRequest,
			errType: "iss_nonexisting",
		},
		{
			name: "missing login_hint",
			form: url.Values{
				"iss":             {"https://sakai.org"},
				"target_link_uri": {"https://tool.example/launch"},
			},
			status:  http.StatusBadRequest,
			errType: "bad_request",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/oidc/login_initiations",
				strings.NewReader(tc.form.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			h(w, r)

			if w.Code != tc.status {
				t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("non-JSON error body: %s", w.Body.String())
			}
			if body["error_type"] != tc.errType {
				t.Fatalf("error_type: %q want %q", body["error_type"], tc.errType)
			}
		})
	}
}

func TestHandler_SigningFailureIsGeneric(t *testing.T) {
	f := newFixture(t)
	f.register(t, sakaiDeployment())
	// Point the signer at an empty key store so minting fails.
	f.signer.Keys = keys.NewInMemoryStore()
	h := login.Handler(f.svc)

	form := url.Values{}
	form.Set("iss", "https://sakai.org")
	form.Set("login_hint", "azeckoski")
	form.Set("target_link_uri", "https://tool.example/launch")

	r := httptest.NewRequest(http.MethodPost, "/oidc/login_initiations",
		strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error_type"] != "initiation_failed" {
		t.Fatalf("error_type: %q", body["error_type"])
	}
}
