// internal/keys/pem.go
package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Seeded and admin-supplied key material arrives as PEM, but often with the
// newlines stripped (single-line PEM copied out of property files). The
// helpers below accept both forms and both private-key encodings in use
// (PKCS#8 "PRIVATE KEY" and PKCS#1 "RSA PRIVATE KEY").

// ParseRSAPrivateKey parses a PEM-encoded RSA private key.
func ParseRSAPrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	der, err := decodePEMBody(pemStr)
	if err != nil {
		return nil, fmt.Errorf("keys: private key: %w", err)
	}
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("keys: private key is not RSA")
		}
		return rk, nil
	}
	rk, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("keys: parse private key: %w", err)
	}
	return rk, nil
}

// ParseRSAPublicKey parses a PEM-encoded (PKIX) RSA public key.
func ParseRSAPublicKey(pemStr string) (*rsa.PublicKey, error) {
	der, err := decodePEMBody(pemStr)
	if err != nil {
		return nil, fmt.Errorf("keys: public key: %w", err)
	}
	k, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("keys: parse public key: %w", err)
	}
	pk, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("keys: public key is not RSA")
	}
	return pk, nil
}

// EncodePrivatePEM renders a private key as PKCS#8 PEM.
func EncodePrivatePEM(k *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		return "", fmt.Errorf("keys: marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// EncodePublicPEM renders a public key as PKIX PEM.
func EncodePublicPEM(k *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(k)
	if err != nil {
		return "", fmt.Errorf("keys: marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// decodePEMBody extracts the DER bytes from a PEM string, tolerating
// missing newlines between the armor lines and the base64 body.
func decodePEMBody(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty PEM")
	}
	if blk, _ := pem.Decode([]byte(s)); blk != nil {
		return blk.Bytes, nil
	}
	// Single-line PEM: strip armor and whitespace, decode base64 directly.
	// All key armors in use end with "KEY-----".
	if i := strings.Index(s, "KEY-----"); i >= 0 {
		s = s[i+len("KEY-----"):]
	}
	if i := strings.Index(s, "-----END"); i >= 0 {
		s = s[:i]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not valid PEM or base64: %w", err)
	}
	return der, nil
}
