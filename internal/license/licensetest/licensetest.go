// Package licensetest builds keys and signed license fixtures for tests.
package licensetest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"strings"
	"sync"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var (
	rsaOnce sync.Once
	rsaKeys [2]*rsa.PrivateKey
	rsaErr  error
)

// RSAKeys returns two unrelated 2048-bit key pairs, generated once per test binary.
func RSAKeys(t testing.TB) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	rsaOnce.Do(func() {
		for i := range rsaKeys {
			rsaKeys[i], rsaErr = rsa.GenerateKey(rand.Reader, 2048)
			if rsaErr != nil {
				return
			}
		}
	})
	require.NoError(t, rsaErr)
	return rsaKeys[0], rsaKeys[1]
}

// PublicPEM encodes pub as a PKIX "PUBLIC KEY" block.
func PublicPEM(t testing.TB, pub crypto.PublicKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// WritePublicKey stores pub as PEM at path and returns path.
func WritePublicKey(t testing.TB, fs afero.Fs, path string, pub crypto.PublicKey) string {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, PublicPEM(t, pub), 0644))
	return path
}

// Sign issues a token over claims with the given method, the way the offline
// issuer does (typ JWT).
func Sign(t testing.TB, method jwt.SigningMethod, key any, claims map[string]any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, jwt.MapClaims(claims)).SignedString(key)
	require.NoError(t, err)
	return s
}

// SignRaw signs exact header and payload bytes, so tests control byte layout.
func SignRaw(t testing.TB, method jwt.SigningMethod, key any, header, payload []byte) string {
	t.Helper()
	input := jwt.EncodeSegment(header) + "." + jwt.EncodeSegment(payload)
	sig, err := method.Sign(input, key)
	require.NoError(t, err)
	return input + "." + sig
}

// Header returns a compact JSON header declaring alg.
func Header(t testing.TB, alg string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]string{"alg": alg, "typ": "JWT"})
	require.NoError(t, err)
	return b
}

// Segments splits a compact token.
func Segments(token string) []string {
	return strings.Split(token, ".")
}
