package license

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-verifier/internal/license/licensetest"
)

var testClaims = map[string]any{
	"iss":         "Corp",
	"customer":    "Acme",
	"fingerprint": "FP-123",
	"iat":         1700000000,
	"exp":         1700003600,
}

func mustParse(t *testing.T, text string) *SignedToken {
	t.Helper()
	tok, err := Parse(text)
	require.NoError(t, err)
	return tok
}

func mustVerifier(t *testing.T, alg Algorithm) *Verifier {
	t.Helper()
	v, err := NewVerifier(Policy{Algorithm: alg})
	require.NoError(t, err)
	return v
}

func TestVerifierAlgorithms(t *testing.T) {
	rsaKey, otherRSA := licensetest.RSAKeys(t)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name    string
		alg     Algorithm
		method  jwt.SigningMethod
		signKey any
		pubKey  any
		wantErr bool
	}{
		{name: "ps256", alg: PS256, method: jwt.SigningMethodPS256, signKey: rsaKey, pubKey: &rsaKey.PublicKey},
		{name: "rs256", alg: RS256, method: jwt.SigningMethodRS256, signKey: rsaKey, pubKey: &rsaKey.PublicKey},
		{name: "es256", alg: ES256, method: jwt.SigningMethodES256, signKey: ecKey, pubKey: &ecKey.PublicKey},
		{name: "eddsa", alg: EdDSA, method: jwt.SigningMethodEdDSA, signKey: edPriv, pubKey: edPub},
		{name: "ps256_wrong_key", alg: PS256, method: jwt.SigningMethodPS256, signKey: rsaKey, pubKey: &otherRSA.PublicKey, wantErr: true},
		{name: "ps256_ec_key", alg: PS256, method: jwt.SigningMethodPS256, signKey: rsaKey, pubKey: &ecKey.PublicKey, wantErr: true},
		{name: "es256_rsa_key", alg: ES256, method: jwt.SigningMethodES256, signKey: ecKey, pubKey: &rsaKey.PublicKey, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := mustParse(t, licensetest.Sign(t, tt.method, tt.signKey, testClaims))
			err := mustVerifier(t, tt.alg).Verify(tok, &KeyMaterial{Key: tt.pubKey})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSignatureInvalid)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifierPinsAlgorithm(t *testing.T) {
	rsaKey, _ := licensetest.RSAKeys(t)
	pub := &KeyMaterial{Key: &rsaKey.PublicKey}
	ps256 := mustVerifier(t, PS256)

	t.Run("rs256_token_under_ps256_policy", func(t *testing.T) {
		tok := mustParse(t, licensetest.Sign(t, jwt.SigningMethodRS256, rsaKey, testClaims))
		assert.ErrorIs(t, ps256.Verify(tok, pub), ErrSignatureInvalid)
	})

	t.Run("alg_none", func(t *testing.T) {
		payload := []byte(`{"customer":"Acme","exp":1700003600}`)
		tok := mustParse(t, EncodeSegments([]byte(`{"alg":"none"}`), payload, nil))
		assert.ErrorIs(t, ps256.Verify(tok, pub), ErrSignatureInvalid)
	})

	t.Run("hmac_with_public_key_as_secret", func(t *testing.T) {
		secret := licensetest.PublicPEM(t, &rsaKey.PublicKey)
		tok := mustParse(t, licensetest.Sign(t, jwt.SigningMethodHS256, secret, testClaims))
		assert.ErrorIs(t, ps256.Verify(tok, pub), ErrSignatureInvalid)
	})

	t.Run("lowercase_alg", func(t *testing.T) {
		header := []byte(`{"alg":"ps256","typ":"JWT"}`)
		tok := mustParse(t, licensetest.SignRaw(t, jwt.SigningMethodPS256, rsaKey, header, []byte(`{"customer":"Acme","exp":1}`)))
		assert.ErrorIs(t, ps256.Verify(tok, pub), ErrSignatureInvalid)
	})
}

func TestVerifierMissingInputs(t *testing.T) {
	v := mustVerifier(t, PS256)
	tok := mustParse(t, EncodeSegments([]byte(`{"alg":"PS256"}`), []byte(`{"customer":"Acme","exp":1}`), []byte("x")))
	assert.ErrorIs(t, v.Verify(nil, &KeyMaterial{}), ErrSignatureInvalid)
	assert.ErrorIs(t, v.Verify(tok, nil), ErrSignatureInvalid)
	assert.ErrorIs(t, v.Verify(tok, &KeyMaterial{}), ErrSignatureInvalid)
}

func TestNewVerifierUnknownAlgorithm(t *testing.T) {
	_, err := NewVerifier(Policy{Algorithm: "HS256"})
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, PS256, alg)

	alg, err = ParseAlgorithm("eddsa")
	require.NoError(t, err)
	assert.Equal(t, EdDSA, alg)

	_, err = ParseAlgorithm("none")
	assert.Error(t, err)
}
