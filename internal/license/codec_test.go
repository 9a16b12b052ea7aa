package license

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compact(header, payload string) string {
	return EncodeSegments([]byte(header), []byte(payload), []byte("sig"))
}

func TestParse(t *testing.T) {
	tok, err := Parse("  " + compact(
		`{"alg":"PS256","typ":"JWT","kid":"k1"}`,
		`{"iss":"Corp","customer":"Acme","fingerprint":"FP-123","iat":1700000000,"exp":1700003600,"meta":{"name": "license", "version":"1.0"},"sub":"license"}`,
	) + "\n")
	require.NoError(t, err)

	h := tok.Header()
	assert.Equal(t, "PS256", h.Algorithm)
	assert.Equal(t, "JWT", h.Type)
	assert.Equal(t, []string{"kid"}, h.Extra.Keys())

	p := tok.Payload()
	assert.Equal(t, "Acme", p.Customer)
	assert.Equal(t, "Corp", p.Issuer)
	assert.Equal(t, "FP-123", p.Fingerprint)
	assert.Equal(t, int64(1700000000), p.IssuedAt)
	assert.Equal(t, int64(1700003600), p.ExpiresAt)
	assert.Equal(t, []string{"meta", "sub"}, p.Extra.Keys())

	meta, ok := p.Extra.Raw("meta")
	require.True(t, ok)
	assert.Equal(t, `{"name": "license", "version":"1.0"}`, string(meta))

	var sub string
	found, err := p.Extra.Decode("sub", &sub)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "license", sub)

	assert.Equal(t, []byte("sig"), tok.Signature())
	assert.Equal(t, tok.String()[:len(tok.SigningInput())], tok.SigningInput())
}

func TestParseIsImmutable(t *testing.T) {
	tok, err := Parse(compact(`{"alg":"PS256"}`, `{"customer":"Acme","exp":1,"x":1}`))
	require.NoError(t, err)

	p := tok.Payload()
	p.Customer = "Mallory"
	p.Extra.set("x", json.RawMessage("2"))
	tok.Signature()[0] = 'X'

	again := tok.Payload()
	assert.Equal(t, "Acme", again.Customer)
	raw, _ := again.Extra.Raw("x")
	assert.Equal(t, "1", string(raw))
	assert.Equal(t, []byte("sig"), tok.Signature())
}

func TestParseStructuralErrors(t *testing.T) {
	valid := `{"customer":"Acme","exp":1700003600}`
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "whitespace", input: "   \n"},
		{name: "two_segments", input: "eyJhbGciOiJQUzI1NiJ9.eyJjdXN0b21lciI6IkFjbWUifQ"},
		{name: "four_segments", input: compact(`{"alg":"PS256"}`, valid) + ".extra"},
		{name: "not_base64", input: "e$$.e$$.e$$"},
		{name: "padded_base64", input: "eyJhbGciOiJQUzI1NiJ9.eyJjdXN0b21lciI6IkFjbWUiLCJleHAiOjF9.c2lnbg=="},
		{name: "header_not_json", input: compact(`not json`, valid)},
		{name: "header_array", input: compact(`["PS256"]`, valid)},
		{name: "header_missing_alg", input: compact(`{"typ":"JWT"}`, valid)},
		{name: "header_alg_number", input: compact(`{"alg":256}`, valid)},
		{name: "payload_not_json", input: compact(`{"alg":"PS256"}`, `customer=Acme`)},
		{name: "payload_trailing_data", input: compact(`{"alg":"PS256"}`, valid+`{}`)},
		{name: "payload_duplicate_key", input: compact(`{"alg":"PS256"}`, `{"customer":"Acme","exp":1,"exp":2}`)},
		{name: "payload_missing_customer", input: compact(`{"alg":"PS256"}`, `{"exp":1700003600}`)},
		{name: "payload_empty_customer", input: compact(`{"alg":"PS256"}`, `{"customer":"","exp":1700003600}`)},
		{name: "payload_missing_exp", input: compact(`{"alg":"PS256"}`, `{"customer":"Acme"}`)},
		{name: "payload_exp_string", input: compact(`{"alg":"PS256"}`, `{"customer":"Acme","exp":"1700003600"}`)},
		{name: "payload_exp_fraction", input: compact(`{"alg":"PS256"}`, `{"customer":"Acme","exp":1700003600.5}`)},
		{name: "payload_iat_null", input: compact(`{"alg":"PS256"}`, `{"customer":"Acme","exp":1,"iat":null}`)},
		{name: "payload_fingerprint_number", input: compact(`{"alg":"PS256"}`, `{"customer":"Acme","exp":1,"fingerprint":123}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := Parse(tt.input)
			assert.Nil(t, tok)
			assert.ErrorIs(t, err, ErrStructural)
		})
	}
}

func TestParseDoesNotJudgeContent(t *testing.T) {
	// 已过期、alg 为 none 的令牌依然是格式正确的
	tok, err := Parse(compact(`{"alg":"none"}`, `{"customer":"Acme","exp":0,"iat":100}`))
	require.NoError(t, err)
	assert.Equal(t, "none", tok.Header().Algorithm)
	assert.Equal(t, int64(0), tok.Payload().ExpiresAt)
	assert.Equal(t, int64(100), tok.Payload().IssuedAt)
}

func TestParseExponentIntegers(t *testing.T) {
	tok, err := Parse(compact(`{"alg":"PS256"}`, `{"customer":"Acme","exp":1.7e9}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), tok.Payload().ExpiresAt)
}

func TestFieldsMarshalJSON(t *testing.T) {
	f := newFields()
	f.set("z", json.RawMessage(`1`))
	f.set("a", json.RawMessage(`{"k":[1,2]}`))
	b, err := f.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":{"k":[1,2]}}`, string(b))

	var nilFields *Fields
	b, err = nilFields.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(b))
	assert.Equal(t, 0, nilFields.Len())
}
