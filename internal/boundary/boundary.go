// Package boundary exposes license verification as a small set of
// string-in / string-out calls suitable for a C shared library.
// Nothing here panics or returns an error value: failures become the stable
// integer codes or the empty sentinel.
package boundary

import (
	"bytes"
	"encoding/json"
	"sync"

	"license-verifier/internal/fingerprint"
	"license-verifier/internal/license"
)

// 扁平输出中的固定字段，与扩展字段冲突时以这里为准
const (
	keyIssuer      = "issuer"
	keyCustomer    = "customer"
	keyFingerprint = "fingerprint"
	keyIssuedAt    = "issuedAt"
	keyExpiresAt   = "expiresAt"
)

var coreKeys = map[string]bool{
	keyIssuer:      true,
	keyCustomer:    true,
	keyFingerprint: true,
	keyIssuedAt:    true,
	keyExpiresAt:   true,
}

type Boundary struct {
	engine    *license.Engine
	generator *fingerprint.Generator
}

// New wires a boundary to an engine and the generator used for activation codes.
func New(engine *license.Engine, generator *fingerprint.Generator) *Boundary {
	return &Boundary{engine: engine, generator: generator}
}

var defaultBoundary = sync.OnceValue(func() *Boundary {
	gen := fingerprint.New()
	engine := license.NewEngine(
		license.WithKeySource(license.NewCachedKeySource(nil)),
		license.WithFingerprint(gen.Hex),
	)
	return New(engine, gen)
})

// Default returns the process-wide boundary bound to this machine.
func Default() *Boundary {
	return defaultBoundary()
}

// GenerateFingerprint 返回本机激活码（XXXX-XXXX-XXXX-XXXX），失败返回空串
func (b *Boundary) GenerateFingerprint() (code string) {
	defer func() {
		if recover() != nil {
			code = ""
		}
	}()
	code, err := b.generator.Code()
	if err != nil {
		return ""
	}
	return code
}

// VerifyLicense returns the stable result code for licenseText.
func (b *Boundary) VerifyLicense(publicKeyPath, licenseText string) (code int) {
	defer func() {
		if recover() != nil {
			code = int(license.CodeInternal)
		}
	}()
	return int(b.engine.Verify(licenseText, publicKeyPath).Code)
}

// GetLicenseData 校验通过时返回扁平 JSON，任何失败都返回 false，失败原因由 VerifyLicense 区分
func (b *Boundary) GetLicenseData(publicKeyPath, licenseText string) (data string, ok bool) {
	defer func() {
		if recover() != nil {
			data, ok = "", false
		}
	}()
	res := b.engine.Verify(licenseText, publicKeyPath)
	if !res.Accepted() {
		return "", false
	}
	out, err := FlatJSON(res.Payload)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// FlatJSON serializes p as one JSON object: the core fields first, then every
// extra claim in token order. Extra claims named like a core field are dropped.
func FlatJSON(p *license.Payload) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value any) error {
		var raw []byte
		switch v := value.(type) {
		case json.RawMessage:
			raw = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			raw = b
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
		return nil
	}

	core := []struct {
		key   string
		value any
	}{
		{keyIssuer, p.Issuer},
		{keyCustomer, p.Customer},
		{keyFingerprint, p.Fingerprint},
		{keyIssuedAt, p.IssuedAt},
		{keyExpiresAt, p.ExpiresAt},
	}
	for _, c := range core {
		if err := write(c.key, c.value); err != nil {
			return nil, err
		}
	}
	for _, key := range p.Extra.Keys() {
		if coreKeys[key] {
			continue
		}
		raw, _ := p.Extra.Raw(key)
		if err := write(key, raw); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// GenerateFingerprint calls Default().GenerateFingerprint.
func GenerateFingerprint() string {
	return Default().GenerateFingerprint()
}

// VerifyLicense calls Default().VerifyLicense.
func VerifyLicense(publicKeyPath, licenseText string) int {
	return Default().VerifyLicense(publicKeyPath, licenseText)
}

// GetLicenseData calls Default().GetLicenseData.
func GetLicenseData(publicKeyPath, licenseText string) (string, bool) {
	return Default().GetLicenseData(publicKeyPath, licenseText)
}
