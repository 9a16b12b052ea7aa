package license

import (
	"fmt"
	"time"
)

// 载荷中的标准声明名称，与签发工具保持一致
const (
	claimCustomer    = "customer"
	claimIssuer      = "iss"
	claimFingerprint = "fingerprint"
	claimIssuedAt    = "iat"
	claimExpiresAt   = "exp"
)

// Payload 许可证内容
type Payload struct {
	Customer    string  `json:"customer"`
	Issuer      string  `json:"issuer"`
	Fingerprint string  `json:"fingerprint"`
	IssuedAt    int64   `json:"issued_at"`
	ExpiresAt   int64   `json:"expires_at"`
	Extra       *Fields `json:"extra,omitempty"`
}

// IssuedTime returns issued_at as a UTC time.
func (p *Payload) IssuedTime() time.Time {
	return time.Unix(p.IssuedAt, 0).UTC()
}

// ExpiresTime returns expires_at as a UTC time.
func (p *Payload) ExpiresTime() time.Time {
	return time.Unix(p.ExpiresAt, 0).UTC()
}

func (p *Payload) clone() *Payload {
	if p == nil {
		return nil
	}
	c := *p
	c.Extra = newFields()
	for _, k := range p.Extra.Keys() {
		raw, _ := p.Extra.Raw(k)
		c.Extra.set(k, raw)
	}
	return &c
}

// Validate 在签名通过后检查有效期与机器绑定。
// 两项同时失败时固定先报告过期。
func Validate(p *Payload, expectedFingerprint string, now time.Time) error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", ErrInternal)
	}
	if expired(now.Unix(), p.ExpiresAt) {
		return fmt.Errorf("%w: expired at %s", ErrExpired, p.ExpiresTime().Format(time.RFC3339))
	}
	if p.Fingerprint != expectedFingerprint {
		return ErrFingerprintMismatch
	}
	return nil
}

// expired 按分钟截断后比较，吸收一分钟以内的时钟偏差
func expired(now, expiresAt int64) bool {
	return floorMinute(now) > floorMinute(expiresAt)
}

func floorMinute(sec int64) int64 {
	m := sec / 60
	if sec%60 < 0 {
		m--
	}
	return m
}
