package license

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Algorithm 是调用方固定的签名算法
type Algorithm string

const (
	PS256 Algorithm = "PS256"
	RS256 Algorithm = "RS256"
	ES256 Algorithm = "ES256"
	EdDSA Algorithm = "EdDSA"
)

// DefaultAlgorithm 与签发工具一致（RSA-PSS + SHA256）
const DefaultAlgorithm = PS256

var signingMethods = map[Algorithm]jwt.SigningMethod{
	PS256: jwt.SigningMethodPS256,
	RS256: jwt.SigningMethodRS256,
	ES256: jwt.SigningMethodES256,
	EdDSA: jwt.SigningMethodEdDSA,
}

// ParseAlgorithm resolves a configured algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return DefaultAlgorithm, nil
	}
	for alg := range signingMethods {
		if strings.EqualFold(string(alg), name) {
			return alg, nil
		}
	}
	return "", fmt.Errorf("unsupported signing algorithm %q", name)
}

// Policy 校验策略。令牌头部声明的 alg 只与策略比对，从不用来选择算法。
type Policy struct {
	Algorithm Algorithm
}

// DefaultPolicy pins the algorithm used by the issuer tooling.
func DefaultPolicy() Policy {
	return Policy{Algorithm: DefaultAlgorithm}
}

// Verifier checks token signatures under a fixed policy.
type Verifier struct {
	policy Policy
	method jwt.SigningMethod
}

func NewVerifier(policy Policy) (*Verifier, error) {
	method, ok := signingMethods[policy.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", policy.Algorithm)
	}
	return &Verifier{policy: policy, method: method}, nil
}

// Policy returns the policy the verifier was built with.
func (v *Verifier) Policy() Policy {
	return v.policy
}

// Verify 对编码后的 header.payload 文本校验签名，任何失败都归为 ErrSignatureInvalid
func (v *Verifier) Verify(token *SignedToken, key *KeyMaterial) error {
	if token == nil || key == nil || key.Key == nil {
		return fmt.Errorf("%w: missing token or key", ErrSignatureInvalid)
	}
	if token.header.Algorithm != string(v.policy.Algorithm) {
		return fmt.Errorf("%w: algorithm %q not allowed, expected %q",
			ErrSignatureInvalid, token.header.Algorithm, v.policy.Algorithm)
	}
	if err := v.method.Verify(token.SigningInput(), token.segments[2], key.Key); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}
