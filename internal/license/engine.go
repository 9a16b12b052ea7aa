package license

import (
	"errors"
	"fmt"
	"time"
)

// FingerprintFunc returns the binding value expected in the fingerprint claim
// for the current machine.
type FingerprintFunc func() (string, error)

// Engine 串联公钥加载、令牌解析、签名校验与载荷校验。
// 无共享可变状态，可并发调用。
type Engine struct {
	keys        KeySource
	verifier    *Verifier
	fingerprint FingerprintFunc
	now         func() time.Time
}

type Option func(*Engine)

// WithKeySource replaces the default uncached file key source.
func WithKeySource(ks KeySource) Option {
	return func(e *Engine) { e.keys = ks }
}

// WithFingerprint sets how the expected machine fingerprint is computed.
func WithFingerprint(fn FingerprintFunc) Option {
	return func(e *Engine) { e.fingerprint = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithVerifier pins a non-default signature policy.
func WithVerifier(v *Verifier) Option {
	return func(e *Engine) { e.verifier = v }
}

func NewEngine(opts ...Option) *Engine {
	v, _ := NewVerifier(DefaultPolicy())
	e := &Engine{
		keys:     NewFileKeySource(nil),
		verifier: v,
		now:      time.Now,
		fingerprint: func() (string, error) {
			return "", fmt.Errorf("%w: no fingerprint source configured", ErrInternal)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify 按顺序执行校验，遇到第一个失败立即返回，不做重试
func (e *Engine) Verify(licenseText, publicKeyPath string) Result {
	return e.VerifyAt(licenseText, publicKeyPath, e.now())
}

// VerifyAt is Verify with an explicit current time.
func (e *Engine) VerifyAt(licenseText, publicKeyPath string, now time.Time) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = reject(res.Stage, fmt.Errorf("%w: %v", ErrInternal, r))
		}
	}()

	key, err := e.keys.Load(publicKeyPath)
	if err != nil {
		if !errors.Is(err, ErrInvalidPublicKey) {
			err = fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return reject(StageUnstarted, err)
	}
	res.Stage = StageKeyLoaded

	token, err := Parse(licenseText)
	if err != nil {
		return reject(StageKeyLoaded, err)
	}
	res.Stage = StageParsed

	if err := e.verifier.Verify(token, key); err != nil {
		return reject(StageParsed, err)
	}
	res.Stage = StageSignatureChecked

	expected, err := e.fingerprint()
	if err != nil {
		return reject(StageSignatureChecked, fmt.Errorf("%w: fingerprint: %v", ErrInternal, err))
	}
	payload := token.Payload()
	if err := Validate(payload, expected, now); err != nil {
		return reject(StageSignatureChecked, err)
	}

	return Result{Code: CodeSuccess, Stage: StageAccepted, Payload: payload}
}
