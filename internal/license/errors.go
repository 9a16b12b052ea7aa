package license

import "errors"

// 校验失败分类，每次校验恰好命中其中一种
var (
	ErrInvalidPublicKey    = errors.New("invalid public key")
	ErrStructural          = errors.New("malformed license token")
	ErrSignatureInvalid    = errors.New("license signature invalid")
	ErrExpired             = errors.New("license expired")
	ErrFingerprintMismatch = errors.New("license bound to a different machine")
	ErrInternal            = errors.New("internal error")
)

// Code 是对外暴露的稳定错误码，不可重新编号
type Code int

const (
	CodeSuccess Code = iota
	CodeInvalidPublicKey
	CodeInvalidLicense
	CodeExpired
	CodeFingerprintMismatch
	CodeInternal
)

var codeNames = map[Code]string{
	CodeSuccess:             "success",
	CodeInvalidPublicKey:    "invalid_public_key",
	CodeInvalidLicense:      "invalid_license",
	CodeExpired:             "expired",
	CodeFingerprintMismatch: "fingerprint_mismatch",
	CodeInternal:            "internal_error",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// CodeOf 将校验错误映射为错误码，无法识别的错误归为内部错误
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, ErrInvalidPublicKey):
		return CodeInvalidPublicKey
	case errors.Is(err, ErrStructural), errors.Is(err, ErrSignatureInvalid):
		return CodeInvalidLicense
	case errors.Is(err, ErrExpired):
		return CodeExpired
	case errors.Is(err, ErrFingerprintMismatch):
		return CodeFingerprintMismatch
	default:
		return CodeInternal
	}
}
