package license

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

const segmentDelimiter = "."

// Header 是令牌头部，alg 只作为与校验策略比对的值
type Header struct {
	Algorithm string  `json:"alg"`
	Type      string  `json:"typ,omitempty"`
	Extra     *Fields `json:"-"`
}

// SignedToken 是解析后的三段式许可证令牌，解析后不可变
type SignedToken struct {
	header    Header
	payload   *Payload
	signature []byte
	segments  [3]string
}

// Header returns the decoded header.
func (t *SignedToken) Header() Header {
	return t.header
}

// Payload returns a copy of the decoded payload.
func (t *SignedToken) Payload() *Payload {
	return t.payload.clone()
}

// Signature returns a copy of the raw signature bytes.
func (t *SignedToken) Signature() []byte {
	return bytes.Clone(t.signature)
}

// SigningInput is the exact text the issuer signed: the encoded header and
// payload segments joined by the delimiter.
func (t *SignedToken) SigningInput() string {
	return t.segments[0] + segmentDelimiter + t.segments[1]
}

func (t *SignedToken) String() string {
	return strings.Join(t.segments[:], segmentDelimiter)
}

// Parse 拆分并解码许可证文本，只检查格式，不做任何信任判断
func Parse(text string) (*SignedToken, error) {
	parts := strings.Split(strings.TrimSpace(text), segmentDelimiter)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrStructural, len(parts))
	}

	var decoded [3][]byte
	for i, part := range parts {
		b, err := jwt.DecodeSegment(part)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d is not base64url: %v", ErrStructural, i, err)
		}
		decoded[i] = b
	}

	header, err := decodeHeader(decoded[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrStructural, err)
	}
	payload, err := decodePayload(decoded[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrStructural, err)
	}

	return &SignedToken{
		header:    header,
		payload:   payload,
		signature: decoded[2],
		segments:  [3]string{parts[0], parts[1], parts[2]},
	}, nil
}

// EncodeSegments 把三段原始字节编码为紧凑格式文本，不做签名
func EncodeSegments(header, payload, signature []byte) string {
	return strings.Join([]string{
		jwt.EncodeSegment(header),
		jwt.EncodeSegment(payload),
		jwt.EncodeSegment(signature),
	}, segmentDelimiter)
}

func decodeHeader(data []byte) (Header, error) {
	h := Header{Extra: newFields()}
	var sawAlg bool
	err := walkObject(data, func(key string, raw json.RawMessage) error {
		switch key {
		case "alg":
			sawAlg = true
			return decodeString(raw, &h.Algorithm)
		case "typ":
			return decodeString(raw, &h.Type)
		default:
			h.Extra.set(key, raw)
			return nil
		}
	})
	if err != nil {
		return Header{}, err
	}
	if !sawAlg || h.Algorithm == "" {
		return Header{}, errors.New("missing alg")
	}
	return h, nil
}

func decodePayload(data []byte) (*Payload, error) {
	p := &Payload{Extra: newFields()}
	var sawExp bool
	err := walkObject(data, func(key string, raw json.RawMessage) error {
		switch key {
		case claimCustomer:
			return decodeString(raw, &p.Customer)
		case claimIssuer:
			return decodeString(raw, &p.Issuer)
		case claimFingerprint:
			return decodeString(raw, &p.Fingerprint)
		case claimIssuedAt:
			return decodeInt(raw, &p.IssuedAt)
		case claimExpiresAt:
			sawExp = true
			return decodeInt(raw, &p.ExpiresAt)
		default:
			p.Extra.set(key, raw)
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if p.Customer == "" {
		return nil, errors.New("missing customer")
	}
	if !sawExp {
		return nil, errors.New("missing exp")
	}
	return p, nil
}

// walkObject 按顺序遍历 JSON 对象的键值，拒绝重复键和尾随数据
func walkObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("not a JSON object")
	}

	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.New("invalid object key")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data after object")
	}
	return nil
}

func decodeString(raw json.RawMessage, dst *string) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return errors.New("expected string")
	}
	return json.Unmarshal(raw, dst)
}

func decodeInt(raw json.RawMessage, dst *int64) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return errors.New("expected number")
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	if v, err := n.Int64(); err == nil {
		*dst = v
		return nil
	}
	// 兼容 1.7e9 这类整数值的浮点写法
	f, err := n.Float64()
	if err != nil {
		return err
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return fmt.Errorf("expected integer, got %s", n)
	}
	*dst = int64(f)
	return nil
}
