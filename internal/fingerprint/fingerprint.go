package fingerprint

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Size 指纹保留的字节数：80 bit，正好编码为 16 个 base32 字符
const Size = 10

var ErrFingerprintUnavailable = errors.New("no machine fingerprint signal available")

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Fingerprint 机器指纹
type Fingerprint [Size]byte

// Hex 返回写入许可证 fingerprint 声明的十六进制形式
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// Code 返回展示给用户的激活码 "XXXX-XXXX-XXXX-XXXX"
func (f Fingerprint) Code() string {
	s := codeEncoding.EncodeToString(f[:])
	return strings.Join([]string{s[0:4], s[4:8], s[8:12], s[12:16]}, "-")
}

func (f Fingerprint) String() string {
	return f.Code()
}

// FromBytes 取前 10 个字节，不足部分补零
func FromBytes(b []byte) Fingerprint {
	var f Fingerprint
	copy(f[:], b)
	return f
}

// FromHex parses the hex form carried in license payloads.
func FromHex(s string) (Fingerprint, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Fingerprint{}, err
	}
	if len(b) != Size {
		return Fingerprint{}, fmt.Errorf("fingerprint must be %d bytes, got %d", Size, len(b))
	}
	return FromBytes(b), nil
}

// DecodeCode 将激活码（忽略大小写、空格和连字符）还原为指纹
func DecodeCode(code string) (Fingerprint, error) {
	s := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(code))
	if len(s) != 16 {
		return Fingerprint{}, errors.New("activation code must be 16 base32 chars")
	}
	b, err := codeEncoding.DecodeString(s)
	if err != nil {
		return Fingerprint{}, err
	}
	return FromBytes(b), nil
}

// Derive 将各信号按固定顺序以 "|" 拼接后做 SHA-256，取前 10 字节。
// 缺失的信号保留空位，保证其余信号的位置不变。
func Derive(values []string) Fingerprint {
	h := sha256.Sum256([]byte(strings.Join(values, "|")))
	return FromBytes(h[:])
}

// Generator combines machine signals into a fingerprint.
type Generator struct {
	signals []Signal
}

// New builds a generator over the given signals; with none it uses the
// platform defaults.
func New(signals ...Signal) *Generator {
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	return &Generator{signals: signals}
}

// Generate 计算本机指纹。单个信号不可用时用剩余信号，全部不可用才失败。
func (g *Generator) Generate() (Fingerprint, error) {
	values := make([]string, len(g.signals))
	available := 0
	for i, s := range g.signals {
		v, err := s.Value()
		if err != nil {
			continue
		}
		values[i] = v
		available++
	}
	if available == 0 {
		return Fingerprint{}, ErrFingerprintUnavailable
	}
	return Derive(values), nil
}

// Hex is Generate followed by Fingerprint.Hex.
func (g *Generator) Hex() (string, error) {
	f, err := g.Generate()
	if err != nil {
		return "", err
	}
	return f.Hex(), nil
}

// Code is Generate followed by Fingerprint.Code.
func (g *Generator) Code() (string, error) {
	f, err := g.Generate()
	if err != nil {
		return "", err
	}
	return f.Code(), nil
}

// Report lists which signals were available, without their values.
func (g *Generator) Report() map[string]bool {
	out := make(map[string]bool, len(g.signals))
	for _, s := range g.signals {
		_, err := s.Value()
		out[s.Name()] = err == nil
	}
	return out
}
