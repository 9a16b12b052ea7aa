package license

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
	jose "gopkg.in/square/go-jose.v2"
)

// KeyMaterial 校验时使用的签发方公钥
type KeyMaterial struct {
	Path   string
	Key    crypto.PublicKey
	Digest [sha256.Size]byte
}

// KeySource loads the issuer public key stored at path.
type KeySource interface {
	Load(path string) (*KeyMaterial, error)
}

// FileKeySource 每次调用都重新读取并解析公钥文件
type FileKeySource struct {
	fs afero.Fs
}

func NewFileKeySource(fs afero.Fs) *FileKeySource {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileKeySource{fs: fs}
}

func (s *FileKeySource) Load(path string) (*KeyMaterial, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return newKeyMaterial(path, data)
}

// CachedKeySource 按路径缓存解析结果。每次仍读取文件并比对内容摘要，
// 文件变化后必然重新解析，不会返回过期的公钥。
type CachedKeySource struct {
	fs      afero.Fs
	mu      sync.RWMutex
	entries map[string]*KeyMaterial
	group   singleflight.Group
}

func NewCachedKeySource(fs afero.Fs) *CachedKeySource {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &CachedKeySource{
		fs:      fs,
		entries: make(map[string]*KeyMaterial),
	}
}

func (c *CachedKeySource) Load(path string) (*KeyMaterial, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		c.Invalidate(path)
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	sum := sha256.Sum256(data)

	c.mu.RLock()
	km, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && km.Digest == sum {
		return km, nil
	}

	v, err, _ := c.group.Do(path+"\x00"+hex.EncodeToString(sum[:]), func() (any, error) {
		km, err := newKeyMaterial(path, data)
		if err != nil {
			c.Invalidate(path)
			return nil, err
		}
		c.mu.Lock()
		c.entries[path] = km
		c.mu.Unlock()
		return km, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*KeyMaterial), nil
}

// Invalidate drops the cached key for path.
func (c *CachedKeySource) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Len returns the number of cached keys.
func (c *CachedKeySource) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func newKeyMaterial(path string, data []byte) (*KeyMaterial, error) {
	key, err := ParsePublicKey(data)
	if err != nil {
		return nil, err
	}
	return &KeyMaterial{
		Path:   path,
		Key:    key,
		Digest: sha256.Sum256(data),
	}, nil
}

// ParsePublicKey 解析 PEM（PKIX、PKCS1、证书）或 JWK 格式的公钥
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return parseJWK(trimmed)
	}

	block, _ := pem.Decode(trimmed)
	if block == nil {
		return nil, fmt.Errorf("%w: invalid pem", ErrInvalidPublicKey)
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "CERTIFICATE":
		var cert *x509.Certificate
		cert, err = x509.ParseCertificate(block.Bytes)
		if err == nil {
			key = cert.PublicKey
		}
	default:
		key, err = x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			// 兼容 PKCS1 内容但块类型写成 PUBLIC KEY 的旧文件
			if rpub, err2 := x509.ParsePKCS1PublicKey(block.Bytes); err2 == nil {
				key, err = rpub, nil
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return checkKeyType(key)
}

func parseJWK(data []byte) (crypto.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: jwk: %v", ErrInvalidPublicKey, err)
	}
	if !jwk.Valid() {
		return nil, fmt.Errorf("%w: jwk is not valid", ErrInvalidPublicKey)
	}
	if !jwk.IsPublic() {
		return nil, fmt.Errorf("%w: jwk contains private key material", ErrInvalidPublicKey)
	}
	return checkKeyType(jwk.Key)
}

func checkKeyType(key any) (crypto.PublicKey, error) {
	switch k := key.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return k, nil
	case ed25519.PublicKey:
		if len(k) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: bad ed25519 key size", ErrInvalidPublicKey)
		}
		return k, nil
	case nil:
		return nil, fmt.Errorf("%w: empty key", ErrInvalidPublicKey)
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidPublicKey, key)
	}
}
