package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"license-verifier/internal/license"
)

// EnvPrefix 环境变量前缀，LICENSE_SERVER_ADDR 对应 server.addr
const EnvPrefix = "LICENSE_"

// Config 服务与命令行共用的配置
type Config struct {
	Server struct {
		Addr string `koanf:"addr" validate:"required"`
	} `koanf:"server"`

	License struct {
		PublicKeyPath string `koanf:"public_key_path" validate:"required"`
		Algorithm     string `koanf:"algorithm"`
		CacheKeys     bool   `koanf:"cache_keys"`
	} `koanf:"license"`

	Database struct {
		Path string `koanf:"path" validate:"required"`
	} `koanf:"database"`

	Admin struct {
		PasswordHash string `koanf:"password_hash"`
	} `koanf:"admin"`

	Log struct {
		Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
		Format string `koanf:"format" validate:"oneof=console json"`
	} `koanf:"log"`

	Sheets struct {
		Enabled         bool   `koanf:"enabled"`
		CredentialsPath string `koanf:"credentials_path" validate:"required_if=Enabled true"`
		SpreadsheetID   string `koanf:"spreadsheet_id" validate:"required_if=Enabled true"`
		SheetName       string `koanf:"sheet_name"`
	} `koanf:"sheets"`
}

var defaults = map[string]interface{}{
	"server.addr":             ":8080",
	"license.public_key_path": "public.pem",
	"license.algorithm":       string(license.DefaultAlgorithm),
	"license.cache_keys":      true,
	"database.path":           "data/license.db",
	"log.level":               "info",
	"log.format":              "console",
	"sheets.enabled":          false,
	"sheets.sheet_name":       "Activations",
}

// DefaultPaths 未指定配置文件时依次尝试
var DefaultPaths = []string{"./license.toml", "$HOME/.license-verifier.toml"}

// Load 按 默认值 -> TOML 文件 -> 环境变量 的顺序合并配置
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config %s: %w", path, err)
			}
			break
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// envKey 只把第一个下划线当作层级分隔，key 本身可以带下划线
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// Validate checks required fields and that the pinned algorithm is supported.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := license.ParseAlgorithm(cfg.License.Algorithm); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Policy returns the signature policy named by license.algorithm.
func (c *Config) Policy() (license.Policy, error) {
	alg, err := license.ParseAlgorithm(c.License.Algorithm)
	if err != nil {
		return license.Policy{}, err
	}
	return license.Policy{Algorithm: alg}, nil
}

// InitConfig writes a sample configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sample := `# License verifier configuration

[server]
addr = ":8080"

[license]
public_key_path = "public.pem"
algorithm = "PS256"
cache_keys = true

[database]
path = "data/license.db"

[admin]
# bcrypt hash, see: license-verifier hash-password
password_hash = ""

[log]
level = "info"
format = "console"

[sheets]
enabled = false
credentials_path = "credentials.json"
spreadsheet_id = ""
sheet_name = "Activations"
`
	return os.WriteFile(configPath, []byte(sample), 0644)
}
