package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"license-verifier/internal/config"
	"license-verifier/internal/database"
	"license-verifier/internal/fingerprint"
	"license-verifier/internal/handler"
	"license-verifier/internal/license"
	"license-verifier/internal/logging"
	"license-verifier/internal/middleware"
	"license-verifier/internal/service"
)

const version = "1.0.0"

// 过期扫描间隔
const expiryInterval = time.Minute

func main() {
	app := &cli.App{
		Name:    "license-verifier",
		Usage:   "Machine-bound license verification service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"LICENSE_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			fingerprintCommand(),
			verifyCommand(),
			inspectCommand(),
			syncSheetCommand(),
			hashPasswordCommand(),
			initConfigCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig 读取并校验配置，同时初始化日志
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEngine(cfg *config.Config, gen *fingerprint.Generator) (*license.Engine, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	verifier, err := license.NewVerifier(policy)
	if err != nil {
		return nil, err
	}

	var keys license.KeySource = license.NewFileKeySource(nil)
	if cfg.License.CacheKeys {
		keys = license.NewCachedKeySource(nil)
	}
	return license.NewEngine(
		license.WithKeySource(keys),
		license.WithVerifier(verifier),
		license.WithFingerprint(gen.Hex),
	), nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the activation API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides server.addr",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if addr := c.String("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			// 初始化数据库
			if err := database.InitDB(cfg.Database.Path); err != nil {
				return err
			}
			defer database.Close()

			gen := fingerprint.New()
			engine, err := newEngine(cfg, gen)
			if err != nil {
				return err
			}

			sheets, err := service.NewSheetSyncService(cfg.Sheets.Enabled, cfg.Sheets.CredentialsPath, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)
			if err != nil {
				return fmt.Errorf("初始化Google Sheet同步失败: %w", err)
			}
			metrics := service.NewMetrics()
			svc := service.NewActivationService(engine, cfg.License.PublicKeyPath,
				service.WithSheetSync(sheets),
				service.WithMetrics(metrics),
			)
			handler.InitActivation(svc)
			handler.InitFingerprint(gen)

			if cfg.Admin.PasswordHash == "" {
				log.Warn().Msg("未配置管理员密码，管理接口不可用")
			}

			app := fiber.New(fiber.Config{
				DisableStartupMessage: true,
				ErrorHandler: func(c *fiber.Ctx, err error) error {
					code := fiber.StatusInternalServerError
					var e *fiber.Error
					if errors.As(err, &e) {
						code = e.Code
					}
					return c.Status(code).JSON(fiber.Map{
						"error": err.Error(),
					})
				},
			})

			// 中间件
			app.Use(logger.New())
			app.Use(cors.New())
			handler.SetupRoutes(app, cfg.Admin.PasswordHash, metrics)

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			svc.StartExpiryChecker(ctx, expiryInterval)

			go func() {
				<-ctx.Done()
				log.Info().Msg("正在关闭服务")
				_ = app.ShutdownWithTimeout(5 * time.Second)
			}()

			log.Info().Str("addr", cfg.Server.Addr).Str("algorithm", cfg.License.Algorithm).Msg("服务启动")
			return app.Listen(cfg.Server.Addr)
		},
	}
}

func fingerprintCommand() *cli.Command {
	return &cli.Command{
		Name:  "fingerprint",
		Usage: "Print this machine's activation code",
		Action: func(c *cli.Context) error {
			gen := fingerprint.New()
			fp, err := gen.Generate()
			if err != nil {
				return err
			}
			fmt.Printf("Activation code: %s\n", fp.Code())
			fmt.Printf("Fingerprint:     %s\n", fp.Hex())
			for name, ok := range gen.Report() {
				status := "ok"
				if !ok {
					status = "unavailable"
				}
				fmt.Printf("  %-12s %s\n", name, status)
			}
			return nil
		},
	}
}

// readLicense 参数是已存在的文件时读文件；形如三段令牌的按许可证文本处理；
// 其余按文件路径报错
func readLicense(arg string) (string, error) {
	if arg == "" {
		return "", errors.New("license file or text is required")
	}
	_, statErr := os.Stat(arg)
	if statErr != nil {
		if looksLikeToken(arg) {
			return arg, nil
		}
		return "", fmt.Errorf("read license file: %w", statErr)
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func looksLikeToken(s string) bool {
	s = strings.TrimSpace(s)
	return strings.Count(s, ".") == 2 && !strings.ContainsAny(s, `/\ `)
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify a license on this machine, exit status is the result code",
		ArgsUsage: "<license file or text>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "key",
				Aliases: []string{"k"},
				Usage:   "Public key `FILE`, overrides license.public_key_path",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			text, err := readLicense(c.Args().First())
			if err != nil {
				return err
			}
			keyPath := cfg.License.PublicKeyPath
			if k := c.String("key"); k != "" {
				keyPath = k
			}

			engine, err := newEngine(cfg, fingerprint.New())
			if err != nil {
				return err
			}
			res := engine.Verify(text, keyPath)
			if !res.Accepted() {
				return cli.Exit(fmt.Sprintf("%d %s: %v", res.Code, res.Code, res.Err), int(res.Code))
			}

			p := res.Payload
			fmt.Printf("%d %s\n", res.Code, res.Code)
			fmt.Printf("Customer: %s\n", p.Customer)
			fmt.Printf("Issuer:   %s\n", p.Issuer)
			fmt.Printf("Expires:  %s\n", p.ExpiresTime().Format(time.RFC3339))
			return nil
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Decode a license without verifying it",
		ArgsUsage: "<license file or text>",
		Action: func(c *cli.Context) error {
			text, err := readLicense(c.Args().First())
			if err != nil {
				return err
			}
			token, err := license.Parse(text)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(map[string]any{
				"header":  token.Header(),
				"payload": token.Payload(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println("# signature not verified")
			fmt.Println(string(out))
			return nil
		},
	}
}

func syncSheetCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync-sheet",
		Usage: "Push all activation records to Google Sheets",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if !cfg.Sheets.Enabled {
				return errors.New("sheets.enabled is false")
			}
			if err := database.InitDB(cfg.Database.Path); err != nil {
				return err
			}
			defer database.Close()

			sheets, err := service.NewSheetSyncService(true, cfg.Sheets.CredentialsPath, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName)
			if err != nil {
				return err
			}
			svc := service.NewActivationService(nil, cfg.License.PublicKeyPath)
			acts, err := svc.History()
			if err != nil {
				return err
			}
			if err := sheets.BatchSyncActivations(acts); err != nil {
				return err
			}
			fmt.Printf("Synced %d activations\n", len(acts))
			return nil
		},
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "Print a bcrypt hash for admin.password_hash",
		ArgsUsage: "<password>",
		Action: func(c *cli.Context) error {
			pw := c.Args().First()
			if pw == "" {
				return errors.New("password is required")
			}
			hash, err := middleware.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Write a sample configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Output `FILE`",
				Value: "license.toml",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("path")
			if err := config.InitConfig(path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", path)
			return nil
		},
	}
}
