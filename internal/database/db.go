package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"license-verifier/internal/model"
)

var DB *gorm.DB

// Models 需要自动迁移的表
var Models = []interface{}{
	&model.Activation{},
	&model.VerificationRecord{},
	&model.OperationLog{},
}

func InitDB(dbPath string) error {
	// 创建数据目录
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}

	// 自动迁移模型
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	DB = db
	log.Info().Str("path", dbPath).Msg("数据库已就绪")
	return nil
}

// Close 关闭全局连接
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
