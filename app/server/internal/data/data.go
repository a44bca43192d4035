package data

import (
	"os"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/config"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/storage"
	"github.com/iWorld-y/expert_panel/app/server/internal/conf"
)

// Data 数据层资源；未配置数据库时 store 为 nil，报告相关接口不可用
type Data struct {
	store *storage.Storage
}

func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	helper := log.NewHelper(logger)
	if c == nil || c.Database == nil || c.Database.Host == "" {
		helper.Warn("database is not configured, reports will not be archived")
		return &Data{}, func() {}, nil
	}

	store, err := storage.NewStorage(dbConfig(c.Database))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		store.Close()
	}
	return &Data{store: store}, cleanup, nil
}

func dbConfig(c *conf.Database) config.DBConfig {
	cfg := config.DBConfig{
		Host:        c.Host,
		Port:        int(c.Port),
		User:        c.User,
		Password:    c.Password,
		PasswordEnv: c.PasswordEnv,
		Name:        c.Name,
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.PasswordEnv == "" {
		cfg.PasswordEnv = config.DefaultDBPasswordEnv
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv(cfg.PasswordEnv)
	}
	return cfg
}
