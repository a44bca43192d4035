package main

import (
	"flag"
	"os"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	panelLogger "github.com/iWorld-y/expert_panel/app/expert_panel/pkg/logger"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/metrics"
	"github.com/iWorld-y/expert_panel/app/server/internal/conf"
	"github.com/iWorld-y/expert_panel/app/server/internal/data"
	"github.com/iWorld-y/expert_panel/app/server/internal/server"
	"github.com/iWorld-y/expert_panel/app/server/internal/service"
	"github.com/iWorld-y/expert_panel/app/server/internal/usecase"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name 是服务的名称
	Name string = "expert_panel"
	// Version 是服务的版本号
	Version string
	// flagconf 是配置文件的路径命令行参数
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "app/server/configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()
	// 服务日志与引擎日志共用 logrus
	logger := log.With(panelLogger.KratosLogger(),
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	// 初始化配置加载器
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	// 扫描配置到 Bootstrap 结构体
	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	app, cleanup, err := initApp(bc.Server, bc.Data, bc.Panel, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	if err := app.Run(); err != nil {
		panic(err)
	}
}

// initApp 组装各层依赖
func initApp(cs *conf.Server, cd *conf.Data, cp *conf.Panel, logger log.Logger) (*kratos.App, func(), error) {
	m := metrics.New(nil)

	dataData, cleanupData, err := data.NewData(cd, logger)
	if err != nil {
		return nil, nil, err
	}
	eng, cleanupEngine, err := server.NewPanelEngine(cp, m, logger)
	if err != nil {
		cleanupData()
		return nil, nil, err
	}

	reportRepo := data.NewReportRepo(dataData, logger)
	panelUseCase := usecase.NewPanelUseCase(eng, reportRepo, logger)
	reportUseCase := usecase.NewReportUseCase(reportRepo, logger)
	panelService := service.NewPanelService(panelUseCase, reportUseCase, logger)

	httpServer, err := server.NewHTTPServer(cs, panelService, m, logger)
	if err != nil {
		cleanupEngine()
		cleanupData()
		return nil, nil, err
	}

	app := newApp(logger, httpServer)
	return app, func() {
		cleanupEngine()
		cleanupData()
	}, nil
}

func newApp(logger log.Logger, hs *http.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs),
	)
}
