package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/config"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/engine"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/logger"
	"github.com/iWorld-y/expert_panel/app/expert_panel/pkg/storage"
)

var (
	flagConfig  string
	flagProblem string
	flagFile    string
	flagOut     string
	flagHTML    string
	flagUser    string
	flagSave    bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "configs/config.yaml", "config path, eg: -config config.yaml")
	flag.StringVar(&flagProblem, "problem", "", "business problem to analyze")
	flag.StringVar(&flagFile, "problem-file", "", "read the business problem from a file")
	flag.StringVar(&flagOut, "out", "-", "output path of the analysis JSON, - for stdout")
	flag.StringVar(&flagHTML, "html", "", "optional path of an HTML rendering of the report")
	flag.StringVar(&flagUser, "user", "", "user id recorded with the archived report")
	flag.BoolVar(&flagSave, "save", false, "archive the report to the configured database")
}

func main() {
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		log.Fatalf("无法加载配置文件: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置错误: %v", err)
	}

	// 2. 初始化日志
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		log.Fatalf("无法初始化日志: %v", err)
	}

	problem, err := readProblem(flagProblem, flagFile)
	if err != nil {
		logger.Log.Fatalf("读取问题失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库 (可选)
	var store *storage.Storage
	if flagSave {
		if !cfg.DB.Enabled() {
			logger.Log.Fatal("配置错误: 使用 -save 需要配置 db.host")
		}
		store, err = storage.NewStorage(cfg.DB)
		if err != nil {
			logger.Log.Fatalf("无法连接数据库: %v", err)
		}
		defer store.Close()
		logger.Log.Info("已成功连接到数据库")
	}

	// 4. 初始化引擎
	eng, err := engine.NewFromConfig(ctx, cfg, nil)
	if err != nil {
		logger.Log.Fatalf("引擎初始化失败: %v", err)
	}

	start := time.Now()
	run, err := eng.Run(ctx, engine.RunOptions{
		Problem: problem,
		ProgressCallback: func(status string, progress int) {
			logger.Log.Infof("进度 %3d%% %s", progress, status)
		},
	})
	if err != nil {
		logger.Log.Fatalf("分析失败: %v", err)
	}
	elapsed := time.Since(start).Seconds()

	// 5. 输出
	if err := writeJSON(flagOut, run); err != nil {
		logger.Log.Fatalf("写入结果失败: %v", err)
	}
	if flagHTML != "" {
		if err := writeHTML(flagHTML, run); err != nil {
			logger.Log.Errorf("生成 HTML 失败: %v", err)
		} else {
			logger.Log.Infof("HTML 报告已生成: %s", flagHTML)
		}
	}

	if store != nil {
		id, err := store.SaveReport(ctx, flagUser, problem, run, elapsed)
		if err != nil {
			logger.Log.Errorf("保存报告失败: %v", err)
		} else {
			logger.Log.Infof("报告已保存到数据库 (id=%d)", id)
		}
	}
}

func readProblem(problem, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		problem = string(data)
	}
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return "", fmt.Errorf("use -problem or -problem-file")
	}
	return problem, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
