// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package syncd 装配同步守护进程：存储、远端客户端、连通性、同步引擎、估算客户端、inbox 监听与状态 API
package syncd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	apihttp "github.com/bosmith517/scopekit/internal/api/http"
	"github.com/bosmith517/scopekit/internal/api/http/middleware"
	"github.com/bosmith517/scopekit/internal/capture"
	"github.com/bosmith517/scopekit/internal/connectivity"
	"github.com/bosmith517/scopekit/internal/estimation"
	"github.com/bosmith517/scopekit/internal/queue"
	"github.com/bosmith517/scopekit/internal/remote"
	"github.com/bosmith517/scopekit/internal/storage/blob"
	"github.com/bosmith517/scopekit/internal/storage/cache"
	"github.com/bosmith517/scopekit/internal/syncengine"
	"github.com/bosmith517/scopekit/pkg/config"
	"github.com/bosmith517/scopekit/pkg/log"
	"github.com/bosmith517/scopekit/pkg/secrets"
	"github.com/bosmith517/scopekit/pkg/tracing"
)

// App 同步守护进程
type App struct {
	config *config.Config
	logger *log.Logger

	queue  queue.Store
	blobs  blob.Store
	jobs   estimation.JobStore
	cache  cache.Store
	remote *remote.Client

	monitor  *connectivity.Monitor
	detector *connectivity.Detector
	engine   *syncengine.Engine
	est      *estimation.Client
	watcher  *capture.Watcher
	router   *apihttp.Router

	hertz       *server.Hertz
	tracer      *sdktrace.TracerProvider
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewApp 根据配置装配全部组件（不启动任何后台任务）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logCfg := &log.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}
	// hertz 日志与业务日志共用同一输出（滚动文件只能有一个写者）
	output := log.Output(logCfg)
	logger := log.NewLoggerWithWriter(logCfg, output)
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	ctx := context.Background()
	a := &App{config: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeStores()
		}
	}()

	apiKey, err := resolveAPIKey(ctx, cfg)
	if err != nil {
		return nil, err
	}

	q, err := queue.NewStore(ctx, cfg.Storage.Queue)
	if err != nil {
		return nil, fmt.Errorf("初始化队列存储失败: %w", err)
	}
	a.queue = q
	b, err := blob.NewStore(ctx, cfg.Storage.Blob)
	if err != nil {
		return nil, fmt.Errorf("初始化 blob 存储失败: %w", err)
	}
	a.blobs = b
	jobs, err := estimation.NewJobStore(ctx, cfg.Storage.Jobs)
	if err != nil {
		return nil, fmt.Errorf("初始化作业存储失败: %w", err)
	}
	a.jobs = jobs
	c, err := cache.NewCache(ctx, cfg.Storage.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}
	a.cache = c

	a.remote = remote.New(remote.Config{
		BaseURL:   cfg.Remote.BaseURL,
		APIKey:    apiKey,
		Bucket:    cfg.Remote.Bucket,
		Timeout:   config.Duration(cfg.Remote.Timeout, 30*time.Second),
		RateLimit: cfg.Remote.RateLimitRPS,
		Burst:     cfg.Remote.Burst,
	})

	a.monitor = connectivity.NewMonitor(false)
	if addr := probeAddr(cfg); addr != "" {
		a.detector = connectivity.NewDetector(a.monitor, connectivity.DialProber{
			Addr:    addr,
			Timeout: config.Duration(cfg.Connectivity.ProbeTimeout, 2*time.Second),
		}, config.Duration(cfg.Connectivity.ProbeInterval, 3*time.Second), logger)
	} else {
		logger.Warn("未配置 remote.base_url 或 connectivity.probe_addr，保持离线")
	}

	a.engine = syncengine.New(a.queue, a.blobs, a.remote, a.monitor, syncengine.Config{
		MaxAttempts: cfg.Sync.MaxAttempts,
		Backoff: syncengine.Backoff{
			Base:   config.Duration(cfg.Sync.BackoffBase, time.Second),
			Max:    config.Duration(cfg.Sync.BackoffMax, 16*time.Second),
			Jitter: cfg.Sync.BackoffJitter,
		},
		AutoDrain:     config.Duration(cfg.Sync.AutoDrain, 5*time.Second),
		UploadTimeout: config.Duration(cfg.Sync.UploadTimeout, 30*time.Second),
	}, syncengine.WithLogger(logger))

	a.est = estimation.NewClient(a.remote, a.jobs, a.cache, a.engine, a.monitor, estimation.Config{
		PollInterval: config.Duration(cfg.Estimation.PollInterval, time.Second),
		PollAttempts: cfg.Estimation.PollAttempts,
		MaxAttempts:  cfg.Estimation.MaxAttempts,
		EstimateTTL:  config.Duration(cfg.Storage.Cache.TTL, 0),
	}, estimation.WithLogger(logger))
	a.engine.SetJobProcessor(a.est)

	if cfg.Capture.Enable {
		a.watcher = capture.NewWatcher(capture.Config{
			Inbox:    cfg.Capture.InboxDir,
			TenantID: cfg.Remote.TenantID,
			Debounce: config.Duration(cfg.Capture.Debounce, 500*time.Millisecond),
		}, a.engine, logger)
	}

	handler := apihttp.NewHandler(a.engine, a.est, a.remote, a.monitor.Online)
	a.router = apihttp.NewRouter(handler,
		middleware.NewMiddleware(cfg.Remote.RateLimitRPS, cfg.Remote.Burst),
		middleware.NewAuditMiddleware(logger))

	ok = true
	return a, nil
}

func resolveAPIKey(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.Remote.APIKeySecret == "" {
		return cfg.Remote.APIKey, nil
	}
	store, err := secrets.NewStore(secrets.Config{
		Provider:   cfg.Secrets.Provider,
		Address:    cfg.Secrets.Address,
		Token:      cfg.Secrets.Token,
		PathPrefix: cfg.Secrets.PathPrefix,
	})
	if err != nil {
		return "", fmt.Errorf("初始化 secret store 失败: %w", err)
	}
	return secrets.Resolve(ctx, store, cfg.Remote.APIKeySecret, cfg.Remote.APIKey)
}

// probeAddr 优先 connectivity.probe_addr，否则由 remote.base_url 推导 host:port
func probeAddr(cfg *config.Config) string {
	if cfg.Connectivity.ProbeAddr != "" {
		return cfg.Connectivity.ProbeAddr
	}
	if cfg.Remote.BaseURL == "" {
		return ""
	}
	u, err := url.Parse(cfg.Remote.BaseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// Start 启动后台任务与 HTTP 服务
func (a *App) Start() error {
	a.logger.Info("启动 syncd")

	if a.config.Monitoring.Tracing.Enable && a.config.Monitoring.Tracing.ExportEndpoint != "" {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    a.config.Monitoring.Tracing.ServiceName,
			ExportEndpoint: a.config.Monitoring.Tracing.ExportEndpoint,
			Insecure:       a.config.Monitoring.Tracing.Insecure,
		})
		if err != nil {
			a.logger.Warn("链路追踪初始化失败", "error", err)
		} else {
			a.tracer = tp
			a.logger.Info("链路追踪已启用", "endpoint", a.config.Monitoring.Tracing.ExportEndpoint)
		}
	}

	a.startBackground()

	addr := fmt.Sprintf("%s:%d", a.config.API.Host, a.config.API.Port)
	a.hertz = a.router.Build(addr, a.serverTracing()...)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.hertz.Run(); err != nil {
			a.logger.Error("状态 API 退出", "error", err)
		}
	}()
	a.logger.Info("syncd 启动成功", "api", addr)
	return nil
}

// serverTracing 追踪已启用时为状态 API 挂上 hertz 服务端 tracer（使用 InitTracer 设置的全局 provider）
func (a *App) serverTracing() []hertzconfig.Option {
	if a.tracer == nil {
		return nil
	}
	tracerOpt, cfg := hertztracing.NewServerTracer()
	a.router.Use(hertztracing.ServerMiddleware(cfg))
	return []hertzconfig.Option{tracerOpt}
}

// startBackground 启动连通性探测、同步循环、上线补处理与 inbox 监听
func (a *App) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	// 上线时重试离线估算作业（与同步引擎的 drain 并行，作业处理内部去重）
	a.unsubscribe = a.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if _, err := a.est.ProcessQueuedJobs(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("处理离线估算作业失败", "error", err)
			}
		}()
	})

	a.engine.Start(ctx)

	if a.detector != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.detector.Run(ctx)
		}()
	}
	if a.watcher != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.watcher.Run(ctx); err != nil {
				a.logger.Error("inbox 监听退出", "error", err)
			}
		}()
	}
}

// Shutdown 优雅关闭（传入 ctx 以支持超时）
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("关闭 syncd")
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			a.logger.Error("关闭状态 API 失败", "error", err)
		}
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.engine.Stop()
	a.est.Close()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("等待后台任务退出超时")
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("关闭 tracer 失败", "error", err)
		}
	}
	a.closeStores()
	a.logger.Info("syncd 已关闭")
	return nil
}

func (a *App) closeStores() {
	closers := []struct {
		name string
		c    interface{ Close() error }
	}{
		{"队列存储", a.queue}, {"blob 存储", a.blobs}, {"作业存储", a.jobs}, {"缓存", a.cache},
	}
	for _, c := range closers {
		if c.c == nil {
			continue
		}
		if err := c.c.Close(); err != nil {
			a.logger.Error("关闭"+c.name+"失败", "error", err)
		}
	}
}
