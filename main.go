package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"PPSignal/global/config"
	"PPSignal/logger"
	"PPSignal/service/chat"
	"PPSignal/service/chat/handlers"
	"PPSignal/service/nacos"
	"PPSignal/service/presence"
	"PPSignal/service/rpc"
	"PPSignal/tools/ids"
	"PPSignal/tools/safe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	cfgPath := flag.String("config", "", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logger.Sync()

	if err := run(cfg, *cfgPath); err != nil {
		logger.Error("ppsignal stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, cfgPath string) error {
	ids.SetNodeID(cfg.Server.NodeID)
	node := uuid.NewString()
	logger.Info("ppsignal starting", zap.String("version", version), zap.String("node", node), zap.String("addr", cfg.Server.Addr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := openBackends(ctx, cfg, node)
	defer b.close()

	// ===== relay core =====
	connMgr := chat.NewConnManagerWithConf(chat.ManagerConf{Events: b.events(), Node: node})
	if b.nats != nil {
		if err := natsWatch(b, connMgr, node); err != nil {
			logger.Warn("cluster kick disabled", zap.Error(err))
		}
	}
	disp := chat.NewDispatcher()
	handlers.Register(disp)
	relay := chat.NewServer(ctx, connMgr, disp, cfg.Relay)
	sweeper := chat.NewSweeper(connMgr, cfg.Relay)
	safe.Go("sweeper", sweeper.Run)

	// ===== relay hot reload =====
	if cfgPath != "" {
		w, err := config.NewWatcher(cfgPath, cfg.Relay)
		if err != nil {
			logger.Warn("config watcher disabled", zap.Error(err))
		} else {
			w.OnRelayChange(relay.Apply)
			w.OnRelayChange(sweeper.Apply)
			safe.Go("config-watcher", func() { w.Run(ctx) })
			watchNacos(ctx, cfg.Nacos, w)
		}
	}

	// ===== presence =====
	tracker := presence.NewTracker(b.trackerOptions()...)
	if cfg.Presence.UDPAddr != "" {
		udp, err := presence.ListenUDP(cfg.Presence.UDPAddr, tracker)
		if err != nil {
			logger.Warn("udp heartbeat disabled", zap.Error(err))
		} else {
			safe.Go("udp-heartbeat", func() { udp.Serve(ctx) })
			defer udp.Close()
		}
	}
	hb := presence.NewHeartbeatServer(ctx, tracker, cfg.Relay.WriteTimeout)

	// ===== grpc health =====
	health := rpc.NewHealthServer(b.rpcProbes(), 0)
	if cfg.Grpc.Addr != "" {
		lis, err := net.Listen("tcp", cfg.Grpc.Addr)
		if err != nil {
			logger.Warn("grpc health disabled", zap.Error(err))
		} else {
			safe.Go("grpc-health", func() {
				if err := health.Serve(lis); err != nil {
					logger.Error("grpc health stopped", zap.Error(err))
				}
			})
			safe.Go("grpc-health-probe", func() { health.Run(ctx) })
		}
	}

	// ===== http =====
	r := newRouter(cfg, b, routerDeps{
		ctx:     ctx,
		relay:   relay,
		heart:   hb,
		tracker: tracker,
		node:    node,
		version: version,
	})
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	reg := registerNacos(cfg)

	errCh := make(chan error, 1)
	safe.Go("http-server", func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	// 关闭顺序：先停接入，再清理连接，最后断开后端
	if reg != nil {
		reg.Deregister()
	}
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sweeper.Stop()
	connMgr.Close()
	health.Shutdown()
	logger.Info("ppsignal stopped", zap.Any("metrics", connMgr.Metrics()))
	return runErr
}

func watchNacos(ctx context.Context, c config.NacosConfig, w *config.Watcher) {
	if c.Host == "" {
		return
	}
	client, err := nacos.NewConfigClient(c)
	if err != nil {
		logger.Warn("nacos config client", zap.Error(err))
		return
	}
	if err := nacos.WatchRelay(ctx, client, c, w); err != nil {
		logger.Warn("nacos relay watch disabled", zap.Error(err))
	}
}

func registerNacos(cfg *config.AppConfig) *nacos.Registry {
	if cfg.Nacos.Host == "" {
		return nil
	}
	_, portStr, err := net.SplitHostPort(cfg.Server.Addr)
	if err != nil {
		logger.Warn("nacos register skipped", zap.String("addr", cfg.Server.Addr), zap.Error(err))
		return nil
	}
	port, _ := strconv.ParseUint(portStr, 10, 64)
	client, err := nacos.NewNamingClient(cfg.Nacos)
	if err != nil {
		logger.Warn("nacos naming client", zap.Error(err))
		return nil
	}
	reg := nacos.NewRegistry(client, cfg.Nacos.ServiceName, cfg.Nacos.AdvertiseIP, port, cfg.Nacos.Group)
	if err := reg.Register(); err != nil {
		logger.Warn("nacos register failed", zap.Error(err))
		return nil
	}
	return reg
}
