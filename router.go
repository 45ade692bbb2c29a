package main

import (
	"context"
	"time"

	"PPSignal/global/config"
	"PPSignal/middleware"
	midsec "PPSignal/middleware/security"
	"PPSignal/module/api"
	"PPSignal/service/chat"
	"PPSignal/service/metrics"
	"PPSignal/service/presence"
	"PPSignal/service/upload"
	"PPSignal/tools/safe"
	"PPSignal/tools/security"

	"github.com/gin-gonic/gin"
)

type routerDeps struct {
	ctx     context.Context
	relay   *chat.Server
	heart   *presence.HeartbeatServer
	tracker *presence.Tracker
	node    string
	version string
}

func newRouter(cfg *config.AppConfig, b *backends, d routerDeps) *gin.Engine {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	mids := middleware.NewManager()
	mids.Add("access", middleware.AccessLog())
	mids.Add("cors", middleware.CORS(cfg.Server.AllowOrigins))

	r := gin.New()
	r.Use(middleware.Recovery(), mids.Use())

	// 静态路径优先于 /ws/:user_id
	r.GET("/ws/heartbeat", d.heart.HandleWS)
	r.GET("/ws/:user_id", d.relay.HandleWS)

	uploads := upload.NewAssembler(b.stores.Files)
	safe.Go("upload-expire", func() { uploads.Run(d.ctx, time.Minute) })

	probes := map[string]api.Probe{}
	for n, p := range b.probes() {
		probes[n] = p
	}
	var reports api.Reporter
	if b.reports != nil {
		reports = b.reports
	}

	conns := d.relay.ConnMgr()
	reg := metrics.NewRegistry(metrics.Sources{
		Conns:         conns,
		Presence:      d.tracker,
		Uploads:       uploads,
		ActiveWindow:  cfg.Presence.ActiveWindow,
		EventsDropped: b.eventsDropped(),
	})

	api.New(api.Deps{
		Conns:        conns,
		Presence:     d.tracker,
		Messages:     b.stores.Messages,
		Files:        b.stores.Files,
		Calls:        b.calls,
		Cipher:       b.cipher,
		Reports:      reports,
		Uploads:      uploads,
		Probes:       probes,
		Backends:     b.names(),
		AdminGuard:   midsec.AdminGuard(security.DefaultOptions([]byte(cfg.Admin.JWTSecret), cfg.Admin.Issuer)),
		Prometheus:   metrics.Handler(reg),
		ActiveWindow: cfg.Presence.ActiveWindow,
		Node:         d.node,
		Version:      d.version,
	}).Register(r)
	return r
}
