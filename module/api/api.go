package api

import (
	"context"
	"time"

	"PPSignal/middleware"
	"PPSignal/service/chat"
	"PPSignal/service/mgo"
	"PPSignal/service/pgsql"
	"PPSignal/service/presence"
	"PPSignal/service/upload"
	"PPSignal/tools/security"

	"github.com/gin-gonic/gin"
)

const serviceName = "PPSignal"

const defaultMaxChunkBytes = 8 << 20

// Probe reports whether one backend is reachable.
type Probe func(ctx context.Context) error

// Deps are the collaborators behind the HTTP surface. Nil optional
// fields fall back to in-memory or log-only versions in New.
type Deps struct {
	Conns    *chat.ConnManager
	Presence *presence.Tracker
	Messages mgo.MessageStore
	Files    mgo.FileStore
	Calls    pgsql.CallStore
	Cipher   *security.Cipher
	Reports  Reporter
	Uploads  *upload.Assembler

	// Probes feed /health; Backends names the implementation per store
	// for /api/diagnostic.
	Probes   map[string]Probe
	Backends map[string]string

	MaxChunkBytes int64 // upload_chunk 请求体上限

	AdminGuard   gin.HandlerFunc
	Prometheus   gin.HandlerFunc // 非空时挂 /metrics
	ActiveWindow time.Duration
	Node         string
	Version      string
}

type Handler struct {
	d Deps
}

func New(d Deps) *Handler {
	if d.Messages == nil {
		d.Messages = mgo.NewMemoryMessageStore()
	}
	if d.Files == nil {
		d.Files = mgo.NewMemoryFileStore()
	}
	if d.Calls == nil {
		d.Calls = pgsql.NewMemoryCallStore()
	}
	if d.Reports == nil {
		d.Reports = LogReporter{}
	}
	if d.Uploads == nil {
		d.Uploads = upload.NewAssembler(d.Files)
	}
	if d.Cipher == nil {
		d.Cipher, _ = security.NewCipher("")
	}
	if d.MaxChunkBytes <= 0 {
		d.MaxChunkBytes = defaultMaxChunkBytes
	}
	if d.ActiveWindow <= 0 {
		d.ActiveWindow = 2 * time.Minute
	}
	if d.Version == "" {
		d.Version = "dev"
	}
	return &Handler{d: d}
}

// Register mounts every HTTP route on r.
func (h *Handler) Register(r gin.IRouter) {
	admin := middleware.RouteOpt{Guard: h.d.AdminGuard}
	open := middleware.RouteOpt{}

	middleware.GET(r, "/", h.Root, open)
	middleware.GET(r, "/health", h.Health, open)
	if h.d.Prometheus != nil {
		middleware.GET(r, "/metrics", h.d.Prometheus, open)
	}

	g := r.Group("/api")
	middleware.GET(g, "/metrics", h.Metrics, open)
	middleware.GET(g, "/diagnostic", h.Diagnostic, admin)
	middleware.GET(g, "/connections", h.Connections, open)

	middleware.GET(g, "/presence/:user_id", h.UserPresence, open)
	middleware.GET(g, "/presence", h.AllPresence, open)
	middleware.POST(g, "/heartbeat", h.Heartbeat, open)

	middleware.POST(g, "/send_message", h.SendMessage, open)
	middleware.GET(g, "/get_messages/:conversation_id", h.GetMessages, open)
	middleware.POST(g, "/decrypt_message", h.DecryptMessage, open)
	middleware.POST(g, "/report", h.Report, open)

	middleware.POST(g, "/upload_chunk", h.UploadChunk, open)
	middleware.GET(g, "/files/:id", h.File, open)

	middleware.POST(g, "/calls/create", h.CreateCall, open)
	middleware.POST(g, "/calls/update", h.UpdateCall, open)
	middleware.GET(g, "/calls/history/:user_id", h.CallHistory, open)
}

func now() string { return time.Now().Format(time.RFC3339) }
