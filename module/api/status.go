package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Root(c *gin.Context) {
	m := h.d.Conns.Metrics()
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"service":   serviceName,
		"version":   h.d.Version,
		"node":      h.d.Node,
		"timestamp": now(),
		"metrics": gin.H{
			"active_connections": m.ActiveConnections,
			"uptime_seconds":     m.UptimeSeconds,
		},
	})
}

func (h *Handler) probe(ctx context.Context) map[string]gin.H {
	names := make([]string, 0, len(h.d.Probes))
	for n := range h.d.Probes {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make(map[string]gin.H, len(names))
	for _, n := range names {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.d.Probes[n](pctx)
		cancel()
		if err != nil {
			out[n] = gin.H{"status": "degraded", "connected": false, "error": err.Error()}
			continue
		}
		out[n] = gin.H{"status": "healthy", "connected": true}
	}
	return out
}

// Health is always 200; status is "degraded" when any backend probe fails.
func (h *Handler) Health(c *gin.Context) {
	m := h.d.Conns.Metrics()
	services := h.probe(c.Request.Context())
	status := "healthy"
	for _, s := range services {
		if s["connected"] == false {
			status = "degraded"
		}
	}
	encStatus := "disabled"
	if h.d.Cipher.Initialized() {
		encStatus = "healthy"
	}
	services["websocket"] = gin.H{"status": "healthy", "active_connections": m.ActiveConnections}
	services["encryption"] = gin.H{"status": encStatus, "initialized": h.d.Cipher.Initialized()}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"timestamp":       now(),
		"services":        services,
		"active_users":    len(h.d.Presence.Active(h.d.ActiveWindow)),
		"pending_uploads": h.d.Uploads.Pending(),
	})
}

func (h *Handler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Conns.Metrics())
}

func (h *Handler) Diagnostic(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"timestamp":  now(),
		"node":       h.d.Node,
		"websocket":  h.d.Conns.Metrics(),
		"encryption": h.d.Cipher.Status(),
		"backends":   h.d.Backends,
		"services":   h.probe(c.Request.Context()),
		"presence":   gin.H{"tracked": len(h.d.Presence.GetAll())},
		"uploads":    gin.H{"pending": h.d.Uploads.Pending()},
	})
}

func (h *Handler) Connections(c *gin.Context) {
	users := h.d.Conns.ListConnected()
	sort.Strings(users)
	c.JSON(http.StatusOK, gin.H{
		"users":       users,
		"connections": h.d.Conns.Snapshot(),
		"count":       len(users),
	})
}
