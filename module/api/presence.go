package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"PPSignal/service/presence"

	"github.com/gin-gonic/gin"
)

func (h *Handler) UserPresence(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Presence.Get(c.Param("user_id")))
}

// AllPresence returns every record, or only those seen within
// ?active_within=<seconds>.
func (h *Handler) AllPresence(c *gin.Context) {
	var users map[string]presence.Record
	if raw := c.Query("active_within"); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs <= 0 {
			badRequest(c, "active_within must be a positive number of seconds")
			return
		}
		users = h.d.Presence.Active(time.Duration(secs * float64(time.Second)))
	} else {
		users = h.d.Presence.GetAll()
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

type heartbeatReq struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

func (h *Handler) Heartbeat(c *gin.Context) {
	var req heartbeatReq
	if !bind(c, &req) {
		return
	}
	r, err := h.d.Presence.Update(req.UserID, req.Status, presence.ProtoHTTP)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user_id": strings.TrimSpace(req.UserID), "status": r.Status})
}
