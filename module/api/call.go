package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type createCallReq struct {
	CallerID   string `json:"caller_id"`
	ReceiverID string `json:"receiver_id"`
	CallType   string `json:"call_type"`
}

func (h *Handler) CreateCall(c *gin.Context) {
	var req createCallReq
	if !bind(c, &req) {
		return
	}
	call, err := h.d.Calls.Create(c.Request.Context(), req.CallerID, req.ReceiverID, req.CallType)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "call_id": call.ID, "call": call})
}

type updateCallReq struct {
	CallID  string     `json:"call_id"`
	Status  string     `json:"status"`
	EndedAt *time.Time `json:"ended_at"`
}

func (h *Handler) UpdateCall(c *gin.Context) {
	var req updateCallReq
	if !bind(c, &req) {
		return
	}
	req.CallID = strings.TrimSpace(req.CallID)
	req.Status = strings.TrimSpace(req.Status)
	if req.CallID == "" || req.Status == "" {
		badRequest(c, "call_id and status required")
		return
	}
	call, err := h.d.Calls.Update(c.Request.Context(), req.CallID, req.Status, req.EndedAt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Call updated to " + call.Status, "call": call})
}

func (h *Handler) CallHistory(c *gin.Context) {
	user, ok := validID(c.Param("user_id"), maxIDLen)
	if !ok {
		badRequest(c, "invalid user_id")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	calls, err := h.d.Calls.History(c.Request.Context(), user, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls, "count": len(calls)})
}
