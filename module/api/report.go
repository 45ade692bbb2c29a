package api

import (
	"net/http"
	"strings"
	"time"

	"PPSignal/logger"
	"PPSignal/service/kafka"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reporter queues a moderation report. *kafka.ReportProducer is the real
// one.
type Reporter interface {
	SendReport(r kafka.Report) (int32, int64, error)
}

// LogReporter only logs; used when no brokers are configured.
type LogReporter struct{}

func (LogReporter) SendReport(r kafka.Report) (int32, int64, error) {
	logger.Warn("message reported", zap.String("report", r.ID), zap.String("message", r.MessageID),
		zap.String("reporter", r.ReporterID), zap.String("reason", r.Reason))
	return -1, -1, nil
}

type reportReq struct {
	MessageID  string `json:"message_id"`
	ReporterID string `json:"reporter_id"`
	Reason     string `json:"reason"`
}

func (h *Handler) Report(c *gin.Context) {
	var req reportReq
	if !bind(c, &req) {
		return
	}
	msgID := strings.TrimSpace(req.MessageID)
	reporter := strings.TrimSpace(req.ReporterID)
	reason := strings.TrimSpace(req.Reason)
	if msgID == "" || reporter == "" {
		badRequest(c, "message_id and reporter_id required")
		return
	}
	if n := len([]rune(reason)); n < 5 || n > 500 {
		badRequest(c, "reason must be 5-500 characters")
		return
	}

	r := kafka.Report{
		ID:         uuid.NewString(),
		MessageID:  msgID,
		ReporterID: reporter,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
	part, off, err := h.d.Reports.SendReport(r)
	if err != nil {
		fail(c, err)
		return
	}
	resp := gin.H{"success": true, "message_id": msgID, "report_id": r.ID, "status": "reported"}
	if part >= 0 {
		resp["partition"] = part
		resp["offset"] = off
	}
	c.JSON(http.StatusOK, resp)
}
