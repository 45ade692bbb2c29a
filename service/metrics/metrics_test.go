package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"PPSignal/service/chat"
	"PPSignal/service/presence"

	"github.com/gin-gonic/gin"
)

func gathered(t *testing.T, s Sources) map[string]float64 {
	t.Helper()
	mfs, err := NewRegistry(s).Gather()
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				out[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				out[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func TestRegistryReadsSources(t *testing.T) {
	tr := presence.NewTracker()
	tr.Update("a", "online", presence.ProtoHTTP)
	tr.Update("b", "away", presence.ProtoHTTP)

	got := gathered(t, Sources{
		Conns:         chat.NewConnManager(),
		Presence:      tr,
		EventsDropped: func() uint64 { return 7 },
	})
	want := map[string]float64{
		"ppsignal_relay_active_connections": 0,
		"ppsignal_relay_connections_total":  0,
		"ppsignal_presence_tracked_users":   2,
		"ppsignal_presence_active_users":    2,
		"ppsignal_events_dropped_total":     7,
	}
	for name, v := range want {
		g, ok := got[name]
		if !ok {
			t.Errorf("%s missing", name)
			continue
		}
		if g != v {
			t.Errorf("%s = %v, want %v", name, g, v)
		}
	}
	if _, ok := got["ppsignal_upload_pending"]; ok {
		t.Error("upload gauge registered without a source")
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler(NewRegistry(Sources{Conns: chat.NewConnManager()})))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ppsignal_relay_active_connections 0") {
		t.Errorf("code = %d body = %.200s", w.Code, w.Body.String())
	}
}
