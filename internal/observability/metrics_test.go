package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestChatMetrics_Registered(t *testing.T) {
	RoomPushes.WithLabelValues("message").Inc()
	MessagesSent.WithLabelValues("ws").Inc()
	NotificationsCreated.WithLabelValues("message").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{
		"chat_ws_connections":              false,
		"chat_room_pushes_total":           false,
		"chat_messages_sent_total":         false,
		"chat_notifications_created_total": false,
		"chat_fanout_failures_total":       false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("metric %s not registered", name)
		}
	}
}

func TestFanoutFailures_Increments(t *testing.T) {
	before := counterValue(t, FanoutFailures)
	FanoutFailures.Inc()
	if got := counterValue(t, FanoutFailures); got != before+1 {
		t.Fatalf("FanoutFailures = %v; want %v", got, before+1)
	}
}
