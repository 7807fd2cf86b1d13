package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAfterInit(t *testing.T) {
	Init(nil, nil)

	ObserveRefresh("_energy", ResultSuccess, 120*time.Millisecond)
	if got := testutil.ToFloat64(refreshTotal.WithLabelValues("_energy", ResultSuccess)); got != 1 {
		t.Fatalf("expected one refresh, got %v", got)
	}

	SetGaugeValue("home", "autarky", 61.5)
	if got := testutil.ToFloat64(gaugeValue.WithLabelValues("home", "autarky")); got != 61.5 {
		t.Fatalf("expected gauge value 61.5, got %v", got)
	}

	AddStreamClients(2)
	AddStreamClients(-1)
	if got := testutil.ToFloat64(streamClients); got != 1 {
		t.Fatalf("expected one stream client, got %v", got)
	}

	IncPublish("", "")
	if got := testutil.ToFloat64(publishTotal.WithLabelValues("unknown", ResultSuccess)); got != 1 {
		t.Fatalf("expected defaulted labels, got %v", got)
	}
}
