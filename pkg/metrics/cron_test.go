package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name, job string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue(m, "job") == job {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s{job=%q} not found", name, job)
	return 0
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestCronJobMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.IncSuccess("overdue-loans")
	m.IncFailure("overdue-loans")
	m.AddProcessed("overdue-loans", 7)
	m.ObserveDuration("overdue-loans", 250*time.Millisecond)

	if got := counterValue(t, reg, "readstack_cron_job_success", "overdue-loans"); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := counterValue(t, reg, "readstack_cron_job_failure", "overdue-loans"); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := counterValue(t, reg, "readstack_cron_job_records_processed", "overdue-loans"); got != 7 {
		t.Fatalf("expected 7 processed, got %v", got)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.AddProcessed("x", 1)
	m.ObserveDuration("x", time.Second)

	empty := NewCronJobMetrics(nil)
	empty.IncSuccess("")
	empty.ObserveDuration("", 0)
}
