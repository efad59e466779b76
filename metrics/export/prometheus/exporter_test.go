package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/notify"
)

type fakeSource struct {
	snapshot goIdentity.MetricsSnapshot
	dropped  uint64
	mail     notify.Stats
}

func (f fakeSource) MetricsSnapshot() goIdentity.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }
func (f fakeSource) MailStats() notify.Stats                     { return f.mail }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters:   map[goIdentity.MetricID]uint64{},
			Histograms: map[goIdentity.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCountersHistogramAndSideChannels(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{
				goIdentity.MetricLoginSuccess:  7,
				goIdentity.MetricAccountLocked: 1,
			},
			Histograms: map[goIdentity.MetricID][]uint64{
				goIdentity.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
		mail:    notify.Stats{Sent: 5, Failed: 1},
	})

	out := exp.Render()
	for _, want := range []string{
		"goidentity_login_success_total 7",
		"goidentity_account_locked_total 1",
		"goidentity_consent_revoked_total 0",
		`goidentity_login_latency_seconds_bucket{le="0.025"} 1`,
		`goidentity_login_latency_seconds_bucket{le="+Inf"} 36`,
		"goidentity_login_latency_seconds_count 36",
		"goidentity_audit_dropped_total 2",
		"goidentity_mail_sent_total 5",
		"goidentity_mail_failed_total 1",
		"goidentity_mail_dropped_total 0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRenderMailOnly(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{mail: notify.Stats{Dropped: 3}})
	if out := exp.Render(); !strings.Contains(out, "goidentity_mail_dropped_total 3") {
		t.Fatalf("expected mail counters without engine metrics, got:\n%s", out)
	}
}

func TestNilExporterRendersNothing(t *testing.T) {
	var exp *Exporter
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters:   map[goIdentity.MetricID]uint64{goIdentity.MetricLoginSuccess: 1},
			Histograms: map[goIdentity.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestExporterReadsEngine(t *testing.T) {
	cfg := goIdentity.DefaultConfig()
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	engine, err := goIdentity.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	_, _ = engine.Authenticate(t.Context(), "not-a-token")

	out := NewExporter(engine).Render()
	if !strings.Contains(out, "goidentity_authenticate_failure_total 1") {
		t.Fatalf("expected engine counters, got:\n%s", out)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{
				goIdentity.MetricLoginSuccess:                1000,
				goIdentity.MetricLoginFailure:                40,
				goIdentity.MetricSessionCreated:              1000,
				goIdentity.MetricSessionRevoked:              20,
				goIdentity.MetricAccountLocked:               4,
				goIdentity.MetricPasswordResetConfirmFailure: 3,
			},
			Histograms: map[goIdentity.MetricID][]uint64{
				goIdentity.MetricLoginLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		mail: notify.Stats{Sent: 30},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
