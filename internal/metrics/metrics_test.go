package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStage(t *testing.T) {
	r := New()

	r.ObserveStage("transcribe", "ok", 200*time.Millisecond)
	r.ObserveStage("transcribe", "ok", time.Second)
	r.ObserveStage("transcribe", "timeout", 60*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.stageOutcomes.WithLabelValues("transcribe", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageOutcomes.WithLabelValues("transcribe", "timeout")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stageDuration))
}

func TestConsultationLifecycle(t *testing.T) {
	r := New()

	r.ConsultationStarted()
	r.ConsultationStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.consultationsInFly))

	r.ConsultationFinished("ok", 3*time.Second)
	r.ConsultationFinished("degraded", 5*time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.consultationsInFly))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.consultations.WithLabelValues("degraded")))
}

func TestSynthesisTier(t *testing.T) {
	r := New()
	r.SynthesisTier("elevenlabs")
	r.SynthesisTier("gtts")
	r.SynthesisTier("gtts")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.synthesisTier.WithLabelValues("gtts")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveStage("detect", "ok", time.Second)
		r.ConsultationStarted()
		r.ConsultationFinished("ok", time.Second)
		r.SynthesisTier("none")
	})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.SynthesisTier("elevenlabs")

	server := httptest.NewServer(r.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `voicedoc_synthesis_tier_total{provider="elevenlabs"} 1`)
}
