package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(zerolog.Nop())
}

func findMetric(t *testing.T, c *Collector, name string) *dto.MetricFamily {
	t.Helper()
	families, err := c.registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestRecordValidation(t *testing.T) {
	c := newTestCollector(t)

	c.RecordValidation("valid")
	c.RecordValidation("valid")
	c.RecordValidation("expired")

	mf := findMetric(t, c, "dinex_license_validations_total")
	require.NotNil(t, mf)

	byOutcome := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "outcome" {
				byOutcome[l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, byOutcome["valid"])
	assert.Equal(t, 1.0, byOutcome["expired"])
}

func TestRecordCreated(t *testing.T) {
	c := newTestCollector(t)

	c.RecordCreated()
	c.RecordCreated()
	c.RecordCreated()

	mf := findMetric(t, c, "dinex_licenses_created_total")
	require.NotNil(t, mf)
	require.Len(t, mf.GetMetric(), 1)
	assert.Equal(t, 3.0, mf.GetMetric()[0].GetCounter().GetValue())
}

func TestSetExpiredActive(t *testing.T) {
	c := newTestCollector(t)

	c.SetExpiredActive(5)
	mf := findMetric(t, c, "dinex_licenses_expired_active")
	require.NotNil(t, mf)
	assert.Equal(t, 5.0, mf.GetMetric()[0].GetGauge().GetValue())

	c.SetExpiredActive(0)
	mf = findMetric(t, c, "dinex_licenses_expired_active")
	assert.Equal(t, 0.0, mf.GetMetric()[0].GetGauge().GetValue())
}

func TestHandlerServesExposition(t *testing.T) {
	c := newTestCollector(t)
	c.RecordValidation("not_found")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "dinex_license_validations_total")
	assert.Contains(t, body, `outcome="not_found"`)
	assert.Contains(t, body, "go_goroutines", "runtime collectors registered")
}
