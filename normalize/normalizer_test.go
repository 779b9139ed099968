package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/core"
)

func rawAlarm() *RawSignal {
	return &RawSignal{
		SourceID:     "alarm:checkout-5xx",
		Type:         "Metric_Alarm",
		Service:      "Checkout",
		Severity:     "HIGH",
		Timestamp:    time.Date(2026, 3, 1, 10, 0, 30, 0, time.FixedZone("CET", 3600)),
		ResourceRefs: []string{"arn:svc:checkout", " "},
		Fields:       map[string]interface{}{"threshold": 0.05},
	}
}

func TestNormalize_Canonicalizes(t *testing.T) {
	sig, err := Normalize(rawAlarm())
	require.NoError(t, err)

	assert.Equal(t, "metric_alarm", sig.Type)
	assert.Equal(t, "checkout", sig.Service)
	assert.Equal(t, core.SeverityHigh, sig.Severity)
	assert.Equal(t, time.UTC, sig.ObservedAt.Location())
	assert.Equal(t, []string{"arn:svc:checkout"}, sig.ResourceRefs)
	assert.NotEmpty(t, sig.IdentityWindow)
	assert.Len(t, sig.SignalID, 64)
}

func TestNormalize_Deterministic(t *testing.T) {
	a, err := Normalize(rawAlarm())
	require.NoError(t, err)
	b, err := Normalize(rawAlarm())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalize_FailClosed(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*RawSignal)
	}{
		{"missing source", func(r *RawSignal) { r.SourceID = "" }},
		{"missing type", func(r *RawSignal) { r.Type = "  " }},
		{"missing service", func(r *RawSignal) { r.Service = "" }},
		{"zero timestamp", func(r *RawSignal) { r.Timestamp = time.Time{} }},
		{"unknown severity", func(r *RawSignal) { r.Severity = "catastrophic" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := rawAlarm()
			tc.mutate(raw)
			_, err := Normalize(raw)
			require.Error(t, err)
			assert.True(t, core.IsValidation(err))
		})
	}

	_, err := Normalize(nil)
	require.Error(t, err)
}

func TestNormalize_DefaultsSeverityToInfo(t *testing.T) {
	raw := rawAlarm()
	raw.Severity = ""
	sig, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, core.SeverityInfo, sig.Severity)
}

func TestNormalize_NeverInfersRefs(t *testing.T) {
	raw := rawAlarm()
	raw.ResourceRefs = nil
	raw.Fields = map[string]interface{}{"resource_name": "arn:svc:checkout"}

	sig, err := Normalize(raw)
	require.NoError(t, err)
	assert.Nil(t, sig.ResourceRefs, "refs must come only from explicit fields")
}
