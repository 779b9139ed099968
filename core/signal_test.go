package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeNormalizedSignalID_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	a := ComputeNormalizedSignalID("alarm-42", "metric_alarm", at)
	b := ComputeNormalizedSignalID("alarm-42", "metric_alarm", at)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ComputeNormalizedSignalID("alarm-42", "metric_alarm", at.Add(time.Second)))
	assert.NotEqual(t, a, ComputeNormalizedSignalID("alarm-43", "metric_alarm", at))
}

func TestComputeIdentityWindow_MinuteBucketed(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)

	a := ComputeIdentityWindow("checkout", "log_error", base)
	b := ComputeIdentityWindow("checkout", "log_error", base.Add(50*time.Second))
	c := ComputeIdentityWindow("checkout", "log_error", base.Add(2*time.Minute))

	assert.Equal(t, a, b, "same minute bucket")
	assert.NotEqual(t, a, c, "different minute bucket")
	assert.NotEqual(t, a, ComputeIdentityWindow("billing", "log_error", base))
}
