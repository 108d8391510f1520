package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthState_Worse(t *testing.T) {
	tests := []struct {
		a, b, want HealthState
	}{
		{HealthStateHealthy, HealthStateHealthy, HealthStateHealthy},
		{HealthStateHealthy, HealthStateDegraded, HealthStateDegraded},
		{HealthStateUnhealthy, HealthStateDegraded, HealthStateUnhealthy},
		{HealthStateDegraded, HealthStateHealthy, HealthStateDegraded},
		{HealthStateHealthy, HealthState("bogus"), HealthState("bogus")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Worse(tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestHealthStatus(t *testing.T) {
	assert.True(t, Healthy("ok").IsHealthy())
	assert.False(t, Degraded("slow").IsHealthy())

	s := Unhealthy("down")
	assert.Equal(t, HealthStateUnhealthy, s.State)
	assert.Equal(t, "down", s.Message)
	assert.False(t, s.CheckedAt.IsZero())
}
