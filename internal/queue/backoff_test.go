package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoubles(t *testing.T) {
	p := BackoffPolicy{Base: 2 * time.Second, Max: 5 * time.Minute}
	require.Equal(t, 2*time.Second, p.Delay(1))
	require.Equal(t, 4*time.Second, p.Delay(2))
	require.Equal(t, 8*time.Second, p.Delay(3))
	require.Equal(t, 64*time.Second, p.Delay(6))
}

func TestBackoffCaps(t *testing.T) {
	p := BackoffPolicy{Base: 2 * time.Second, Max: 5 * time.Minute}
	require.Equal(t, 5*time.Minute, p.Delay(20))
	require.Equal(t, 5*time.Minute, p.Delay(1000))
}

func TestBackoffDefaultsAndFloors(t *testing.T) {
	var p BackoffPolicy
	require.Equal(t, 2*time.Second, p.Delay(0))
	require.Equal(t, 2*time.Second, p.Delay(-5))

	now := time.Now()
	next := DefaultBackoff().NextRun(now, 2)
	require.Equal(t, now.Add(4*time.Second), next)
}
