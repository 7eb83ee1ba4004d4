package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OpsTotal.WithLabelValues("save", "created").Inc()
	m.RetriesTotal.WithLabelValues("pop").Inc()
	m.PurgedTotal.WithLabelValues("expired").Add(3)
	m.WorkspacesOpen.Set(2)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	require.Panics(t, func() {
		New(reg)
	})
}
