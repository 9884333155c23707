package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderMethodsAreNoops(t *testing.T) {
	var r *Recorder
	r.RegionCreated(context.Background(), 4096)
	r.RegionReleased(4096)
	ctx, span := r.StartSpan(context.Background(), "Allocate")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestRegionCreatedIncrementsCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New("test", WithRegisterer(reg))

	r.RegionCreated(context.Background(), 4096)
	r.RegionCreated(context.Background(), 4096)
	r.RegionReleased(4096)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	values := make(map[string]float64)
	for _, mf := range mfs {
		m := mf.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			values[mf.GetName()] = c.GetValue()
		} else if g := m.GetGauge(); g != nil {
			values[mf.GetName()] = g.GetValue()
		}
	}
	assert.Equal(t, 2.0, values["ipcator_regions_created_total"])
	assert.Equal(t, 1.0, values["ipcator_regions_active"])
	assert.Equal(t, 4096.0, values["ipcator_bytes_mapped"])
}

func TestTwoRecordersSameComponentDoNotPanicOnDuplicateRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		_ = New("dup", WithRegisterer(reg))
		_ = New("dup", WithRegisterer(reg))
	})
}
