package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveImportCountsRows(t *testing.T) {
	r := NewRegistry(Config{Namespace: "classdeploy"})

	r.ObserveImport(2, 1, 3)
	r.ObserveImport(1, 0, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.importRows.WithLabelValues("added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.importRows.WithLabelValues("updated")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.importRows.WithLabelValues("skipped")))
}

func TestObserveJobTerminal(t *testing.T) {
	r := NewRegistry(Config{Namespace: "classdeploy"})

	r.ObserveJobTerminal("upload", "succeeded", 1.5)
	r.ObserveJobTerminal("upload", "failed", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsTotal.WithLabelValues("upload", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsTotal.WithLabelValues("upload", "failed")))
}

func TestQueueGauges(t *testing.T) {
	r := NewRegistry(Config{Namespace: "classdeploy"})

	r.SetQueueGauges(3, 7)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.activeJobs))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.waitingJobs))
}
