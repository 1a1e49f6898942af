package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	hists    map[string][]float64
	flushed  int
}

func newRecorder() *recorder {
	return &recorder{counters: map[string]float64{}, hists: map[string][]float64{}}
}

func (r *recorder) IncCounter(name string, delta float64, l Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name+"|"+l["strategy"]+"|"+l["status"]+"|"+l["target"]] += delta
}

func (r *recorder) ObserveHistogram(name string, v float64, l Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists[name] = append(r.hists[name], v)
}

func (r *recorder) Flush() error {
	r.flushed++
	return nil
}

func TestRecordMove(t *testing.T) {
	r := newRecorder()
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordMove("transcoded", "ok", "bigquery", 42, 2*time.Second)
	RecordMove("direct", "failed", "postgres", -1, time.Second)

	assert.Equal(t, 1.0, r.counters[MovesTotal+"|transcoded|ok|"])
	assert.Equal(t, 1.0, r.counters[MovesTotal+"|direct|failed|"])
	assert.Equal(t, 42.0, r.counters[RowsTotal+"|||bigquery"])
	assert.NotContains(t, r.counters, RowsTotal+"|||postgres")
	assert.Equal(t, []float64{2, 1}, r.hists[MoveDurationSec])

	assert.NoError(t, Flush())
	assert.Equal(t, 1, r.flushed)
}

func TestNopByDefault(t *testing.T) {
	SetBackend(nil)
	IncCounter(MovesTotal, 1, nil)
	ObserveHistogram(MoveDurationSec, 1, nil)
	assert.NoError(t, Flush())
}
