package kv

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

var (
	envOpened = metrics.NewCounter("kv_env_open_total")
	writeWait = metrics.NewHistogram("kv_write_wait_seconds")
)

func txnMode(writable bool) string {
	if writable {
		return "write"
	}
	return "read"
}

func countBegin(writable bool) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`kv_txn_begin_total{mode=%q}`, txnMode(writable))).Inc()
}

func countEnd(writable bool, outcome string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`kv_txn_end_total{mode=%q,outcome=%q}`, txnMode(writable), outcome)).Inc()
}

// WritePrometheus writes the kv metrics in Prometheus text format.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, false)
}
