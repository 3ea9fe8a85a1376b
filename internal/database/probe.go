package database

import (
	"context"
	"time"
)

// ProbeResult is the outcome of one dependency health check.
type ProbeResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether the dependency answered.
func (r ProbeResult) OK() bool { return r.Status == "ok" }

// Probe times a single ping. A nil ping reports the dependency as disabled.
func Probe(ctx context.Context, ping func(context.Context) error) ProbeResult {
	if ping == nil {
		return ProbeResult{Status: "disabled"}
	}
	start := time.Now()
	err := ping(ctx)
	res := ProbeResult{Status: "ok", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "down"
		res.Error = err.Error()
	}
	return res
}
