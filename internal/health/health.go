// Package health evaluates runtime checks for the relay and serves
// them over HTTP for probes and operators.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	// StatusOK indicates the check passed.
	StatusOK = "ok"
	// StatusError indicates the check failed.
	StatusError = "error"
)

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Checker evaluates one runtime check.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// Pinger verifies a remote dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StagingChecker verifies the staging directory accepts writes.
type StagingChecker struct {
	Dir string
}

func (c StagingChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{ID: "staging", Status: StatusOK}
	probe := filepath.Join(c.Dir, ".probe-"+uuid.NewString())
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		result.Status = StatusError
		result.Detail = fmt.Sprintf("staging dir not writable: %v", err)
		return result
	}
	_ = os.Remove(probe)
	return result
}

// PingChecker wraps a reachability probe for a named dependency.
type PingChecker struct {
	ID      string
	Pinger  Pinger
	Timeout time.Duration
}

func (c PingChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{ID: c.ID, Status: StatusOK}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Pinger.Ping(ctx); err != nil {
		result.Status = StatusError
		result.Detail = err.Error()
	}
	return result
}

// Run evaluates all checkers in order.
func Run(ctx context.Context, checkers []Checker) []CheckResult {
	results := make([]CheckResult, 0, len(checkers))
	for _, c := range checkers {
		results = append(results, c.Check(ctx))
	}
	return results
}

// Healthy reports whether every result passed.
func Healthy(results []CheckResult) bool {
	for _, r := range results {
		if r.Status != StatusOK {
			return false
		}
	}
	return true
}
