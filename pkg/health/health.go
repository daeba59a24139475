// Package health runs named checks against the index files and the optional
// external services concurrently and aggregates the outcome.
package health

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
	// StatusSkipped marks a component that is disabled in configuration.
	StatusSkipped Status = "skipped"
)

type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Up, Down, Degraded and Skipped build check results.
func Up(format string, args ...any) ComponentHealth {
	return ComponentHealth{Status: StatusUp, Message: fmt.Sprintf(format, args...)}
}

func Down(err error) ComponentHealth {
	return ComponentHealth{Status: StatusDown, Message: err.Error()}
}

func Degraded(err error) ComponentHealth {
	return ComponentHealth{Status: StatusDegraded, Message: err.Error()}
}

func Skipped() ComponentHealth {
	return ComponentHealth{Status: StatusSkipped, Message: "disabled"}
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Write prints one line per component in name order.
func (r Report) Write(w io.Writer) error {
	names := make([]string, 0, len(r.Components))
	for name := range r.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := r.Components[name]
		if _, err := fmt.Fprintf(w, "%-10s %-9s %s\n", name, c.Status, c.Message); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "overall: %s\n", r.Status)
	return err
}

type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewChecker() *Checker {
	return &Checker{checks: make(map[string]Check)}
}

func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes every check concurrently. The overall status is the worst
// component status; skipped components do not count.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		CheckedAt:  time.Now().UTC(),
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			result := check(ctx)
			result.Latency = time.Since(start).Round(time.Microsecond)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, comp := range report.Components {
		switch comp.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}
