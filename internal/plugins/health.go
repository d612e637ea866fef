package plugins

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/nexuscore/nexuscore/internal/core/event"
)

// HealthStatus classifies one plugin in a health report.
type HealthStatus string

const (
	StatusHealthy HealthStatus = "healthy"
	StatusWarning HealthStatus = "warning"
	StatusError   HealthStatus = "error"
)

const (
	// DefaultHealthInterval is how often the monitor sweeps the registry.
	DefaultHealthInterval = 5 * time.Minute

	// DefaultErrorThreshold marks a plugin as failing once its error count
	// exceeds this value.
	DefaultErrorThreshold int64 = 10
)

// PluginHealth is the per-plugin detail in a health report.
type PluginHealth struct {
	Key          string       `json:"key"`
	Name         string       `json:"name"`
	Status       HealthStatus `json:"status"`
	RequestCount int64        `json:"request_count"`
	ErrorCount   int64        `json:"error_count"`
	LastUsed     time.Time    `json:"last_used,omitempty"`
}

// HealthReport aggregates one sweep over all active plugins.
type HealthReport struct {
	Timestamp time.Time      `json:"timestamp"`
	Total     int            `json:"total"`
	Healthy   int            `json:"healthy"`
	Warnings  int            `json:"warnings"`
	Errors    int            `json:"errors"`
	Plugins   []PluginHealth `json:"plugins"`
}

// HealthMonitor periodically reads per-plugin runtime statistics and emits
// an aggregate report. It only observes; it never deactivates a plugin.
type HealthMonitor struct {
	registry  *Registry
	bus       *event.Bus
	interval  time.Duration
	threshold int64
	logger    *log.Logger
}

// NewHealthMonitor creates a monitor over the registry. Zero interval and
// threshold fall back to the defaults.
func NewHealthMonitor(registry *Registry, bus *event.Bus, interval time.Duration, threshold int64, logger *log.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	return &HealthMonitor{
		registry:  registry,
		bus:       bus,
		interval:  interval,
		threshold: threshold,
		logger:    logger,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// Sweep failures are logged, never propagated, and never block dispatch.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *HealthMonitor) sweep() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("[HealthMonitor] sweep panicked: %v", r)
		}
	}()
	report := m.Check()
	m.bus.Publish(event.New(event.TypeHealthReport, "", report))
}

// Check produces a health report from the current registry state. A plugin
// whose error count exceeds the threshold is reported as failing; one above
// half the threshold is a warning.
func (m *HealthMonitor) Check() HealthReport {
	report := HealthReport{Timestamp: time.Now()}

	for _, d := range m.registry.All() {
		if !d.Active {
			continue
		}
		detail := PluginHealth{Key: d.Key(), Name: d.Name, Status: StatusHealthy}
		if entry, ok := m.registry.CacheEntry(d.Key()); ok {
			stats := entry.Stats()
			detail.RequestCount = stats.RequestCount
			detail.ErrorCount = stats.ErrorCount
			detail.LastUsed = stats.LastUsed
		}

		switch {
		case detail.ErrorCount > m.threshold:
			detail.Status = StatusError
			report.Errors++
		case detail.ErrorCount > m.threshold/2:
			detail.Status = StatusWarning
			report.Warnings++
		default:
			report.Healthy++
		}

		report.Total++
		report.Plugins = append(report.Plugins, detail)
	}

	sort.Slice(report.Plugins, func(i, j int) bool {
		return report.Plugins[i].Key < report.Plugins[j].Key
	})
	return report
}
