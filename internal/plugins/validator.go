package plugins

import (
	"fmt"
	"regexp"

	"github.com/nexuscore/nexuscore/internal/core/domain/plugin"
)

var (
	routePattern   = regexp.MustCompile(`^/[a-z0-9-]+(/[a-z0-9-]+)*$`)
	versionPattern = regexp.MustCompile(`^(\d+\.)?(\d+\.)?(\*|\d+)$`)
)

// ValidationResult carries the outcome of descriptor validation. Reasons
// lists every problem found, not just the first.
type ValidationResult struct {
	OK      bool     `json:"ok"`
	Reasons []string `json:"reasons,omitempty"`
}

// ValidateDescriptor checks an untrusted descriptor candidate against the
// required-field and shape contract. It is pure: no I/O, no registry access.
func ValidateDescriptor(d *plugin.Descriptor) ValidationResult {
	var reasons []string

	if d == nil {
		return ValidationResult{OK: false, Reasons: []string{"descriptor is nil"}}
	}

	required := []struct {
		field string
		value string
	}{
		{"name", d.Name},
		{"version", d.Version},
		{"description", d.Description},
		{"route", d.Route},
		{"category", string(d.Category)},
	}
	for _, r := range required {
		if r.value == "" {
			reasons = append(reasons, fmt.Sprintf("missing required field: %s", r.field))
		}
	}

	if d.Route != "" && !routePattern.MatchString(d.Route) {
		reasons = append(reasons, fmt.Sprintf("route %q must match %s", d.Route, routePattern.String()))
	}
	if d.Version != "" && !versionPattern.MatchString(d.Version) {
		reasons = append(reasons, fmt.Sprintf("version %q must match %s", d.Version, versionPattern.String()))
	}
	if d.Category != "" && !d.Category.IsValid() {
		reasons = append(reasons, fmt.Sprintf("unknown category %q", d.Category))
	}

	return ValidationResult{OK: len(reasons) == 0, Reasons: reasons}
}
