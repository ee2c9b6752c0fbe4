package model

import "strings"

// Defaults applied to job definitions that omit a field.
const (
	DefaultCommand    = "date"
	DefaultStartAfter = "00:00"
	DefaultDays       = "d"
)

// Job is a named, reusable definition of work, independent of any run date.
type Job struct {
	ID          string `json:"id" yaml:"-"`
	Description string `json:"description" yaml:"description"`
	Command     string `json:"command" yaml:"command"`
	StartAfter  string `json:"start_after" yaml:"start_after"`
	// Days is persisted but not consulted when evaluating readiness.
	Days      string   `json:"days" yaml:"days"`
	DependsOn []string `json:"depends_on" yaml:"depends_on"`
}

// ParseDependsOn splits a comma-separated dependency list, dropping blanks
// and duplicates while keeping the declared order.
func ParseDependsOn(s string) []string {
	return NormalizeDependsOn(strings.Split(s, ","))
}

// NormalizeDependsOn trims ids and removes blanks and duplicates, keeping order.
func NormalizeDependsOn(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
