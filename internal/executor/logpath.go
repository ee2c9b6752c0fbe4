package executor

import (
	"path/filepath"
	"sort"
	"strings"
)

// LogPath returns the log file of a job for a run date. Every character
// outside [A-Za-z0-9._-] is replaced with '_'.
func LogPath(logDir, jobID, runDate string) string {
	return filepath.Join(logDir, sanitize(runDate)+"_"+sanitize(jobID)+".log")
}

// LogCollisions groups job ids that share a log file name. Only names used
// by more than one id are returned; each group is sorted.
func LogCollisions(jobIDs []string) map[string][]string {
	byName := make(map[string][]string)
	for _, id := range jobIDs {
		name := sanitize(id)
		byName[name] = append(byName[name], id)
	}
	for name, ids := range byName {
		if len(ids) < 2 {
			delete(byName, name)
			continue
		}
		sort.Strings(ids)
	}
	return byName
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		}
		return '_'
	}, s)
}
