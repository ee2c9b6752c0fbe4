package scheduler

import (
	"sort"
	"time"

	"github.com/me/daymake/pkg/model"
)

// canonicalLayout renders instants the way run dates and start times compare.
const canonicalLayout = "2006-01-02 15:04:05"

// TimeGateOpen reports whether now, rendered in loc, is strictly later than
// startAfter on runDate. The comparison is lexical; runDate is used verbatim.
func TimeGateOpen(now time.Time, loc *time.Location, runDate, startAfter string) bool {
	return now.In(loc).Format(canonicalLayout) > runDate+" "+startAfter+":00"
}

// AreDependenciesSatisfied checks the dependency statuses of a job.
// Returns (satisfied, blocked): satisfied when every dependency is done,
// blocked when at least one is terminal without being done, or missing, and
// so can never be done for this run date.
func AreDependenciesSatisfied(deps []string, statuses map[string]model.Status) (satisfied, blocked bool) {
	satisfied = true
	for _, dep := range deps {
		status, ok := statuses[dep]
		if !ok {
			status = model.StatusMissing
		}
		if status == model.StatusDone {
			continue
		}
		satisfied = false
		if status == model.StatusMissing || status.IsTerminal() {
			blocked = true
		}
	}
	return satisfied, blocked
}

// Readiness is the outcome of one evaluation pass over the waiting jobs.
type Readiness struct {
	Waiting       int
	Ready         []string
	BlockedOnTime int
	BlockedOnDeps int
	// Stuck jobs have an open time gate but a dependency that can no longer
	// become done.
	Stuck []string
}

// Evaluate decides which waiting jobs become ready at now. statuses is one
// snapshot of current statuses; jobs absent from it are missing. Result ids
// are sorted.
func Evaluate(now time.Time, loc *time.Location, runDate string, jobs map[string]*model.Job, statuses map[string]model.Status) Readiness {
	var r Readiness
	for id, status := range statuses {
		if status != model.StatusWaiting {
			continue
		}
		job, ok := jobs[id]
		if !ok {
			continue
		}
		r.Waiting++

		timeOK := TimeGateOpen(now, loc, runDate, job.StartAfter)
		depsOK, blocked := AreDependenciesSatisfied(job.DependsOn, statuses)
		switch {
		case timeOK && depsOK:
			r.Ready = append(r.Ready, id)
		case !timeOK:
			r.BlockedOnTime++
		default:
			r.BlockedOnDeps++
			if blocked {
				r.Stuck = append(r.Stuck, id)
			}
		}
	}
	sort.Strings(r.Ready)
	sort.Strings(r.Stuck)
	return r
}
