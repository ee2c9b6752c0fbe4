package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/me/daymake/pkg/model"
)

type statusResponse struct {
	RunDate string         `json:"run_date"`
	Counts  map[string]int `json:"counts"`
	Stuck   []string       `json:"stuck"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sum, err := s.status.Summary(r.Context())
	if err != nil {
		s.internalError(w, reqID, "summary", err)
		return
	}

	counts := make(map[string]int, len(sum.Counts))
	for status, n := range sum.Counts {
		counts[status.String()] = n
	}
	stuck := sum.Stuck
	if stuck == nil {
		stuck = []string{}
	}
	respondOK(w, reqID, statusResponse{RunDate: sum.RunDate, Counts: counts, Stuck: stuck})
}

// jobState is a job joined with its current status for the served run date.
// History is only filled for single-job requests.
type jobState struct {
	Job     *model.Job           `json:"job"`
	Status  model.Status         `json:"status"`
	Current *model.StatusEvent   `json:"current,omitempty"`
	History []*model.StatusEvent `json:"history,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	jobs, err := s.store.ListJobs(r.Context())
	if err != nil {
		s.internalError(w, reqID, "list jobs", err)
		return
	}
	current, err := s.store.CurrentStatuses(r.Context(), s.status.RunDate())
	if err != nil {
		s.internalError(w, reqID, "list jobs", err)
		return
	}

	states := make([]*jobState, 0, len(jobs))
	for _, job := range jobs {
		st := &jobState{Job: job, Status: model.StatusMissing, Current: current[job.ID]}
		if st.Current != nil {
			st.Status = st.Current.Status
		}
		states = append(states, st)
	}
	respondOK(w, reqID, states)
}

// handleListEvents serves the whole ledger of the run date in append order.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	events, err := s.store.ListRunDateEvents(r.Context(), s.status.RunDate())
	if err != nil {
		s.internalError(w, reqID, "list events", err)
		return
	}
	if events == nil {
		events = []*model.StatusEvent{}
	}
	respondOK(w, reqID, events)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		// chi matched on the escaped path.
		if u, err := url.PathUnescape(id); err == nil {
			id = u
		}
	}

	state, err := s.jobState(r.Context(), id)
	if errors.Is(err, model.ErrJobNotFound) {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", id))
		return
	}
	if err != nil {
		s.internalError(w, reqID, "get job", err, "job_id", id)
		return
	}
	respondOK(w, reqID, state)
}

func (s *Server) jobState(ctx context.Context, id string) (*jobState, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if job == nil {
		return nil, fmt.Errorf("get job %s: %w", id, model.ErrJobNotFound)
	}

	cur, err := s.store.CurrentStatus(ctx, id, s.status.RunDate())
	if err != nil {
		return nil, fmt.Errorf("current status %s: %w", id, err)
	}
	history, err := s.store.ListEvents(ctx, id, s.status.RunDate())
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	state := &jobState{Job: job, Status: model.StatusMissing, Current: cur, History: history}
	if cur != nil {
		state.Status = cur.Status
	}
	return state, nil
}

