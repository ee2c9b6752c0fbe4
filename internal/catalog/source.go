package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/daymake/pkg/model"
)

// Source yields the full current set of job definitions.
type Source interface {
	Load(ctx context.Context) ([]*model.Job, error)
}

// DirSource reads one job per regular file below a directory. The job id is
// the file path relative to the directory, with forward slashes.
type DirSource struct {
	root   string
	logger *slog.Logger
}

// NewDirSource creates a DirSource rooted at dir.
func NewDirSource(dir string, logger *slog.Logger) *DirSource {
	return &DirSource{
		root:   dir,
		logger: logger.With("component", "catalog-source"),
	}
}

// Load walks the directory in lexical order. Hidden files and directories
// are skipped.
func (d *DirSource) Load(ctx context.Context) ([]*model.Job, error) {
	var jobs []*model.Job
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != d.root && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read job definition %s: %w", path, err)
		}
		job, diags := ParseDefinition(id, data)
		for _, msg := range diags {
			d.logger.Warn("job definition", "job_id", id, "file", path, "problem", msg)
		}
		d.logger.Debug("job definition loaded", "job_id", id, "depends_on", job.DependsOn)
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load jobs from %s: %w", d.root, err)
	}
	return jobs, nil
}

// StaticSource serves a fixed list of jobs.
type StaticSource []*model.Job

// Load returns copies of the jobs.
func (s StaticSource) Load(context.Context) ([]*model.Job, error) {
	jobs := make([]*model.Job, len(s))
	for i, j := range s {
		cp := *j
		cp.DependsOn = append([]string{}, j.DependsOn...)
		jobs[i] = &cp
	}
	return jobs, nil
}
