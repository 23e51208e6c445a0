package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/port"
)

type document struct {
	NextID int64         `json:"next_id"`
	Jobs   []*domain.Job `json:"jobs"`
}

// Store keeps every job in memory and rewrites jobs.json after each mutation.
type Store struct {
	mu     sync.RWMutex
	path   string
	nextID int64
	jobs   map[int64]*domain.Job
}

func NewStore(dataDir string) (*Store, error) {
	store := &Store{
		path:   filepath.Join(dataDir, "jobs.json"),
		nextID: 1,
		jobs:   make(map[int64]*domain.Job),
	}

	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return store, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}

	for _, j := range doc.Jobs {
		s.jobs[j.ID] = j
		if j.ID >= s.nextID {
			s.nextID = j.ID + 1
		}
	}
	if doc.NextID > s.nextID {
		s.nextID = doc.NextID
	}

	return nil
}

func (s *Store) save() error {
	tmpPath := s.path + ".tmp"

	doc := document{NextID: s.nextID, Jobs: s.sorted()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}

func (s *Store) sorted() []*domain.Job {
	list := make([]*domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		list = append(list, j)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].ID > list[b].ID })
	return list
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Create(_ context.Context, filename string, size *int64, model *string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unique, err := domain.UniqueFilename(filename, func(name string) (bool, error) {
		for _, j := range s.jobs {
			if j.Filename == name {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	job := domain.NewJob(unique, size, model)
	job.ID = s.nextID
	s.nextID++
	s.jobs[job.ID] = job

	if err := s.save(); err != nil {
		delete(s.jobs, job.ID)
		return nil, err
	}
	return clone(job), nil
}

func (s *Store) Get(_ context.Context, id int64) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	return clone(j), nil
}

func (s *Store) List(_ context.Context) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.sorted()
	for i, j := range list {
		list[i] = clone(j)
	}
	return list, nil
}

func (s *Store) UpdateProgress(_ context.Context, id int64, stage domain.Stage, pct int) error {
	if stage.Terminal() || !stage.Accepts(pct) {
		return fmt.Errorf("invalid progress %d for stage %q", pct, stage)
	}
	return s.mutate(id, true, func(j *domain.Job) error {
		if pct < j.ProgressPercentage {
			return domain.ErrProgressRegression
		}
		j.ProcessingStage = stage
		j.ProgressPercentage = pct
		return nil
	})
}

func (s *Store) UpdateDuration(_ context.Context, id int64, seconds float64) error {
	return s.mutate(id, false, func(j *domain.Job) error {
		j.AudioDuration = &seconds
		return nil
	})
}

func (s *Store) UpdateAnalysis(_ context.Context, id int64, transcript, summary, questions string) error {
	return s.mutate(id, true, func(j *domain.Job) error {
		j.Complete(transcript, summary, questions)
		return nil
	})
}

func (s *Store) UpdateError(_ context.Context, id int64, message string) error {
	return s.mutate(id, true, func(j *domain.Job) error {
		j.Fail(message)
		return nil
	})
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.jobs, id)
	if err := s.save(); err != nil {
		s.jobs[id] = j
		return err
	}
	return nil
}

// mutate applies fn to a copy of the job and swaps it in only once persisted.
func (s *Store) mutate(id int64, guardTerminal bool, fn func(*domain.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if guardTerminal && current.ProcessingStage.Terminal() {
		return domain.ErrJobTerminal
	}

	next := clone(current)
	if err := fn(next); err != nil {
		return err
	}
	s.jobs[id] = next
	if err := s.save(); err != nil {
		s.jobs[id] = current
		return err
	}
	return nil
}

func clone(j *domain.Job) *domain.Job {
	c := *j
	return &c
}

var _ port.JobStore = (*Store)(nil)
