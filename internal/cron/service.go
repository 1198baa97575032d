package cron

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// EverySecond is the schedule of the timer tick driver.
const EverySecond = "@every 1s"

// Job is a registered recurring function.
type Job struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next,omitempty"`
	Prev     time.Time `json:"prev,omitempty"`
}

// Service drives recurring jobs for the lifetime of the process. A panicking
// job is recovered and keeps its schedule.
type Service struct {
	mu       sync.Mutex
	cron     *rcron.Cron
	entryMap map[string]rcron.EntryID
	specs    map[string]string
	running  bool
	stopCh   chan struct{}
}

func NewService() *Service {
	return &Service{
		cron: rcron.New(
			rcron.WithSeconds(),
			rcron.WithChain(rcron.Recover(rcron.DefaultLogger)),
		),
		entryMap: make(map[string]rcron.EntryID),
		specs:    make(map[string]string),
	}
}

// AddJob registers fn under a unique name. Schedules use the six-field
// seconds format or a descriptor such as EverySecond.
func (s *Service) AddJob(name, schedule string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entryMap[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	id, err := s.cron.AddFunc(schedule, fn)
	if err != nil {
		return fmt.Errorf("register job %s (%s): %w", name, schedule, err)
	}
	s.entryMap[name] = id
	s.specs[name] = schedule
	return nil
}

func (s *Service) RemoveJob(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entryMap[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entryMap, name)
	delete(s.specs, name)
	return true
}

// Jobs lists registered jobs sorted by name.
func (s *Service) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.entryMap))
	for name, id := range s.entryMap {
		e := s.cron.Entry(id)
		jobs = append(jobs, Job{Name: name, Schedule: s.specs[name], Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// Start runs the scheduler until Stop is called or ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("cron already started")
	}
	s.running = true
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	n := len(s.entryMap)
	s.mu.Unlock()

	s.cron.Start()
	log.Printf("[cron] started with %d jobs", n)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopCh:
		}
	}()
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.stopCh = nil
	s.mu.Unlock()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[cron] stop timeout waiting for running jobs")
	}
	log.Printf("[cron] stopped")
}
