package video

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/wavalabs/builder/internal/platform/id"
)

const completedText = "Mock 완료: 실제 Veo 연동 시 이 자리에 결과 URL/파일이 들어갑니다."

const (
	defaultModelVersion = "veo-3.1"
	defaultResolution   = "1080p"
	maxPromptLength     = 5000
)

var progressSteps = []int{10, 20, 35, 50, 65, 80, 92}

// Queue holds video jobs in memory and runs one mock worker goroutine per
// job. Jobs do not survive restarts.
type Queue struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	now         func() time.Time
	startDelay  time.Duration
	stepDelay   time.Duration
	finishDelay time.Duration
}

// NewQueue builds a queue with production pacing.
func NewQueue() *Queue {
	return &Queue{
		jobs:        make(map[string]*Job),
		now:         time.Now,
		startDelay:  2 * time.Second,
		stepDelay:   5 * time.Second,
		finishDelay: 3 * time.Second,
	}
}

// Create registers a job and starts its mock run. ctx bounds the run; jobs
// still pending or processing when ctx ends stay in their last state.
func (q *Queue) Create(ctx context.Context, req CreateRequest) (*Job, error) {
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if utf8.RuneCountInString(req.Prompt) > maxPromptLength {
		return nil, fmt.Errorf("prompt는 %d자 이하여야 합니다", maxPromptLength)
	}
	if req.ModelVersion == "" {
		req.ModelVersion = defaultModelVersion
	}
	if req.Resolution == "" {
		req.Resolution = defaultResolution
	}

	now := nowMilli(q.now)
	job := &Job{
		ID:        id.New(),
		Status:    StatusPending,
		Prompt:    req.Prompt,
		CreatedAt: now,
		UpdatedAt: now,
		Meta:      metaFromRequest(req),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	go q.run(ctx, job.ID)

	snapshot := *job
	return &snapshot, nil
}

// Get returns a copy of the job, or false when the id is unknown.
func (q *Queue) Get(jobID string) (Job, bool) {
	if q == nil {
		return Job{}, false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (q *Queue) run(ctx context.Context, jobID string) {
	if !q.wait(ctx, q.startDelay) {
		return
	}
	q.update(jobID, func(job *Job) {
		job.Status = StatusProcessing
	})

	for _, p := range progressSteps {
		if !q.wait(ctx, q.stepDelay) {
			return
		}
		progress := p
		q.update(jobID, func(job *Job) {
			job.Progress = progress
		})
	}

	if !q.wait(ctx, q.finishDelay) {
		return
	}
	q.update(jobID, func(job *Job) {
		job.Progress = 100
		job.Status = StatusCompleted
		job.ResultText = completedText
	})
}

func (q *Queue) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (q *Queue) update(jobID string, fn func(*Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = nowMilli(q.now)
}
