package shopping

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wavalabs/builder/internal/platform/id"
)

// Runner executes the real pipeline for a job.
type Runner interface {
	Run(ctx context.Context, pageURL, imageURL string, onProgress ProgressFunc) (string, error)
}

var mockProgressSteps = []int{15, 35, 55, 75, 92}

// Queue holds thumbnail jobs in memory. When no Runner is configured, jobs
// complete with a mock SVG after a short simulation.
type Queue struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	runner    Runner
	now       func() time.Time
	mockDelay time.Duration
}

// NewQueue builds a queue. runner may be nil to force mock mode.
func NewQueue(runner Runner) *Queue {
	return &Queue{
		jobs:      make(map[string]*Job),
		runner:    runner,
		now:       time.Now,
		mockDelay: 500 * time.Millisecond,
	}
}

// Create registers a job and starts it. Either URL or ImageURL is required;
// a bare ImageURL also serves as the display URL.
func (q *Queue) Create(ctx context.Context, req CreateRequest) (*Job, error) {
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}
	return q.CreateWith(ctx, req, q.runner)
}

// CreateWith runs the job on the given runner instead of the queue default.
// API keys submitted with a request arrive as a runner built for that job; a
// nil runner falls back to the mock.
func (q *Queue) CreateWith(ctx context.Context, req CreateRequest, runner Runner) (*Job, error) {
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}
	imageURL := strings.TrimSpace(req.ImageURL)
	pageURL := strings.TrimSpace(req.URL)
	if imageURL == "" && pageURL == "" {
		return nil, fmt.Errorf("image_url 또는 url 중 하나는 필수입니다")
	}
	effectiveURL := pageURL
	if effectiveURL == "" {
		effectiveURL = imageURL
	}

	source := "naver_shopping_link"
	if imageURL != "" {
		source = "image_url"
	}

	now := nowMilli(q.now)
	job := &Job{
		ID:        id.New(),
		Status:    StatusPending,
		URL:       effectiveURL,
		ImageURL:  imageURL,
		CreatedAt: now,
		UpdatedAt: now,
		Meta:      map[string]string{"source": source},
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	go q.run(ctx, job.ID, runner)

	snapshot := cloneJob(job)
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
	return cloneJob(job), true
}

func (q *Queue) run(ctx context.Context, jobID string, runner Runner) {
	q.update(jobID, func(job *Job) {
		job.Status = StatusProcessing
	})

	pageURL, imageURL := "", ""
	q.mu.RLock()
	if job, ok := q.jobs[jobID]; ok {
		pageURL, imageURL = job.URL, job.ImageURL
	}
	q.mu.RUnlock()

	if runner == nil {
		q.runMock(ctx, jobID)
		return
	}

	onProgress := func(stage string, percent int) {
		q.update(jobID, func(job *Job) {
			job.Progress = percent
		})
	}

	dataURL, err := runner.Run(ctx, pageURL, imageURL, onProgress)
	if err != nil {
		q.update(jobID, func(job *Job) {
			job.Status = StatusFailed
			job.Error = err.Error()
		})
		return
	}
	q.update(jobID, func(job *Job) {
		job.ResultDataURL = dataURL
		job.Progress = 100
		job.Status = StatusCompleted
		job.Meta["pipeline"] = "scrape_replicate_gemini_composite"
	})
}

func (q *Queue) runMock(ctx context.Context, jobID string) {
	for _, p := range mockProgressSteps {
		if !q.wait(ctx, q.mockDelay) {
			return
		}
		progress := p
		q.update(jobID, func(job *Job) {
			job.Progress = progress
		})
	}

	q.update(jobID, func(job *Job) {
		job.ResultDataURL = "data:image/svg+xml;charset=utf-8," + mockThumbnailSVG(job.URL)
		job.Progress = 100
		job.Status = StatusCompleted
		job.Meta["pipeline"] = "mock"
		job.Meta["note"] = "Gemini/Replicate 키를 설정하면 실제 파이프라인이 실행됩니다."
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

func cloneJob(job *Job) Job {
	clone := *job
	clone.Meta = make(map[string]string, len(job.Meta))
	for k, v := range job.Meta {
		clone.Meta[k] = v
	}
	return clone
}
