package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"alfredoptarigan/candidate-screener/internal/models"
	"alfredoptarigan/candidate-screener/internal/signals"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(context.Context, string, string) (string, error) {
	return f.text, f.err
}

type fakeMetadata struct {
	md  map[string]string
	err error
}

func (f *fakeMetadata) ObjectMetadata(context.Context, string, string) (map[string]string, error) {
	return f.md, f.err
}

type fakeTranscriber struct {
	mu sync.Mutex

	startErr error
	started  []string
	deleted  []string

	// statuses is consumed one per poll; the last entry repeats.
	statuses  []models.JobStatus
	statusErr []error
	uri       string
	calls     int
}

func (f *fakeTranscriber) StartTranscription(_ context.Context, name, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, name)
	return nil
}

func (f *fakeTranscriber) TranscriptionJob(_ context.Context, name string) (TranscriptionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.statusErr) && f.statusErr[i] != nil {
		return TranscriptionJob{}, f.statusErr[i]
	}
	status := models.JobRunning
	if len(f.statuses) > 0 {
		if i >= len(f.statuses) {
			i = len(f.statuses) - 1
		}
		status = f.statuses[i]
	}
	job := TranscriptionJob{Name: name, Status: status}
	if status == models.JobSucceeded {
		job.TranscriptURI = f.uri
	}
	if status == models.JobFailed {
		job.FailureReason = "unsupported media"
	}
	return job, nil
}

func (f *fakeTranscriber) DeleteTranscription(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeTranscriber) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFaceDetector struct {
	mu       sync.Mutex
	jobID    string
	startErr error
	tags     []string
	job      FaceDetectionJob
	getErr   error
	gets     int
}

func (f *fakeFaceDetector) StartFaceDetection(_ context.Context, _, _, tag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	f.tags = append(f.tags, tag)
	return f.jobID, nil
}

func (f *fakeFaceDetector) FaceDetectionJob(_ context.Context, jobID string) (FaceDetectionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return FaceDetectionJob{}, f.getErr
	}
	job := f.job
	job.JobID = jobID
	return job, nil
}

type fakeFetcher struct {
	text string
	err  error
	uris []string
	mu   sync.Mutex
}

func (f *fakeFetcher) FetchTranscript(_ context.Context, uri string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uris = append(f.uris, uri)
	return f.text, f.err
}

type fakeSentiment struct {
	label signals.Sentiment
	err   error
	calls int
}

func (f *fakeSentiment) ClassifySentiment(context.Context, string) (signals.Sentiment, error) {
	f.calls++
	return f.label, f.err
}

// memoryStore mirrors the upsert semantics of the database store.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]models.AnalysisResult
	writes  int
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]models.AnalysisResult{}}
}

func (s *memoryStore) Upsert(_ context.Context, r *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes++
	s.records[r.ID] = *r
	return nil
}

type fakeIndexer struct {
	err     error
	indexed []string
}

func (f *fakeIndexer) IndexResult(_ context.Context, r *models.AnalysisResult, _ string) error {
	f.indexed = append(f.indexed, r.ID)
	return f.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

var errThrottled = errors.New("throttled")

func fixedID(id string) IDFunc {
	return func() string { return id }
}
