package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// VideoJobState is a discrete state of one asynchronous video job.
type VideoJobState string

const (
	VideoSubmitted  VideoJobState = "submitted"
	VideoQueued     VideoJobState = "queued"
	VideoInProgress VideoJobState = "in_progress"
	VideoCompleted  VideoJobState = "completed"
	VideoFailed     VideoJobState = "failed"
	VideoTimedOut   VideoJobState = "timed_out"
)

// videoTransitions: key = from, value = allowed targets.
// Pending states may repeat because each poll re-reports the status.
var videoTransitions = map[VideoJobState]map[VideoJobState]bool{
	VideoSubmitted: {
		VideoQueued:     true,
		VideoInProgress: true,
		VideoCompleted:  true,
		VideoFailed:     true,
		VideoTimedOut:   true,
	},
	VideoQueued: {
		VideoQueued:     true,
		VideoInProgress: true,
		VideoCompleted:  true,
		VideoFailed:     true,
		VideoTimedOut:   true,
	},
	VideoInProgress: {
		VideoQueued:     true,
		VideoInProgress: true,
		VideoCompleted:  true,
		VideoFailed:     true,
		VideoTimedOut:   true,
	},
	VideoCompleted: {},
	VideoFailed:    {},
	VideoTimedOut:  {},
}

// Terminal reports whether no further transition is possible.
func (s VideoJobState) Terminal() bool {
	return s == VideoCompleted || s == VideoFailed || s == VideoTimedOut
}

// ParseVideoStatus maps a provider status string to a job state.
// Unrecognised strings, including "unknown", count as still in progress.
func ParseVideoStatus(raw string) VideoJobState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "submitted":
		return VideoQueued
	case "completed", "succeeded", "done":
		return VideoCompleted
	case "failed", "cancelled", "canceled", "error":
		return VideoFailed
	default:
		return VideoInProgress
	}
}

// MediaContent is raw bytes plus the content type reported by the provider.
type MediaContent struct {
	Data        []byte
	ContentType string
}

// VideoJob is the provider's view of a job after submit or poll.
type VideoJob struct {
	ID        string
	Status    string
	OutputURL string
	Error     string
	Inline    *MediaContent // set when the provider returned the video directly
}

// VideoSubmission is the normalized request for one video.
type VideoSubmission struct {
	Prompt    string
	Model     string
	Seconds   string
	Size      string
	Reference *MediaContent
}

// VideoBackend is the provider side of a video job.
type VideoBackend interface {
	Submit(ctx context.Context, sub VideoSubmission) (*VideoJob, error)
	Poll(ctx context.Context, jobID string) (*VideoJob, error)
	DownloadContent(ctx context.Context, jobID string) (*MediaContent, error)
	FetchURL(ctx context.Context, url string) (*MediaContent, error)
}

// Clock abstracts waiting so the poll loop can be driven in tests.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock sleeps on the wall clock and honours ctx cancellation.
type SystemClock struct{}

// Sleep blocks for d or until ctx is done.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// VideoResult is the downloaded video.
type VideoResult struct {
	Data        []byte
	Ext         string
	ContentType string
	JobID       string
	Polls       int
}

// VideoTransition is reported to listeners on every state change.
type VideoTransition struct {
	JobID string
	From  VideoJobState
	To    VideoJobState
	Poll  int
}

// VideoJobRunner drives one video job from submission to downloaded content.
type VideoJobRunner struct {
	backend     VideoBackend
	clock       Clock
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger

	mu        sync.Mutex
	listeners []func(VideoTransition)
}

// NewVideoJobRunner creates a runner. Zero interval or attempts fall back to 2s and 45.
func NewVideoJobRunner(backend VideoBackend, clock Clock, interval time.Duration, maxAttempts int, logger *zap.Logger) *VideoJobRunner {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 45
	}
	return &VideoJobRunner{
		backend:     backend,
		clock:       clock,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// OnTransition registers a listener called on every state change.
func (r *VideoJobRunner) OnTransition(fn func(VideoTransition)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// videoRun is the per-job state; the runner itself is shared across requests.
type videoRun struct {
	r     *VideoJobRunner
	jobID string
	state VideoJobState
	polls int
}

func (v *videoRun) transition(to VideoJobState) error {
	from := v.state
	if !videoTransitions[from][to] {
		err := fmt.Errorf("invalid video job transition: %s → %s", from, to)
		v.r.logger.Error("Video job state violation", zap.String("job_id", v.jobID), zap.Error(err))
		return err
	}
	v.state = to
	if from == to {
		return nil
	}

	v.r.logger.Debug("Video job transition",
		zap.String("job_id", v.jobID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("poll", v.polls),
	)

	v.r.mu.Lock()
	listeners := make([]func(VideoTransition), len(v.r.listeners))
	copy(listeners, v.r.listeners)
	v.r.mu.Unlock()

	for _, fn := range listeners {
		fn(VideoTransition{JobID: v.jobID, From: from, To: to, Poll: v.polls})
	}
	return nil
}

func (v *videoRun) fail(message string) error {
	_ = v.transition(VideoFailed)
	if message == "" {
		message = "video job failed"
	}
	return &ProviderError{
		Kind:      ProviderErrJobFailed,
		Provider:  "openai",
		Operation: "video",
		Message:   message,
	}
}

// Run submits the job, polls until a terminal status and downloads the result.
func (r *VideoJobRunner) Run(ctx context.Context, sub VideoSubmission) (*VideoResult, error) {
	job, err := r.backend.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	run := &videoRun{r: r, jobID: job.ID, state: VideoSubmitted}

	if job.Inline != nil && len(job.Inline.Data) > 0 {
		if err := run.transition(VideoCompleted); err != nil {
			return nil, err
		}
		return newVideoResult(job.ID, 0, job.Inline), nil
	}

	outputURL := job.OutputURL
	state := ParseVideoStatus(job.Status)
	if job.ID == "" && outputURL == "" {
		return nil, NewProtocolError("openai", "video.submit", "submission returned neither a job id nor content", nil)
	}
	if state == VideoFailed {
		return nil, run.fail(job.Error)
	}
	if err := run.transition(state); err != nil {
		return nil, err
	}

	// A bare URL without a job id cannot be polled; fetch it directly.
	if job.ID != "" {
		for !run.state.Terminal() {
			if run.polls >= r.maxAttempts {
				_ = run.transition(VideoTimedOut)
				return nil, &ProviderError{
					Kind:      ProviderErrTimeout,
					Provider:  "openai",
					Operation: "video.poll",
					Message:   fmt.Sprintf("job %s not finished after %d polls", job.ID, run.polls),
				}
			}
			if err := r.clock.Sleep(ctx, r.interval); err != nil {
				return nil, NewTransportError("openai", "video.poll", err)
			}
			run.polls++

			polled, err := r.backend.Poll(ctx, job.ID)
			if err != nil {
				return nil, err
			}
			if outputURL == "" {
				outputURL = polled.OutputURL
			}
			if polled.Inline != nil && len(polled.Inline.Data) > 0 {
				if err := run.transition(VideoCompleted); err != nil {
					return nil, err
				}
				return newVideoResult(job.ID, run.polls, polled.Inline), nil
			}
			next := ParseVideoStatus(polled.Status)
			if next == VideoFailed {
				return nil, run.fail(polled.Error)
			}
			if err := run.transition(next); err != nil {
				return nil, err
			}
		}
	}

	var content *MediaContent
	switch {
	case outputURL != "":
		content, err = r.backend.FetchURL(ctx, outputURL)
	case job.ID != "":
		content, err = r.backend.DownloadContent(ctx, job.ID)
	}
	if err != nil {
		return nil, err
	}
	if content == nil || len(content.Data) == 0 {
		return nil, NewProtocolError("openai", "video.content", "job completed but no content was retrievable", nil)
	}
	if run.state != VideoCompleted {
		if err := run.transition(VideoCompleted); err != nil {
			return nil, err
		}
	}

	r.logger.Info("Video job finished",
		zap.String("job_id", job.ID),
		zap.Int("polls", run.polls),
		zap.Int("bytes", len(content.Data)),
	)
	return newVideoResult(job.ID, run.polls, content), nil
}

func newVideoResult(jobID string, polls int, c *MediaContent) *VideoResult {
	return &VideoResult{
		Data:        c.Data,
		Ext:         ExtensionForContentType(c.ContentType),
		ContentType: c.ContentType,
		JobID:       jobID,
		Polls:       polls,
	}
}

// ExtensionForContentType picks a file extension for a video container.
func ExtensionForContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "quicktime"):
		return ".mov"
	default:
		return ".mp4"
	}
}

type videoListenerKey struct{}

// ContextWithVideoListener attaches a per-request transition listener. The
// dispatcher registers it on the runner it creates for that request.
func ContextWithVideoListener(ctx context.Context, fn func(VideoTransition)) context.Context {
	return context.WithValue(ctx, videoListenerKey{}, fn)
}

// VideoListenerFrom returns the listener attached by ContextWithVideoListener.
func VideoListenerFrom(ctx context.Context) func(VideoTransition) {
	fn, _ := ctx.Value(videoListenerKey{}).(func(VideoTransition))
	return fn
}
