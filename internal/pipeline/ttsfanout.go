package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/providers"
)

// maxConcurrentTTSCalls bounds simultaneous TTS provider calls, matching
// video_processor.py's generate_from_script TTS fan-out
// (`asyncio.Semaphore(5)`).
const maxConcurrentTTSCalls = 5

// TTSJob is one segment's narration text awaiting synthesis.
type TTSJob struct {
	SegmentID int
	Request   providers.SpeechRequest
}

// TTSResult is the synthesized audio for one segment.
type TTSResult struct {
	SegmentID int
	AudioPath string
	Duration  time.Duration
}

// RunTTSFanout synthesizes every job in parallel, bounded to
// maxConcurrentTTSCalls concurrent provider calls. On the first failure it
// cancels the remaining in-flight and not-yet-started calls and returns
// that error — matching spec.md §4.8's "on any TTS failure, cancel
// remaining TTS tasks and fail the whole pipeline" contract. Results are
// returned in job order regardless of completion order.
func RunTTSFanout(ctx context.Context, provider providers.TTSProvider, jobs []TTSJob) ([]TTSResult, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	results := make([]TTSResult, len(jobs))
	sem := semaphore.NewWeighted(maxConcurrentTTSCalls)
	g, gctx := errgroup.WithContext(ctx)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			res, err := provider.Synthesize(gctx, job.Request)
			if err != nil {
				return errs.New(err).Component("pipeline.tts").Category(errs.CategoryProvider).
					Context("segment_id", job.SegmentID).Build()
			}
			results[i] = TTSResult{
				SegmentID: job.SegmentID,
				AudioPath: res.AudioPath,
				Duration:  time.Duration(res.Duration * float64(time.Second)),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
