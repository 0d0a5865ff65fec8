package script

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/logging"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/providers"
)

var serviceLogger = logging.ForService("script")

// maxConcurrentChunkCalls bounds parallel per-chunk LM calls, mirroring
// service.py's asyncio.Semaphore(5).
const maxConcurrentChunkCalls = 5

// GenerateRequest is the full input to assembling a project's narration
// script, mirroring service.py's generate_script_json parameters plus the
// project fields it reads from the project store.
type GenerateRequest struct {
	DramaName      string
	PlotAnalysis   string
	SubtitleText   string
	PromptKey      string
	OriginalRatio  int
	ScriptLength   string // raw selection, e.g. "20～30条"
	ScriptLanguage string
}

// PlotAnalysisFilter narrows a full-video plot analysis to the portion
// relevant to one chunk's time window. Plot analysis generation itself
// (original_source's plot_analysis.py) is out of this port's scope; callers
// not using it may pass a no-op filter that ignores the window and returns
// the full text.
type PlotAnalysisFilter func(plotAnalysis string, startSeconds, endSeconds float64) string

// Generate runs the full chunk/merge/refine pipeline and returns a Script
// with segments numbered from 1 in time order. Mirrors
// service.py's ScriptGenerationService.generate_script_json.
func Generate(ctx context.Context, model_ providers.ChatModel, pack *PromptPack, filterPlot PlotAnalysisFilter, req GenerateRequest) (model.Script, error) {
	subs := ParseSubtitles(req.SubtitleText)
	if len(subs) == 0 {
		return model.Script{}, errs.Newf("script: subtitle parsing produced no cues").
			Component("script.service").Category(errs.CategoryInput).Build()
	}
	totalDuration := subs[len(subs)-1].End.Seconds()
	if totalDuration <= 0 {
		return model.Script{}, errs.Newf("script: subtitle timestamps have zero total duration").
			Component("script.service").Category(errs.CategoryInput).Build()
	}

	plan := ParseLengthSelection(req.ScriptLength)
	chunks := ComputeChunks(subs, plan.PreferredCalls)
	if len(chunks) == 0 {
		return model.Script{}, errs.Newf("script: chunking produced no chunks").
			Component("script.service").Category(errs.CategoryInput).Build()
	}

	serviceLogger.Info("script generation plan", "chunks", len(chunks), "target_count", plan.FinalTargetCount)
	perChunkCounts := AllocateOutputCounts(plan.FinalTargetCount, len(chunks))

	allItems, err := generateChunksConcurrently(ctx, model_, pack, filterPlot, req, chunks, perChunkCounts)
	if err != nil {
		return model.Script{}, err
	}

	merged := MergeItems(allItems)
	effectiveTarget := plan.FinalTargetCount
	if len(merged) < effectiveTarget {
		effectiveTarget = len(merged)
	}

	var final []model.PlanItem
	if len(chunks) <= 1 {
		if effectiveTarget > 0 && effectiveTarget < len(merged) {
			final = merged[:effectiveTarget]
		} else {
			final = merged
		}
	} else {
		final, err = RefineFullScript(ctx, model_, merged, RefineRequest{
			DramaName:      req.DramaName,
			PlotAnalysis:   req.PlotAnalysis,
			TargetCount:    effectiveTarget,
			OriginalRatio:  req.OriginalRatio,
			ScriptLanguage: req.ScriptLanguage,
		})
		if err != nil {
			return model.Script{}, err
		}
	}

	sort.SliceStable(final, func(i, j int) bool { return final[i].Start < final[j].Start })
	RenumberItems(final)

	segments := make([]model.Segment, len(final))
	for i, it := range final {
		segments[i] = model.Segment{
			ID: it.ID, Start: it.Start, End: it.End,
			Narration: it.Narration, Picture: it.Picture, OST: it.OST,
		}
	}
	var total float64
	if n := len(segments); n > 0 {
		total = segments[n-1].End.Seconds()
	}
	return model.Script{Segments: segments, TotalDuration: total}, nil
}

func generateChunksConcurrently(
	ctx context.Context,
	model_ providers.ChatModel,
	pack *PromptPack,
	filterPlot PlotAnalysisFilter,
	req GenerateRequest,
	chunks []Chunk,
	perChunkCounts []int,
) ([]model.PlanItem, error) {
	sem := semaphore.NewWeighted(maxConcurrentChunkCalls)
	g, gctx := errgroup.WithContext(ctx)

	results := make([][]model.PlanItem, len(chunks))
	var mu sync.Mutex

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			localPlot := req.PlotAnalysis
			if filterPlot != nil {
				localPlot = filterPlot(req.PlotAnalysis, chunk.Start, chunk.End)
			}

			items, err := GenerateChunk(gctx, model_, pack, ChunkRequest{
				ChunkIndex:      chunk.Index,
				ChunkTotal:      len(chunks),
				StartSeconds:    chunk.Start,
				EndSeconds:      chunk.End,
				Subtitles:       chunk.Subs,
				PlotAnalysis:    localPlot,
				DramaName:       req.DramaName,
				TargetItemCount: perChunkCounts[i],
				OriginalRatio:   req.OriginalRatio,
				ScriptLanguage:  req.ScriptLanguage,
				PromptKey:       req.PromptKey,
			})
			if err != nil {
				return err
			}

			mu.Lock()
			results[i] = items
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []model.PlanItem
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}
