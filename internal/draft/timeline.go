package draft

import (
	"time"

	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/pipeline"
)

// TimelineItem is one segment's resolved placement on the draft's video
// track: a window into the source video, optionally paired with a
// loudness-normalized narration clip muting the original audio.
//
// Grounded on jianying_draft_manager.py's timeline_items dicts
// ("kind"/"duration_us"/"source_start_us"/"mute"/"narration_path"/
// "narration_duration_us").
type TimelineItem struct {
	DurationUS          int64
	SourceStartUS       int64
	Text                string
	Mute                bool
	NarrationPath       string
	NarrationDurationUS int64
}

// NarrationAudio is one segment's synthesized, loudness-normalized
// narration clip.
type NarrationAudio struct {
	Path     string
	Duration time.Duration
}

// BuildTimelineItems resolves every segment into a TimelineItem. OST (or
// narration-less) segments pass their window through unchanged; narrated
// segments have their window aligned to their narration's duration via
// pipeline.AlignWindow — the same rule the video pipeline applies before
// cutting, reused here as a pure computation since the draft format
// defers the actual trim to the editor.
func BuildTimelineItems(segments []model.Segment, videoDur time.Duration, narrations map[int]NarrationAudio) []TimelineItem {
	items := make([]TimelineItem, 0, len(segments))
	for _, seg := range segments {
		dur := seg.Duration()
		if dur <= 0 {
			continue
		}
		if seg.IsOriginal() || seg.Narration == "" {
			items = append(items, TimelineItem{
				DurationUS:    usOf(dur),
				SourceStartUS: usOf(seg.Start),
				Text:          seg.Narration,
			})
			continue
		}

		narr, ok := narrations[seg.ID]
		if !ok {
			items = append(items, TimelineItem{
				DurationUS:    usOf(dur),
				SourceStartUS: usOf(seg.Start),
				Text:          seg.Narration,
			})
			continue
		}

		aligned := pipeline.AlignWindow(seg.Start, dur, narr.Duration, videoDur)
		items = append(items, TimelineItem{
			DurationUS:          usOf(aligned.Duration),
			SourceStartUS:       usOf(aligned.Start),
			Text:                seg.Narration,
			Mute:                true,
			NarrationPath:       narr.Path,
			NarrationDurationUS: usOf(narr.Duration),
		})
	}
	return items
}

// usOf converts a time.Duration to integer microseconds, matching
// jianying_draft_manager.py's _s_to_us.
func usOf(d time.Duration) int64 {
	return d.Microseconds()
}
