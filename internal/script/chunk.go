package script

import (
	"math"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

// Chunking constants. original_source/backend/services/script_generation's
// own constants.py was not present in the retrieval pack (see DESIGN.md);
// these values are taken from spec.md §4.7's explicit defaults
// (MAX_SUBS_PER_CALL=220, SOFT_FACTOR≈0.85) rather than reconstructed.
const (
	MaxSubtitleItemsPerCall = 220
	SoftInputFactor         = 0.85
	MaxSubtitleCharsPerCall = 6000
)

// Chunk is one contiguous slice of subtitles dispatched to a single LM call.
type Chunk struct {
	Index int
	Start float64 // seconds
	End   float64 // seconds
	Subs  []model.SubtitleSegment
}

// ComputeChunks splits subtitles into calls contiguous slices (at least
// desiredCalls and at least enough to keep each slice under the soft
// per-call item cap), recursively halving any oversize slice. Mirrors
// subtitle_utils.py's compute_subtitle_chunks.
func ComputeChunks(subs []model.SubtitleSegment, desiredCalls int) []Chunk {
	n := len(subs)
	if n == 0 {
		return nil
	}

	softMax := int(math.Ceil(MaxSubtitleItemsPerCall * SoftInputFactor))
	minCalls := 1
	if softMax > 0 {
		minCalls = maxInt(1, ceilDiv(n, softMax))
	}
	calls := maxInt(1, maxInt(desiredCalls, minCalls))

	var baseSlices [][]model.SubtitleSegment
	for i := 0; i < calls; i++ {
		start := (i * n) / calls
		end := ((i + 1) * n) / calls
		if end > start {
			baseSlices = append(baseSlices, subs[start:end])
		}
	}

	var splitSlices [][]model.SubtitleSegment
	for _, slice := range baseSlices {
		splitSlices = append(splitSlices, splitIfOversize(slice, softMax)...)
	}

	chunks := make([]Chunk, 0, len(splitSlices))
	for idx, slice := range splitSlices {
		var startS, endS float64
		if len(slice) > 0 {
			startS = slice[0].Start.Seconds()
			endS = slice[len(slice)-1].End.Seconds()
		}
		chunks = append(chunks, Chunk{Index: idx, Start: startS, End: endS, Subs: slice})
	}
	return chunks
}

func splitIfOversize(subs []model.SubtitleSegment, softMax int) [][]model.SubtitleSegment {
	if softMax <= 0 || len(subs) <= softMax {
		return [][]model.SubtitleSegment{subs}
	}
	mid := len(subs) / 2
	if mid <= 0 {
		return [][]model.SubtitleSegment{subs[:softMax]}
	}
	left := subs[:mid]
	right := subs[mid:]
	var out [][]model.SubtitleSegment
	out = append(out, splitIfOversize(left, softMax)...)
	out = append(out, splitIfOversize(right, softMax)...)
	return out
}

// AllocateOutputCounts distributes totalTarget items over chunkCount
// chunks as evenly as possible, remainder to the first chunks; if there
// are more chunks than the target, each chunk gets exactly 1. Mirrors
// length_planner.py's allocate_output_counts.
func AllocateOutputCounts(totalTarget, chunkCount int) []int {
	if chunkCount <= 0 {
		return nil
	}
	if totalTarget <= 0 {
		out := make([]int, chunkCount)
		for i := range out {
			out[i] = 1
		}
		return out
	}
	if chunkCount > totalTarget {
		out := make([]int, chunkCount)
		for i := range out {
			out[i] = 1
		}
		return out
	}
	base := totalTarget / chunkCount
	rem := totalTarget % chunkCount
	out := make([]int, chunkCount)
	for i := range out {
		if i < rem {
			out[i] = base + 1
		} else {
			out[i] = base
		}
		out[i] = maxInt(1, out[i])
	}
	return out
}

func ceilDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
