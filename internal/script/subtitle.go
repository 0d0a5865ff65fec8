// Package script assembles a timestamped narration Script from subtitle
// text: parsing, LM-chunk dispatch, merge, and a global refine pass.
//
// Grounded on original_source/backend/services/script_generation/
// {subtitle_utils.py, script_builder.py, length_planner.py, service.py}.
package script

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

var (
	bracketLinePattern = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2},\d{3})-(\d{2}:\d{2}:\d{2},\d{3})\]\s*(.+)$`)
	srtBlockPattern    = regexp.MustCompile(`(?s)(\d+)\s+(\d{2}:\d{2}:\d{2},\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2},\d{3})\s+(.+?)(?:\n\s*\d+\s+\d{2}:\d{2}:\d{2}|\z)`)
	htmlTagPattern     = regexp.MustCompile(`<[^>]+>`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

// CompressSubtitles rewrites standard SRT text into the project-private
// compressed dialect: one "[start-end] text" line per cue, BOM-stripped,
// HTML tags removed, and internal whitespace collapsed. Mirrors
// extract_subtitle_service.py's _compress_srt, including its
// block-by-blank-line splitting and "first line containing -->" timing
// detection (so a block missing a sequence number still compresses).
//
// Already-compressed input (every non-empty line already in "[start-end]
// text" form) is recognized up front and normalized line-by-line instead of
// being run through the blank-line block splitter, which would otherwise
// find no "-->" timing line and drop everything — this is what makes
// compress(compress(x)) == compress(x) hold.
func CompressSubtitles(content string) string {
	text := strings.ReplaceAll(content, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimPrefix(text, "\xef\xbb\xbf")

	if lines := alreadyCompressedLines(text); lines != nil {
		return compressBracketLines(lines)
	}

	var outLines []string
	for _, block := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		var lines []string
		for _, ln := range strings.Split(block, "\n") {
			ln = strings.TrimSpace(ln)
			if ln != "" {
				lines = append(lines, ln)
			}
		}
		if len(lines) == 0 {
			continue
		}

		timingIdx := -1
		for i, ln := range lines {
			if i >= 3 {
				break
			}
			if strings.Contains(ln, "-->") {
				timingIdx = i
				break
			}
		}
		if timingIdx == -1 {
			continue
		}

		parts := strings.SplitN(lines[timingIdx], "-->", 2)
		if len(parts) < 2 {
			continue
		}
		start := strings.TrimSpace(parts[0])
		end := strings.TrimSpace(parts[1])

		textLines := lines[timingIdx+1:]
		joined := strings.Join(textLines, " ")
		joined = whitespaceRun.ReplaceAllString(joined, " ")
		joined = strings.TrimSpace(joined)
		joined = htmlTagPattern.ReplaceAllString(joined, "")
		if joined == "" {
			continue
		}

		outLines = append(outLines, fmt.Sprintf("[%s-%s] %s", start, end, joined))
	}

	if len(outLines) == 0 {
		return ""
	}
	return strings.Join(outLines, "\n") + "\n"
}

// alreadyCompressedLines returns the trimmed non-empty lines of text if
// every one already matches the "[start-end] text" dialect, or nil
// otherwise.
func alreadyCompressedLines(text string) []string {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		if !bracketLinePattern.MatchString(ln) {
			return nil
		}
		lines = append(lines, ln)
	}
	if len(lines) == 0 {
		return nil
	}
	return lines
}

// compressBracketLines re-normalizes already-compressed lines: whitespace
// collapse and HTML-tag stripping on the text portion, timestamps passed
// through unchanged.
func compressBracketLines(lines []string) string {
	var outLines []string
	for _, ln := range lines {
		m := bracketLinePattern.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		joined := whitespaceRun.ReplaceAllString(m[3], " ")
		joined = strings.TrimSpace(joined)
		joined = htmlTagPattern.ReplaceAllString(joined, "")
		if joined == "" {
			continue
		}
		outLines = append(outLines, fmt.Sprintf("[%s-%s] %s", m[1], m[2], joined))
	}
	if len(outLines) == 0 {
		return ""
	}
	return strings.Join(outLines, "\n") + "\n"
}

// ParseSubtitles parses subtitle text in either standard SRT form
// ("index\nHH:MM:SS,mmm --> HH:MM:SS,mmm\ntext") or the compressed bracket
// dialect ("[HH:MM:SS,mmm-HH:MM:SS,mmm] text"), auto-detected by pattern
// presence, and returns cues sorted by start time. Mirrors
// subtitle_utils.py's _parse_srt_subtitles.
func ParseSubtitles(content string) []model.SubtitleSegment {
	content = strings.TrimSpace(content)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	if strings.HasPrefix(content, `"`) && strings.HasSuffix(content, `"`) && len(content) >= 2 {
		content = content[1 : len(content)-1]
	}

	lines := make([]string, 0)
	for _, ln := range strings.Split(content, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			lines = append(lines, ln)
		}
	}

	if subs := parseBracketLines(lines); subs != nil {
		return subs
	}
	return parseSRTBlocks(content)
}

func parseBracketLines(lines []string) []model.SubtitleSegment {
	anyMatch := false
	for _, ln := range lines {
		if bracketLinePattern.MatchString(ln) {
			anyMatch = true
			break
		}
	}
	if !anyMatch {
		return nil
	}

	var subs []model.SubtitleSegment
	idx := 1
	for _, ln := range lines {
		m := bracketLinePattern.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		start, err1 := parseTimestamp(m[1])
		end, err2 := parseTimestamp(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		subs = append(subs, model.SubtitleSegment{
			Index: idx,
			Start: start,
			End:   end,
			Text:  strings.TrimSpace(m[3]),
		})
		idx++
	}
	sortSubtitles(subs)
	return subs
}

func parseSRTBlocks(content string) []model.SubtitleSegment {
	var subs []model.SubtitleSegment
	norm := content + "\n"
	// The pattern's terminator consumes the next block's index and start
	// time, so each search resumes right after the matched cue text.
	for {
		loc := srtBlockPattern.FindStringSubmatchIndex(norm)
		if loc == nil {
			break
		}
		m := []string{"", norm[loc[2]:loc[3]], norm[loc[4]:loc[5]], norm[loc[6]:loc[7]], norm[loc[8]:loc[9]]}
		norm = norm[loc[9]:]
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		start, err1 := parseTimestamp(m[2])
		end, err2 := parseTimestamp(m[3])
		if err1 != nil || err2 != nil {
			continue
		}
		subs = append(subs, model.SubtitleSegment{
			Index: idx,
			Start: start,
			End:   end,
			Text:  strings.TrimSpace(m[4]),
		})
	}
	sortSubtitles(subs)
	return subs
}

func sortSubtitles(subs []model.SubtitleSegment) {
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].Start != subs[j].Start {
			return subs[i].Start < subs[j].Start
		}
		return subs[i].End < subs[j].End
	})
}

// parseTimestamp parses "HH:MM:SS,mmm" into a time.Duration.
func parseTimestamp(ts string) (time.Duration, error) {
	ts = strings.ReplaceAll(ts, ",", ".")
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, strconvError(ts)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	total := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second))
	return total, nil
}

func strconvError(ts string) error {
	return &strconv.NumError{Func: "parseTimestamp", Num: ts, Err: strconv.ErrSyntax}
}

// FormatTimestamp renders d as "HH:MM:SS,mmm".
func FormatTimestamp(d time.Duration) string {
	totalMS := d.Milliseconds()
	ms := totalMS % 1000
	totalSec := totalMS / 1000
	h := totalSec / 3600
	m := (totalSec % 3600) / 60
	s := totalSec % 60
	return padInt(h, 2) + ":" + padInt(m, 2) + ":" + padInt(s, 2) + "," + padInt(ms, 3)
}

// FormatTimestampRange renders "start-end" in FormatTimestamp form,
// mirroring _format_timestamp_range.
func FormatTimestampRange(start, end time.Duration) string {
	return FormatTimestamp(start) + "-" + FormatTimestamp(end)
}

// ParseTimestampRange parses "HH:MM:SS,mmm-HH:MM:SS,mmm" (also accepting an
// en dash separator) into (start, end), mirroring
// subtitle_utils.py's _parse_timestamp_pair.
func ParseTimestampRange(rng string) (start, end time.Duration, err error) {
	rng = strings.TrimSpace(rng)
	parts := timestampRangeSeparator.Split(rng, 2)
	if len(parts) != 2 {
		return 0, 0, strconvError(rng)
	}
	start, err = parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err = parseTimestamp(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

var timestampRangeSeparator = regexp.MustCompile(`\s*[-\x{2013}]\s*`)

func padInt(v int64, width int) string {
	s := strconv.FormatInt(v, 10)
	for len(s) < width {
		s = "0" + s
	}
	return s
}
