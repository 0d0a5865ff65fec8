package script

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubtitlesStandardSRT(t *testing.T) {
	content := "1\n00:00:01,000 --> 00:00:03,500\nHello there\n\n2\n00:00:04,000 --> 00:00:06,000\nSecond line\n"
	subs := ParseSubtitles(content)
	require.Len(t, subs, 2)
	assert.Equal(t, "Hello there", subs[0].Text)
	assert.Equal(t, time.Second, subs[0].Start)
	assert.Equal(t, 3500*time.Millisecond, subs[0].End)
	assert.Equal(t, "Second line", subs[1].Text)
}

func TestParseSubtitlesBracketDialect(t *testing.T) {
	content := "[00:00:01,000-00:00:03,500] Hello there\n[00:00:04,000-00:00:06,000] Second line\n"
	subs := ParseSubtitles(content)
	require.Len(t, subs, 2)
	assert.Equal(t, "Hello there", subs[0].Text)
	assert.Equal(t, "Second line", subs[1].Text)
}

func TestParseSubtitlesSortsByStart(t *testing.T) {
	content := "[00:00:10,000-00:00:12,000] Second\n[00:00:01,000-00:00:02,000] First\n"
	subs := ParseSubtitles(content)
	require.Len(t, subs, 2)
	assert.Equal(t, "First", subs[0].Text)
	assert.Equal(t, "Second", subs[1].Text)
}

func TestParseSubtitlesEmptyContentReturnsEmpty(t *testing.T) {
	assert.Empty(t, ParseSubtitles(""))
}

func TestFormatAndParseTimestampRoundTrip(t *testing.T) {
	d := 1*time.Hour + 2*time.Minute + 3*time.Second + 456*time.Millisecond
	formatted := FormatTimestamp(d)
	assert.Equal(t, "01:02:03,456", formatted)

	parsed, err := parseTimestamp(formatted)
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestParseTimestampRange(t *testing.T) {
	start, end, err := ParseTimestampRange("00:00:01,000-00:00:03,500")
	require.NoError(t, err)
	assert.Equal(t, time.Second, start)
	assert.Equal(t, 3500*time.Millisecond, end)
}

func TestParseTimestampRangeInvalidFormat(t *testing.T) {
	_, _, err := ParseTimestampRange("not-a-range")
	assert.Error(t, err)
}

func TestCompressSubtitlesStandardSRT(t *testing.T) {
	content := "1\n00:00:01,000 --> 00:00:03,500\nHello   there\n<i>italic</i>\n\n2\n00:00:04,000 --> 00:00:06,000\nSecond line\n"
	compressed := CompressSubtitles(content)
	assert.Equal(t, "[00:00:01,000-00:00:03,500] Hello there italic\n[00:00:04,000-00:00:06,000] Second line\n", compressed)
}

func TestCompressSubtitlesStripsBOM(t *testing.T) {
	content := "\xef\xbb\xbf1\n00:00:01,000 --> 00:00:02,000\nHi\n"
	compressed := CompressSubtitles(content)
	assert.Equal(t, "[00:00:01,000-00:00:02,000] Hi\n", compressed)
}

func TestCompressSubtitlesIsIdempotent(t *testing.T) {
	content := "1\n00:00:01,000 --> 00:00:03,500\nHello there\n\n2\n00:00:04,000 --> 00:00:06,000\nSecond line\n"
	once := CompressSubtitles(content)
	twice := CompressSubtitles(once)
	assert.Equal(t, once, twice)
}

func TestCompressSubtitlesEmptyInput(t *testing.T) {
	assert.Empty(t, CompressSubtitles(""))
}

func TestCompressSubtitlesSkipsBlockWithNoTimingLine(t *testing.T) {
	content := "NOTE this is not a cue\njust text\n\n1\n00:00:01,000 --> 00:00:02,000\nReal cue\n"
	compressed := CompressSubtitles(content)
	assert.Equal(t, "[00:00:01,000-00:00:02,000] Real cue\n", compressed)
}
