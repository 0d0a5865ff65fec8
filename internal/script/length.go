package script

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kestrelmedia/narrationforge/internal/model"
)

// Length-selection bounds and presets. Mirrors
// length_planner.py/constants.py's CUSTOM_SCRIPT_LENGTH_MIN/MAX,
// DEFAULT_SCRIPT_LENGTH_SELECTION and SCRIPT_LENGTH_PRESETS; the presets
// table itself was not present in the retrieval pack (constants.py is
// absent — see DESIGN.md), so presets are reconstructed from the shape
// spec.md §4.7 describes ("20～30条" style keys) with calls derived the
// same way a custom range would be.
const (
	CustomScriptLengthMin = 5
	CustomScriptLengthMax = 200
)

// DefaultScriptLengthSelection is used when no selection is provided or
// normalization fails.
const DefaultScriptLengthSelection = "20～30条"

var scriptLengthPresets = map[string][2]int{
	"10～20条": {10, 20},
	"20～30条": {20, 30},
	"30～50条": {30, 50},
	"50～80条": {50, 80},
}

var (
	rangeSepReplacer   = strings.NewReplacer(" ", "", "~", "～", "-", "～", "—", "～", "–", "～")
	twoNumbersPattern  = regexp.MustCompile(`(\d+)\D+(\d+)`)
	oneNumberPattern   = regexp.MustCompile(`(\d+)`)
)

// NormalizeLengthSelection canonicalizes a user-typed length string (preset
// key, "a~b" range in any dash style, or a bare number) into a preset key
// or a formatted "a～b条" range. Mirrors normalize_script_length_selection.
func NormalizeLengthSelection(value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", nil
	}
	v = rangeSepReplacer.Replace(v)
	if !strings.HasSuffix(v, "条") && containsDigit(v) {
		v += "条"
	}
	if _, ok := scriptLengthPresets[v]; ok {
		return v, nil
	}
	if m := twoNumbersPattern.FindStringSubmatch(v); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		return normalizeCustomRange(a, b), nil
	}
	if m := oneNumberPattern.FindStringSubmatch(v); m != nil {
		target, _ := strconv.Atoi(m[1])
		if lo, hi, ok := computeCustomRange(target); ok {
			return formatRangeKey(lo, hi), nil
		}
	}
	return "", errInvalidLengthSelection(v)
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func computeCustomRange(target int) (lo, hi int, ok bool) {
	if target <= 0 {
		return 0, 0, false
	}
	safe := clampInt(target, CustomScriptLengthMin, CustomScriptLengthMax)
	lo = maxInt(CustomScriptLengthMin, int(math.Floor(float64(safe)*0.8)))
	hi = maxInt(lo, int(math.Ceil(float64(safe)*1.2)))
	hi = minInt(CustomScriptLengthMax, hi)
	return lo, hi, true
}

func normalizeCustomRange(a, b int) string {
	lo := clampInt(minIntPair(a, b), CustomScriptLengthMin, CustomScriptLengthMax)
	hi := maxInt(lo, maxIntPair(a, b))
	hi = minInt(CustomScriptLengthMax, hi)
	return formatRangeKey(lo, hi)
}

func formatRangeKey(a, b int) string {
	return strconv.Itoa(a) + "～" + strconv.Itoa(b) + "条"
}

// ParseLengthSelection resolves a user length selection into a full
// ScriptTargetPlan: a target item-count range, the preferred chunk-call
// count (ceil(targetMax/20)), and the final target item count. Mirrors
// length_planner.py's parse_script_length_selection. Falls back to
// DefaultScriptLengthSelection on any normalization error, exactly as the
// Python original catches ValueError.
func ParseLengthSelection(value string) model.ScriptTargetPlan {
	normalized, err := NormalizeLengthSelection(value)
	if err != nil || normalized == "" {
		normalized = DefaultScriptLengthSelection
	}

	if bounds, ok := scriptLengthPresets[normalized]; ok {
		targetMin, targetMax := bounds[0], bounds[1]
		return model.ScriptTargetPlan{
			NormalizedSelection: normalized,
			TargetMin:           targetMin,
			TargetMax:           targetMax,
			PreferredCalls:      estimatePreferredCalls(targetMax),
			FinalTargetCount:    targetMax,
		}
	}

	targetMin, targetMax := 0, 0
	if m := twoNumbersPattern.FindStringSubmatch(normalized); m != nil {
		targetMin, _ = strconv.Atoi(m[1])
		targetMax, _ = strconv.Atoi(m[2])
	} else if m := oneNumberPattern.FindStringSubmatch(normalized); m != nil {
		targetMin, _ = strconv.Atoi(m[1])
		targetMax = targetMin
	}
	if targetMin > targetMax {
		targetMin, targetMax = targetMax, targetMin
	}
	targetMin = maxInt(CustomScriptLengthMin, targetMin)
	targetMax = maxInt(targetMin, targetMax)

	return model.ScriptTargetPlan{
		NormalizedSelection: normalized,
		TargetMin:           targetMin,
		TargetMax:           targetMax,
		PreferredCalls:      estimatePreferredCalls(targetMax),
		FinalTargetCount:    targetMax,
	}
}

func estimatePreferredCalls(targetMax int) int {
	if targetMax <= 0 {
		return 1
	}
	return maxInt(1, int(math.Ceil(float64(targetMax)/20.0)))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func minIntPair(a, b int) int { return minInt(a, b) }
func maxIntPair(a, b int) int { return maxInt(a, b) }

func errInvalidLengthSelection(v string) error {
	return fmt.Errorf("script: invalid length selection %q", v)
}
