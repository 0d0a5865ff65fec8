package script

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kestrelmedia/narrationforge/internal/errs"
	"github.com/kestrelmedia/narrationforge/internal/logging"
	"github.com/kestrelmedia/narrationforge/internal/model"
	"github.com/kestrelmedia/narrationforge/internal/providers"
)

var builderLogger = logging.ForService("script")

const maxGenerationRetries = 3

// planItemWire is the JSON shape exchanged with the language model: _id,
// a combined timestamp range string, picture, narration, and an int OST
// flag — mirroring the original's wire dict exactly (not model.PlanItem,
// which carries start/end as separate Durations).
type planItemWire struct {
	ID        int    `json:"_id"`
	Timestamp string `json:"timestamp"`
	Picture   string `json:"picture"`
	Narration string `json:"narration"`
	OST       int    `json:"OST"`
}

func (w planItemWire) toPlanItem() (model.PlanItem, error) {
	start, end, err := ParseTimestampRange(w.Timestamp)
	if err != nil {
		return model.PlanItem{}, err
	}
	return model.PlanItem{
		ID: w.ID, Start: start, End: end,
		Narration: w.Narration, Picture: w.Picture, OST: w.OST == 1,
	}, nil
}

// ChunkRequest is one chunk's generation parameters, mirroring
// script_builder.py's _generate_script_chunk arguments.
type ChunkRequest struct {
	ChunkIndex       int
	ChunkTotal       int
	StartSeconds     float64
	EndSeconds       float64
	Subtitles        []model.SubtitleSegment
	PlotAnalysis     string
	DramaName        string
	TargetItemCount  int
	OriginalRatio    int
	ScriptLanguage   string
	PromptKey        string
}

// GenerateChunk drives one LM call for a subtitle chunk: builds the
// prompt, calls the model, parses and validates the JSON response, drops
// items outside the chunk's time window (±5s), and truncates/accepts
// against TargetItemCount. Retries up to maxGenerationRetries times on any
// failure. Mirrors script_builder.py's _generate_script_chunk.
func GenerateChunk(ctx context.Context, model_ providers.ChatModel, pack *PromptPack, req ChunkRequest) ([]model.PlanItem, error) {
	var lastErr error
	for attempt := 0; attempt <= maxGenerationRetries; attempt++ {
		items, err := generateChunkOnce(ctx, model_, pack, req)
		if err == nil {
			return items, nil
		}
		lastErr = err
		if attempt < maxGenerationRetries {
			builderLogger.Warn("script chunk generation failed, retrying",
				"chunk_index", req.ChunkIndex, "attempt", attempt+1, "error", err)
			continue
		}
	}
	return nil, errs.New(lastErr).Component("script.builder").Category(errs.CategoryProvider).
		Context("chunk_index", req.ChunkIndex).Build()
}

func generateChunkOnce(ctx context.Context, model_ providers.ChatModel, pack *PromptPack, req ChunkRequest) ([]model.PlanItem, error) {
	subsText := formatSubtitlesForPrompt(req.Subtitles)

	rendered, err := pack.BuildChatMessages(req.PromptKey, map[string]string{
		"drama_name":        req.DramaName,
		"plot_analysis":     req.PlotAnalysis,
		"subtitle_content":  subsText,
	})
	if err != nil {
		return nil, err
	}

	messages := composeChunkMessages(rendered, req)

	resp, err := model_.ChatCompletion(ctx, providers.ChatRequest{Messages: messages, JSONResponse: true})
	if err != nil {
		return nil, err
	}

	wireItems, err := parseItemsResponse(resp.Content)
	if err != nil {
		return nil, err
	}

	valid := make([]planItemWire, 0, len(wireItems))
	for _, it := range wireItems {
		start, end, err := ParseTimestampRange(it.Timestamp)
		if err != nil {
			continue
		}
		if end.Seconds() < req.StartSeconds-5 || start.Seconds() > req.EndSeconds+5 {
			continue
		}
		valid = append(valid, it)
	}

	selected := valid
	if req.TargetItemCount > 0 {
		selected = selectUpTo(valid, req.TargetItemCount)
	}

	items := make([]model.PlanItem, 0, len(selected))
	for _, it := range selected {
		pi, err := it.toPlanItem()
		if err != nil {
			continue
		}
		items = append(items, pi)
	}
	return items, nil
}

func selectUpTo(valid []planItemWire, n int) []planItemWire {
	if len(valid) > n {
		return valid[:n]
	}
	return valid
}

func formatSubtitlesForPrompt(subs []model.SubtitleSegment) string {
	var sb strings.Builder
	for _, s := range subs {
		sb.WriteString("[")
		sb.WriteString(FormatTimestampRange(s.Start, s.End))
		sb.WriteString("] ")
		sb.WriteString(s.Text)
		sb.WriteString("\n")
	}
	text := sb.String()
	if len(text) > MaxSubtitleCharsPerCall {
		text = text[:MaxSubtitleCharsPerCall]
	}
	return text
}

// composeChunkMessages prepends the position/count/ratio/language system
// instructions and merges all system messages into one, mirroring
// script_builder.py's message assembly tail.
func composeChunkMessages(rendered []renderedMessage, req ChunkRequest) []providers.ChatMessage {
	var systemParts []string
	var nonSystem []providers.ChatMessage

	if req.ChunkTotal > 0 {
		var posLabel string
		switch {
		case req.ChunkIndex <= 0:
			posLabel = "开始段"
		case req.ChunkIndex >= req.ChunkTotal-1:
			posLabel = "末尾段"
		default:
			posLabel = "中间段"
		}
		systemParts = append(systemParts, fmt.Sprintf(
			"这是分段生成脚本的第%d段/共%d段，位置为%s。开始段可引入剧情，中间段不要重复开场或收尾，末尾段需要收束剧情并避免新开头。",
			req.ChunkIndex+1, req.ChunkTotal, posLabel))
	}
	if req.TargetItemCount > 0 {
		systemParts = append(systemParts, fmt.Sprintf(
			"你必须仅输出一个JSON对象，键为'items'。items数组长度必须严格等于%d，不能多不能少。"+
				"每条必须包含'_id','timestamp','picture','narration','OST'。不得输出除JSON以外的任何文字。",
			req.TargetItemCount))
	}
	ratio := normalizeOriginalRatio(req.OriginalRatio)
	systemParts = append(systemParts, fmt.Sprintf(
		"原片占比范围：本次原片占比为%d%%，解说占比为%d%%。原声片段标识：OST=1表示原声，OST=0表示解说。",
		ratio, 100-ratio))
	if isEnglish(req.ScriptLanguage) {
		systemParts = append(systemParts, "你必须将所有 'narration' 文本严格用英文撰写；不得输出中文或其他语言。")
	} else if isChinese(req.ScriptLanguage) {
		systemParts = append(systemParts, "你必须将所有 'narration' 文本严格用中文撰写；不得输出英文或其他语言。")
	}

	for _, m := range rendered {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
		} else {
			nonSystem = append(nonSystem, providers.ChatMessage{Role: m.Role, Content: m.Content})
		}
	}

	messages := make([]providers.ChatMessage, 0, len(nonSystem)+1)
	if len(systemParts) > 0 {
		messages = append(messages, providers.ChatMessage{Role: "system", Content: strings.Join(systemParts, "\n")})
	}
	messages = append(messages, nonSystem...)
	return messages
}

func normalizeOriginalRatio(v int) int {
	if v < 10 {
		if v == 0 {
			return 70
		}
		return 10
	}
	if v > 90 {
		return 90
	}
	return v
}

// parseItemsResponse tolerantly extracts the {"items": [...]} payload from
// a raw LM response: strips code fences and leading/trailing noise around
// the outermost JSON object, then decodes it. Mirrors
// json_sanitizer.sanitize_json_text_to_dict + validate_script_items.
func parseItemsResponse(raw string) ([]planItemWire, error) {
	cleaned := stripCodeFences(raw)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return nil, errs.Newf("script: no JSON object found in model response").
			Component("script.builder").Category(errs.CategoryProvider).Build()
	}
	cleaned = cleaned[start : end+1]

	var payload struct {
		Items []planItemWire `json:"items"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, errs.New(err).Component("script.builder").Category(errs.CategoryProvider).Build()
	}
	return payload.Items, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// MergeItems sorts items by start time and merges adjacent items whose
// overlap exceeds 40% of the shorter item's duration plus 0.1s, keeping
// the one with the longer narration text; drops items shorter than 0.8s;
// renumbers _id from 1. Mirrors script_builder.py's _merge_items.
func MergeItems(items []model.PlanItem) []model.PlanItem {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]model.PlanItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := make([]model.PlanItem, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		cs, ce := current.Start.Seconds(), current.End.Seconds()
		ns, ne := next.Start.Seconds(), next.End.Seconds()
		overlapStart := maxFloat(cs, ns)
		overlapEnd := minFloat(ce, ne)
		overlapLen := maxFloat(0, overlapEnd-overlapStart)
		currLen := maxFloat(0, ce-cs)
		nextLen := maxFloat(0, ne-ns)

		if overlapLen > 0 && overlapLen > 0.4*minFloat(currLen, nextLen)+0.1 {
			if len(next.Narration) > len(current.Narration) {
				current = next
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	merged = append(merged, current)

	const minDuration = 0.8 * float64(time.Second)
	filtered := make([]model.PlanItem, 0, len(merged))
	for _, it := range merged {
		if float64(it.Duration()) < minDuration {
			continue
		}
		filtered = append(filtered, it)
	}

	for i := range filtered {
		filtered[i].ID = i + 1
	}
	return filtered
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// RefineRequest bundles the parameters for the global refine pass.
type RefineRequest struct {
	DramaName      string
	PlotAnalysis   string
	TargetCount    int
	OriginalRatio  int
	ScriptLanguage string
}

// RefineFullScript sends the full merged item set to the language model in
// a single call asking it to lightly smooth narration continuity and, if
// TargetCount is below the merged item count, select exactly TargetCount
// items by _id (never inventing new ones). Falls back to the original
// items on permanent failure after retries is the caller's choice; this
// function returns the error so the caller decides. Mirrors
// script_builder.py's _refine_full_script.
func RefineFullScript(ctx context.Context, model_ providers.ChatModel, items []model.PlanItem, req RefineRequest) ([]model.PlanItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	n := len(items)
	target := req.TargetCount
	if target <= 0 {
		target = n
	}
	if target < 1 {
		target = 1
	}

	var lastErr error
	for attempt := 0; attempt <= maxGenerationRetries; attempt++ {
		out, err := refineOnce(ctx, model_, items, req, target, n)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt < maxGenerationRetries {
			builderLogger.Warn("script refine pass failed, retrying", "attempt", attempt+1, "error", err)
		}
	}
	return nil, errs.New(lastErr).Component("script.builder").Category(errs.CategoryProvider).Build()
}

func refineOnce(ctx context.Context, model_ providers.ChatModel, items []model.PlanItem, req RefineRequest, target, n int) ([]model.PlanItem, error) {
	draft := make([]planItemWire, len(items))
	for i, it := range items {
		ost := 0
		if it.OST {
			ost = 1
		}
		draft[i] = planItemWire{
			ID: it.ID, Timestamp: FormatTimestampRange(it.Start, it.End),
			Picture: it.Picture, Narration: it.Narration, OST: ost,
		}
	}
	draftJSON, err := json.Marshal(struct {
		Items []planItemWire `json:"items"`
	}{draft})
	if err != nil {
		return nil, err
	}

	systemPrompt := buildRefineSystemPrompt(req, target, n)
	userContent := fmt.Sprintf("剧名：%s\n草稿：\n%s\n\n请按要求返回 JSON。", req.DramaName, string(draftJSON))

	resp, err := model_.ChatCompletion(ctx, providers.ChatRequest{
		Messages: []providers.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		JSONResponse: true,
	})
	if err != nil {
		return nil, err
	}

	refined, err := parseItemsResponse(resp.Content)
	if err != nil {
		return nil, err
	}
	return applyRefineSelection(items, refined, target, n)
}

func buildRefineSystemPrompt(req RefineRequest, target, n int) string {
	var retainDesc string
	if target < n {
		retainDesc = fmt.Sprintf(
			"必须仅保留 %d 条最关键条目，其余全部删除（必须遵守）。返回的 'items' 长度必须为 %d，"+
				"不得新增条目，仅在已有 '_id' 中选择，但一定要确保不能烂尾。", target, target)
	}
	ratio := normalizeOriginalRatio(req.OriginalRatio)
	sb := strings.Builder{}
	sb.WriteString("你是一位分块脚本合并助手。你的任务是将已按时间分块生成的解说脚本进行轻量合并与顺畅衔接。")
	sb.WriteString(retainDesc)
	sb.WriteString(fmt.Sprintf("原片占比范围：本次原片占比为%d%%，解说占比为%d%%。", ratio, 100-ratio))
	sb.WriteString("原声片段标识：OST=1表示原声，OST=0表示解说。")
	sb.WriteString("对于单一条目，仅对部分的 'narration' 进行小幅润色，让上下文自然连贯；不要改变原有信息与含义。")
	sb.WriteString("仅返回一个 JSON 对象，键为 'items'，每个元素包含 '_id','timestamp','picture','narration','OST'；不要输出除 JSON 以外的任何内容。")
	if isEnglish(req.ScriptLanguage) {
		sb.WriteString("你必须将所有 'narration' 文本严格用英文撰写；不得输出中文或其他语言。")
	} else if isChinese(req.ScriptLanguage) {
		sb.WriteString("你必须将所有 'narration' 文本严格用中文撰写；不得输出英文或其他语言。")
	}
	return sb.String()
}

func applyRefineSelection(original []model.PlanItem, refined []planItemWire, target, n int) ([]model.PlanItem, error) {
	byID := make(map[int]planItemWire, len(refined))
	var orderedIDs []int
	for _, it := range refined {
		byID[it.ID] = it
		orderedIDs = append(orderedIDs, it.ID)
	}

	apply := func(orig model.PlanItem) model.PlanItem {
		if w, ok := byID[orig.ID]; ok {
			orig.Narration = w.Narration
			orig.Picture = w.Picture
			orig.OST = w.OST == 1
		}
		return orig
	}

	if target >= n {
		out := make([]model.PlanItem, len(original))
		for i, it := range original {
			out[i] = apply(it)
		}
		return out, nil
	}

	existingIDs := make(map[int]bool, n)
	for _, it := range original {
		existingIDs[it.ID] = true
	}

	keep := make(map[int]bool, target)
	var keepOrder []int
	addKeep := func(id int) {
		if !keep[id] && existingIDs[id] {
			keep[id] = true
			keepOrder = append(keepOrder, id)
		}
	}
	for _, id := range orderedIDs {
		if len(keepOrder) >= target {
			break
		}
		addKeep(id)
	}
	if len(keepOrder) < target {
		ids := make([]int, 0, len(original))
		for _, it := range original {
			ids = append(ids, it.ID)
		}
		sort.Ints(ids)
		for _, id := range ids {
			if len(keepOrder) >= target {
				break
			}
			addKeep(id)
		}
	}

	out := make([]model.PlanItem, 0, target)
	for _, it := range original {
		if keep[it.ID] {
			out = append(out, apply(it))
		}
	}
	return out, nil
}

// RenumberItems re-assigns sequential _id values starting at 1, in
// current slice order.
func RenumberItems(items []model.PlanItem) {
	for i := range items {
		items[i].ID = i + 1
	}
}
