package draft

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// videoMeta is the subset of a probed source video's properties the draft
// JSON needs: resolution, frame rate, and duration.
type videoMeta struct {
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration
}

// timeRange is a [Start, Start+Duration) window in microseconds, used for
// both target_timerange (timeline position) and source_timerange (source
// video offset).
type timeRange struct {
	Start    int64 `json:"start"`
	Duration int64 `json:"duration"`
}

type crop struct {
	UpperLeftX  float64 `json:"upper_left_x"`
	UpperLeftY  float64 `json:"upper_left_y"`
	UpperRightX float64 `json:"upper_right_x"`
	UpperRightY float64 `json:"upper_right_y"`
	LowerLeftX  float64 `json:"lower_left_x"`
	LowerLeftY  float64 `json:"lower_left_y"`
	LowerRightX float64 `json:"lower_right_x"`
	LowerRightY float64 `json:"lower_right_y"`
}

func defaultCrop() crop {
	return crop{UpperRightX: 1, LowerLeftY: 1, LowerRightX: 1, LowerRightY: 1}
}

type videoMaterial struct {
	AudioFade     any     `json:"audio_fade"`
	CategoryID    string  `json:"category_id"`
	CategoryName  string  `json:"category_name"`
	CheckFlag     int     `json:"check_flag"`
	Crop          crop    `json:"crop"`
	CropRatio     string  `json:"crop_ratio"`
	CropScale     float64 `json:"crop_scale"`
	Duration      int64   `json:"duration"`
	Height        int     `json:"height"`
	ID            string  `json:"id"`
	MaterialID    string  `json:"material_id"`
	MaterialName  string  `json:"material_name"`
	Path          string  `json:"path"`
	RemoteURL     string  `json:"remote_url"`
	Type          string  `json:"type"`
	Width         int     `json:"width"`
}

type audioMaterial struct {
	AudioFade    any    `json:"audio_fade"`
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	CheckFlag    int    `json:"check_flag"`
	Duration     int64  `json:"duration"`
	ID           string `json:"id"`
	MaterialID   string `json:"material_id"`
	MaterialName string `json:"material_name"`
	Path         string `json:"path"`
	RemoteURL    string `json:"remote_url"`
	Type         string `json:"type"`
}

type speedMaterial struct {
	CurveSpeed any     `json:"curve_speed"`
	ID         string  `json:"id"`
	Mode       int     `json:"mode"`
	Speed      float64 `json:"speed"`
	Type       string  `json:"type"`
}

type clipTransform struct {
	Alpha    float64        `json:"alpha"`
	Flip     map[string]any `json:"flip"`
	Rotation float64        `json:"rotation"`
	Scale    map[string]any `json:"scale"`
	Offset   map[string]any `json:"transform"`
}

func defaultClipTransform() clipTransform {
	return clipTransform{
		Alpha:    1,
		Flip:     map[string]any{"horizontal": false, "vertical": false},
		Scale:    map[string]any{"x": 1, "y": 1},
		Offset:   map[string]any{"x": 0, "y": 0},
	}
}

// trackSegment is one clip placement on a track, named to avoid colliding
// with model.Segment.
type trackSegment struct {
	EnableAdjust    bool          `json:"enable_adjust"`
	Visible         bool          `json:"visible"`
	ID              string        `json:"id"`
	MaterialID      string        `json:"material_id"`
	TargetTimerange timeRange     `json:"target_timerange"`
	SourceTimerange timeRange     `json:"source_timerange"`
	Speed           float64       `json:"speed"`
	Volume          float64       `json:"volume"`
	ExtraMaterials  []string      `json:"extra_material_refs,omitempty"`
	Clip            clipTransform `json:"clip,omitempty"`
	RenderIndex     int           `json:"render_index"`
}

type track struct {
	Attribute int            `json:"attribute"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Segments  []trackSegment `json:"segments"`
	Type      string         `json:"type"`
}

type materials struct {
	Videos            []videoMaterial `json:"videos"`
	Speeds            []speedMaterial `json:"speeds"`
	Audios            []audioMaterial `json:"audios"`
	AudioTrackIndexes []int           `json:"audio_track_indexes"`

	// The editor format defines dozens more material categories this
	// pipeline never populates (effects, stickers, transitions, and so
	// on); kept present-but-empty since downstream editors expect every
	// key to exist.
	AITranslates         []any `json:"ai_translates"`
	AudioBalances        []any `json:"audio_balances"`
	AudioEffects         []any `json:"audio_effects"`
	AudioFades           []any `json:"audio_fades"`
	Beats                []any `json:"beats"`
	Canvases             []any `json:"canvases"`
	Chromas              []any `json:"chromas"`
	ColorCurves          []any `json:"color_curves"`
	DigitalHumans        []any `json:"digital_humans"`
	Drafts               []any `json:"drafts"`
	Effects              []any `json:"effects"`
	Flowers              []any `json:"flowers"`
	GreenScreens         []any `json:"green_screens"`
	Handwrites           []any `json:"handwrites"`
	HSL                  []any `json:"hsl"`
	Images               []any `json:"images"`
	LogColorWheels       []any `json:"log_color_wheels"`
	Loudnesses           []any `json:"loudnesses"`
	ManualDeformations   []any `json:"manual_deformations"`
	MaterialAnimations   []any `json:"material_animations"`
	MaterialColors       []any `json:"material_colors"`
	MultiLanguageRefs    []any `json:"multi_language_refs"`
	Placeholders         []any `json:"placeholders"`
	PluginEffects        []any `json:"plugin_effects"`
	PrimaryColorWheels   []any `json:"primary_color_wheels"`
	RealtimeDenoises     []any `json:"realtime_denoises"`
	Shapes               []any `json:"shapes"`
	SmartCrops           []any `json:"smart_crops"`
	SmartRelights        []any `json:"smart_relights"`
	SoundChannelMappings []any `json:"sound_channel_mappings"`
	Stickers             []any `json:"stickers"`
	TailLeaders          []any `json:"tail_leaders"`
	TextTemplates        []any `json:"text_templates"`
	Texts                []any `json:"texts"`
	TimeMarks            []any `json:"time_marks"`
	Transitions          []any `json:"transitions"`
	VideoEffects         []any `json:"video_effects"`
	VideoTrackings       []any `json:"video_trackings"`
	VocalBeautifys       []any `json:"vocal_beautifys"`
	VocalSeparations     []any `json:"vocal_separations"`
	Masks                []any `json:"masks"`
}

func newEmptyMaterials() materials {
	empty := func() []any { return []any{} }
	return materials{
		Videos:               []videoMaterial{},
		Speeds:               []speedMaterial{},
		Audios:               []audioMaterial{},
		AudioTrackIndexes:    []int{},
		AITranslates:         empty(),
		AudioBalances:        empty(),
		AudioEffects:         empty(),
		AudioFades:           empty(),
		Beats:                empty(),
		Canvases:             empty(),
		Chromas:              empty(),
		ColorCurves:          empty(),
		DigitalHumans:        empty(),
		Drafts:               empty(),
		Effects:              empty(),
		Flowers:              empty(),
		GreenScreens:         empty(),
		Handwrites:           empty(),
		HSL:                  empty(),
		Images:               empty(),
		LogColorWheels:       empty(),
		Loudnesses:           empty(),
		ManualDeformations:   empty(),
		MaterialAnimations:   empty(),
		MaterialColors:       empty(),
		MultiLanguageRefs:    empty(),
		Placeholders:         empty(),
		PluginEffects:        empty(),
		PrimaryColorWheels:   empty(),
		RealtimeDenoises:     empty(),
		Shapes:               empty(),
		SmartCrops:           empty(),
		SmartRelights:        empty(),
		SoundChannelMappings: empty(),
		Stickers:             empty(),
		TailLeaders:          empty(),
		TextTemplates:        empty(),
		Texts:                empty(),
		TimeMarks:            empty(),
		Transitions:          empty(),
		VideoEffects:         empty(),
		VideoTrackings:       empty(),
		VocalBeautifys:       empty(),
		VocalSeparations:     empty(),
		Masks:                empty(),
	}
}

type canvasConfig struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Ratio  string `json:"ratio"`
}

type platformInfo struct {
	AppID      int    `json:"app_id"`
	AppSource  string `json:"app_source"`
	AppVersion string `json:"app_version"`
	DeviceID   string `json:"device_id"`
	HardDiskID string `json:"hard_disk_id"`
	MacAddress string `json:"mac_address"`
	OS         string `json:"os"`
	OSVersion  string `json:"os_version"`
}

func defaultPlatform() platformInfo {
	return platformInfo{
		AppID:      359289,
		AppSource:  "cc",
		AppVersion: "6.5.0",
		DeviceID:   "c4ca4238a0b923820dcc509a6f75849b",
		HardDiskID: "307563e0192a94465c0e927fbc482942",
		MacAddress: "c3371f2d4fb02791c067ce44d8fb4ed5",
		OS:         "windows",
		OSVersion:  "10",
	}
}

// draftInfo is draft_info.json's top-level shape. Grounded on
// jianying_draft_manager.py's _build_draft_info draft dict, trimmed to the
// fields this pipeline actually populates plus the always-present
// scaffolding keys editors require.
type draftInfo struct {
	CanvasConfig         canvasConfig     `json:"canvas_config"`
	ColorSpace           int              `json:"color_space"`
	Cover                map[string]any   `json:"cover"`
	CreateTime           int64            `json:"create_time"`
	Duration             int64            `json:"duration"`
	FPS                  int              `json:"fps"`
	FreeRenderIndexMode  bool             `json:"free_render_index_mode_on"`
	ID                   string           `json:"id"`
	Keyframes            map[string][]any `json:"keyframes"`
	LastModifiedPlatform platformInfo     `json:"last_modified_platform"`
	Materials            materials        `json:"materials"`
	Name                 string           `json:"name"`
	NewVersion           string           `json:"new_version"`
	Platform             platformInfo     `json:"platform"`
	RenderIndexTrackMode bool             `json:"render_index_track_mode_on"`
	Source               string           `json:"source"`
	Tracks               []track          `json:"tracks"`
	UpdateTime           int64            `json:"update_time"`
	Version              int              `json:"version"`
}

func newVideoMaterial(path string, meta videoMeta) videoMaterial {
	id := uuid.New().String()
	return videoMaterial{
		CategoryName: "local",
		CheckFlag:    63487,
		Crop:         defaultCrop(),
		CropRatio:    "free",
		CropScale:    1,
		Duration:     usOf(meta.Duration),
		Height:       meta.Height,
		ID:           id,
		MaterialID:   id,
		MaterialName: filepath.Base(path),
		Path:         path,
		Type:         "video",
		Width:        meta.Width,
	}
}

func newAudioMaterial(path string, duration int64) audioMaterial {
	id := uuid.New().String()
	return audioMaterial{
		CategoryName: "local",
		CheckFlag:    63487,
		Duration:     duration,
		ID:           id,
		MaterialID:   id,
		MaterialName: filepath.Base(path),
		Path:         path,
		Type:         "audio",
	}
}

// writeDraftInfo builds draft_info.json from the resolved timeline items
// and writes it into draftDir, backing up any existing file first
// (matching the original's *.json.bak convention).
func writeDraftInfo(draftDir, sourceVideo string, meta videoMeta, items []TimelineItem) error {
	vid := newVideoMaterial(sourceVideo, meta)
	speed := speedMaterial{ID: uuid.New().String(), Mode: 0, Speed: 1, Type: "speed"}

	mats := newEmptyMaterials()
	mats.Videos = append(mats.Videos, vid)
	mats.Speeds = append(mats.Speeds, speed)

	videoSegs := make([]trackSegment, 0, len(items))
	audioSegs := make([]trackSegment, 0, len(items))
	var cursor int64
	for _, item := range items {
		if item.DurationUS <= 0 {
			continue
		}
		videoSegs = append(videoSegs, trackSegment{
			EnableAdjust:    true,
			Visible:         true,
			ID:              uuid.New().String(),
			MaterialID:      vid.ID,
			TargetTimerange: timeRange{Start: cursor, Duration: item.DurationUS},
			SourceTimerange: timeRange{Start: item.SourceStartUS, Duration: item.DurationUS},
			Speed:           1,
			Volume:          boolToVolume(!item.Mute),
			ExtraMaterials:  []string{speed.ID},
			Clip:            defaultClipTransform(),
		})

		if item.NarrationPath != "" && item.NarrationDurationUS > 0 {
			aud := newAudioMaterial(item.NarrationPath, item.NarrationDurationUS)
			mats.Audios = append(mats.Audios, aud)
			audioSegs = append(audioSegs, trackSegment{
				EnableAdjust:    true,
				Visible:         true,
				ID:              uuid.New().String(),
				MaterialID:      aud.ID,
				TargetTimerange: timeRange{Start: cursor, Duration: item.NarrationDurationUS},
				SourceTimerange: timeRange{Start: 0, Duration: item.NarrationDurationUS},
				Speed:           1,
				Volume:          1,
			})
		}
		cursor += item.DurationUS
	}
	mats.AudioTrackIndexes = []int{2}

	nowUS := time.Now().UnixMicro()
	fps := int(meta.FPS + 0.5)
	if fps <= 0 {
		fps = 30
	}

	info := draftInfo{
		CanvasConfig:         canvasConfig{Width: meta.Width, Height: meta.Height, Ratio: "original"},
		Cover:                map[string]any{"cover_draft_id": "", "cover_template": "", "sub_type": "local", "type": "image", "web_cover_info": ""},
		CreateTime:           nowUS,
		Duration:             cursor,
		FPS:                  fps,
		ID:                   strings.ToUpper(uuid.New().String()),
		Keyframes:            newEmptyKeyframes(),
		LastModifiedPlatform: defaultPlatform(),
		Materials:            mats,
		Name:                 strings.TrimSuffix(filepath.Base(sourceVideo), filepath.Ext(sourceVideo)),
		NewVersion:           "110.0.0",
		Platform:             defaultPlatform(),
		RenderIndexTrackMode: false,
		Source:               "default",
		Tracks: []track{
			{ID: uuid.New().String(), Name: "main", Segments: []trackSegment{}, Type: "video"},
			{ID: uuid.New().String(), Name: "video_main", Segments: videoSegs, Type: "video"},
			{ID: uuid.New().String(), Name: "audio_main", Segments: audioSegs, Type: "audio"},
		},
		UpdateTime: nowUS,
		Version:    360000,
	}

	return writeJSONWithBackup(filepath.Join(draftDir, "draft_info.json"), info, true)
}

func newEmptyKeyframes() map[string][]any {
	kf := make(map[string][]any)
	for _, k := range []string{"adjusts", "audios", "effects", "filters", "handwrites", "stickers", "texts", "videos"} {
		kf[k] = []any{}
	}
	return kf
}

func boolToVolume(audible bool) float64 {
	if audible {
		return 1
	}
	return 0
}

func writeJSONWithBackup(path string, v any, indent bool) error {
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return err
		}
	}
	var out []byte
	var err error
	if indent {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
