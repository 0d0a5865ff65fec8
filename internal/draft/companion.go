package draft

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// writeCompanionFiles writes every fixed-shape file editors expect
// alongside draft_info.json. Grounded on jianying_draft_manager.py and
// demo_draft_manager.py, which both write the same set (meta info, agency
// config, biz config, attachment stubs, performance opt info) after the
// main draft_info.json write.
func writeCompanionFiles(draftDir string, meta videoMeta) error {
	nowUS := time.Now().UnixMicro()

	metaInfo := map[string]any{
		"cloud_draft_cover":                       true,
		"cloud_draft_sync":                        true,
		"cloud_package_completed_time":             "",
		"draft_cloud_capcut_purchase_info":         "",
		"draft_cloud_last_action_download":         false,
		"draft_cloud_package_type":                 "",
		"draft_cloud_purchase_info":                "",
		"draft_cloud_template_id":                  "",
		"draft_cloud_tutorial_info":                "",
		"draft_cloud_videocut_purchase_info":       "",
		"draft_cover":                              "draft_cover.jpg",
		"draft_deeplink_url":                       "",
		"draft_enterprise_info": map[string]any{
			"draft_enterprise_extra":   "",
			"draft_enterprise_id":      "",
			"draft_enterprise_name":    "",
			"enterprise_material":      []any{},
		},
		"draft_fold_path":                draftDir,
		"draft_id":                       strings.ToUpper(uuid.New().String()),
		"draft_is_ae_produce":            false,
		"draft_is_ai_packaging_used":     false,
		"draft_is_ai_shorts":             false,
		"draft_is_ai_translate":          false,
		"draft_is_article_video_draft":   false,
		"draft_is_cloud_temp_draft":      false,
		"draft_is_from_deeplink":         "false",
		"draft_is_invisible":             false,
		"draft_materials":                draftMaterialsStubs(),
		"draft_materials_copied_info":    []any{},
		"draft_name":                     filepath.Base(draftDir),
		"draft_need_rename_folder":       false,
		"draft_new_version":              "",
		"draft_removable_storage_device": "",
		"draft_root_path":                filepath.Dir(draftDir),
		"draft_segment_extra_info":       []any{},
		"draft_timeline_materials_size_": 0,
		"draft_type":                     "",
		"tm_draft_cloud_completed":       "",
		"tm_draft_cloud_entry_id":        -1,
		"tm_draft_cloud_modified":        0,
		"tm_draft_cloud_parent_entry_id": -1,
		"tm_draft_cloud_space_id":        -1,
		"tm_draft_cloud_user_id":         -1,
		"tm_draft_create":                nowUS,
		"tm_draft_modified":              nowUS,
		"tm_draft_removed":               0,
		"tm_duration":                    0,
	}
	if err := writeJSONWithBackup(filepath.Join(draftDir, "draft_meta_info.json"), metaInfo, true); err != nil {
		return err
	}

	agency := map[string]any{
		"is_auto_agency_enabled": false,
		"is_auto_agency_popup":   false,
		"is_single_agency_mode":  false,
		"marterials":             nil,
		"use_converter":          false,
		"video_resolution":       meta.Height,
	}
	if err := writeJSONWithBackup(filepath.Join(draftDir, "draft_agency_config.json"), agency, false); err != nil {
		return err
	}

	aiReport := map[string]any{
		"caption_id_list":     []any{},
		"commercial_material": "",
		"material_source":     "",
		"method":              "",
		"page_from":           "",
		"style":               "",
		"task_id":             "",
		"text_style":          "",
		"tos_id":              "",
		"video_category":      "",
	}
	biz := map[string]any{
		"ai_packaging_infos":          []any{},
		"ai_packaging_report_info":    aiReport,
		"broll":                       map[string]any{"ai_packaging_infos": []any{}, "ai_packaging_report_info": aiReport},
		"commercial_music_category_ids": []any{},
		"pc_feature_flag":             0,
		"recognize_tasks":             []any{},
		"reference_lines_config":      map[string]any{"horizontal_lines": []any{}, "is_lock": false, "is_visible": false, "vertical_lines": []any{}},
		"safe_area_type":              0,
		"template_item_infos":         []any{},
		"unlock_template_ids":         []any{},
	}
	if err := writeJSONWithBackup(filepath.Join(draftDir, "draft_biz_config.json"), biz, false); err != nil {
		return err
	}

	// draft_virtual_store.json names no counterpart in the retrieval pack
	// (unlike every other companion file here); it is modeled the same way
	// as attachment_pc_common.json below — a present-but-empty stub, since
	// editors only check for the file's existence.
	if err := writeJSONWithBackup(filepath.Join(draftDir, "draft_virtual_store.json"), map[string]any{}, false); err != nil {
		return err
	}

	if err := writeJSONWithBackup(filepath.Join(draftDir, "performance_opt_info.json"),
		map[string]any{"manual_cancle_precombine_segs": nil}, false); err != nil {
		return err
	}

	if err := writeJSONWithBackup(filepath.Join(draftDir, "attachment_pc_common.json"), map[string]any{}, false); err != nil {
		return err
	}

	attachEdit := map[string]any{
		"editing_draft": map[string]any{
			"ai_remove_filter_words":                     map[string]any{"enter_source": "", "right_id": ""},
			"ai_shorts_info":                              map[string]any{"report_params": "", "type": 0},
			"digital_human_template_to_video_info":        map[string]any{"has_upload_material": false, "template_type": 0},
			"draft_used_recommend_function":                "",
			"edit_type":                                    0,
			"eye_correct_enabled_multi_face_time":          0,
			"has_adjusted_render_layer":                    false,
			"is_open_expand_player":                        true,
			"is_use_adjust":                                false,
			"is_use_edit_multi_camera":                     false,
			"is_use_lock_object":                            false,
			"is_use_loudness_unify":                        false,
			"is_use_retouch_face":                          false,
			"is_use_smart_adjust_color":                    false,
			"is_use_smart_motion":                          false,
			"is_use_text_to_audio":                         true,
			"material_edit_session":                        map[string]any{"material_edit_info": []any{}, "session_id": "", "session_time": 0},
			"profile_entrance_type":                         "",
			"publish_enter_from":                            "",
			"publish_type":                                  "",
			"single_function_type":                          0,
			"text_convert_case_types":                       []any{},
			"version":                                       "1.0.0",
			"video_recording_create_draft":                  "",
		},
	}
	if err := writeJSONWithBackup(filepath.Join(draftDir, "attachment_editing.json"), attachEdit, false); err != nil {
		return err
	}

	commonDir := filepath.Join(draftDir, "common_attachment")
	if err := os.MkdirAll(commonDir, 0o755); err != nil {
		return err
	}
	aigc := map[string]any{"aigc_aigc_generate": map[string]any{"aigc_generate_segment_list": []any{}, "version": "1.0.0"}}
	if err := writeJSONWithBackup(filepath.Join(commonDir, "aigc_aigc_generate.json"), aigc, false); err != nil {
		return err
	}
	scriptVideo := map[string]any{
		"script_video": map[string]any{
			"attachment_valid":    false,
			"language":            "",
			"overdub_recover":     []any{},
			"overdub_sentence_ids": []any{},
			"parts":               []any{},
			"sync_subtitle":       false,
			"translate_segments":  []any{},
			"translate_type":      "",
			"version":             "1.0.0",
		},
	}
	return writeJSONWithBackup(filepath.Join(commonDir, "attachment_script_video.json"), scriptVideo, false)
}

func draftMaterialsStubs() []map[string]any {
	types := []int{0, 1, 2, 3, 6, 7, 8}
	stubs := make([]map[string]any, len(types))
	for i, t := range types {
		stubs[i] = map[string]any{"type": t, "value": []any{}}
	}
	return stubs
}
