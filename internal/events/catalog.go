package events

// Signal describes a named event in the catalog. The version is carried in
// webhook payloads so receivers can detect payload shape changes.
type Signal struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	PayloadKeys []string `json:"payload_keys"`
	Version     int      `json:"version"`
	Progress    bool     `json:"progress"`
}

// Business events, dispatched to hooks and webhooks.
const (
	EventSubtitleDownloaded    = "subtitle_downloaded"
	EventSubtitleUpgraded      = "subtitle_upgraded"
	EventTranslationComplete   = "translation_complete"
	EventTranslationFailed     = "translation_failed"
	EventWantedItemAdded       = "wanted_item_added"
	EventWantedItemProcessed   = "wanted_item_processed"
	EventWantedScanComplete    = "wanted_scan_complete"
	EventTranscriptionComplete = "transcription_complete"
	EventProviderAutoDisabled  = "provider_auto_disabled"
	EventWebhookAutoDisabled   = "webhook_auto_disabled"
	EventHookAutoDisabled      = "hook_auto_disabled"
	EventHookExecuted          = "hook_executed"
	EventConfigUpdated         = "config_updated"
)

// Progress streams, broadcast to the WebSocket only. They fire at high
// frequency and never reach hooks or webhooks.
const (
	EventJobUpdate             = "job_update"
	EventBatchProgress         = "batch_progress"
	EventWantedBatchProgress   = "wanted_batch_progress"
	EventWantedScanProgress    = "wanted_scan_progress"
	EventScanProgress          = "scan_progress"
	EventWhisperProgress       = "whisper_progress"
	EventRetranslationProgress = "retranslation_progress"
)

var catalog = map[string]Signal{
	EventSubtitleDownloaded: {
		Name:        EventSubtitleDownloaded,
		Label:       "Subtitle Downloaded",
		Description: "A subtitle was downloaded from a provider and written next to the video",
		PayloadKeys: []string{"file_path", "subtitle_path", "language", "subtitle_type", "provider", "score"},
		Version:     1,
	},
	EventSubtitleUpgraded: {
		Name:        EventSubtitleUpgraded,
		Label:       "Subtitle Upgraded",
		Description: "An existing SRT subtitle was replaced by an ASS one",
		PayloadKeys: []string{"file_path", "subtitle_path", "language", "previous_format", "provider"},
		Version:     1,
	},
	EventTranslationComplete: {
		Name:        EventTranslationComplete,
		Label:       "Translation Complete",
		Description: "A subtitle was translated into a target language",
		PayloadKeys: []string{"file_path", "subtitle_path", "source_language", "target_language", "backend", "avg_quality"},
		Version:     1,
	},
	EventTranslationFailed: {
		Name:        EventTranslationFailed,
		Label:       "Translation Failed",
		Description: "All translation backends failed for a subtitle",
		PayloadKeys: []string{"file_path", "source_language", "target_language", "errors"},
		Version:     1,
	},
	EventWantedItemAdded: {
		Name:        EventWantedItemAdded,
		Label:       "Wanted Item Added",
		Description: "The scanner queued a missing subtitle",
		PayloadKeys: []string{"file_path", "target_language", "subtitle_type"},
		Version:     1,
	},
	EventWantedItemProcessed: {
		Name:        EventWantedItemProcessed,
		Label:       "Wanted Item Processed",
		Description: "The pipeline finished a wanted item",
		PayloadKeys: []string{"file_path", "target_language", "subtitle_type", "status", "case", "error"},
		Version:     1,
	},
	EventWantedScanComplete: {
		Name:        EventWantedScanComplete,
		Label:       "Wanted Scan Complete",
		Description: "A library scan finished",
		PayloadKeys: []string{"mode", "files_scanned", "items_added", "items_removed", "duration_seconds"},
		Version:     1,
	},
	EventTranscriptionComplete: {
		Name:        EventTranscriptionComplete,
		Label:       "Transcription Complete",
		Description: "A Whisper transcription finished and produced a source subtitle",
		PayloadKeys: []string{"file_path", "subtitle_path", "language", "duration_seconds"},
		Version:     1,
	},
	EventProviderAutoDisabled: {
		Name:        EventProviderAutoDisabled,
		Label:       "Provider Auto-Disabled",
		Description: "A provider circuit breaker opened after repeated failures",
		PayloadKeys: []string{"provider", "failures", "cooldown_seconds"},
		Version:     1,
	},
	EventWebhookAutoDisabled: {
		Name:        EventWebhookAutoDisabled,
		Label:       "Webhook Auto-Disabled",
		Description: "An outbound webhook was disabled after consecutive delivery failures",
		PayloadKeys: []string{"webhook_id", "url", "failures"},
		Version:     1,
	},
	EventHookAutoDisabled: {
		Name:        EventHookAutoDisabled,
		Label:       "Hook Auto-Disabled",
		Description: "A shell hook was disabled after consecutive failed executions",
		PayloadKeys: []string{"hook_id", "event_name", "failures"},
		Version:     1,
	},
	EventHookExecuted: {
		Name:        EventHookExecuted,
		Label:       "Hook Executed",
		Description: "A shell hook ran; never re-dispatched to hooks or webhooks",
		PayloadKeys: []string{"hook_id", "event_name", "exit_code", "duration_ms"},
		Version:     1,
	},
	EventConfigUpdated: {
		Name:        EventConfigUpdated,
		Label:       "Config Updated",
		Description: "A configuration entry changed",
		PayloadKeys: []string{"key"},
		Version:     1,
	},

	EventJobUpdate:             {Name: EventJobUpdate, Label: "Job Update", PayloadKeys: []string{"job_id", "phase", "progress", "message"}, Version: 1, Progress: true},
	EventBatchProgress:         {Name: EventBatchProgress, Label: "Batch Progress", PayloadKeys: []string{"job_id", "completed", "total", "current"}, Version: 1, Progress: true},
	EventWantedBatchProgress:   {Name: EventWantedBatchProgress, Label: "Wanted Batch Progress", PayloadKeys: []string{"job_id", "completed", "total"}, Version: 1, Progress: true},
	EventWantedScanProgress:    {Name: EventWantedScanProgress, Label: "Wanted Scan Progress", PayloadKeys: []string{"job_id", "scanned", "total", "current_path"}, Version: 1, Progress: true},
	EventScanProgress:          {Name: EventScanProgress, Label: "Scan Progress", PayloadKeys: []string{"job_id", "scanned", "total"}, Version: 1, Progress: true},
	EventWhisperProgress:       {Name: EventWhisperProgress, Label: "Whisper Progress", PayloadKeys: []string{"job_id", "phase", "progress"}, Version: 1, Progress: true},
	EventRetranslationProgress: {Name: EventRetranslationProgress, Label: "Retranslation Progress", PayloadKeys: []string{"job_id", "completed", "total"}, Version: 1, Progress: true},
}

// Catalog returns all defined signals.
func Catalog() []Signal {
	signals := make([]Signal, 0, len(catalog))
	for _, s := range catalog {
		signals = append(signals, s)
	}
	return signals
}

// Lookup returns the signal definition for a name.
func Lookup(name string) (Signal, bool) {
	s, ok := catalog[name]
	return s, ok
}

// IsProgress reports whether the event is a high-frequency progress stream.
func IsProgress(name string) bool {
	s, ok := catalog[name]
	return ok && s.Progress
}
