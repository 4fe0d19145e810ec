package settings

// Runtime setting keys. Static process configuration (ports, paths) lives in
// internal/config; everything here can be changed at runtime through the API
// and is persisted as a config_entries override.
const (
	KeyScanIntervalHours    = "scan_interval_hours"
	KeyFullScanEvery        = "full_scan_every"
	KeyScanAutoExtract      = "scan_auto_extract"
	KeyScanAutoTranslate    = "scan_auto_translate"
	KeyUpgradeWindowDays    = "upgrade_window_days"
	KeyUpgradeDeleteSRT     = "upgrade_delete_srt"
	KeyWantedMaxAttempts    = "wanted_max_attempts"
	KeyProviderCacheTTL     = "provider_cache_ttl_seconds"
	KeyProviderTimeout      = "provider_timeout_seconds"
	KeyFormatBonus          = "score_format_bonus"
	KeyMTPenaltyEnabled     = "mt_penalty_enabled"
	KeyMTPenalty            = "mt_penalty"
	KeyMTThreshold          = "mt_confidence_threshold"
	KeyBreakerThreshold     = "breaker_failure_threshold"
	KeyBreakerCooldown      = "breaker_cooldown_seconds"
	KeyTMEnabled            = "tm_enabled"
	KeyTMSimilarity         = "tm_similarity"
	KeyQualityEnabled       = "quality_eval_enabled"
	KeyQualityThreshold     = "quality_threshold"
	KeyQualityMaxRetries    = "quality_max_retries"
	KeyTranslateBatchSize   = "translate_batch_size"
	KeyWhisperEnabled       = "whisper_enabled"
	KeyWhisperScoreMin      = "whisper_score_threshold"
	KeyBackendChain         = "backend_chain"
	KeyHookLogRetentionDays = "hook_log_retention_days"

	// Provider and backend credentials. Usually supplied through the
	// SUBLARR_* environment, storable as overrides like any other key.
	KeyJimakuAPIKey        = "jimaku_api_key"
	KeyOpenSubtitlesAPIKey = "opensubtitles_api_key"
	KeyOpenAIAPIKey        = "openai_api_key"
	KeyOpenAIBaseURL       = "openai_base_url"
	KeyOpenAIModel         = "openai_model"
	KeyDeepLAPIKey         = "deepl_api_key"
	KeyWhisperBinary       = "whisper_binary"
)

// defaults maps every runtime key to its default value. A key absent from
// this map is still readable once a stored override exists.
var defaults = map[string]string{
	KeyScanIntervalHours:    "6",
	KeyFullScanEvery:        "6",
	KeyScanAutoExtract:      "false",
	KeyScanAutoTranslate:    "false",
	KeyUpgradeWindowDays:    "7",
	KeyUpgradeDeleteSRT:     "false",
	KeyWantedMaxAttempts:    "5",
	KeyProviderCacheTTL:     "3600",
	KeyProviderTimeout:      "15",
	KeyFormatBonus:          "50",
	KeyMTPenaltyEnabled:     "true",
	KeyMTPenalty:            "30",
	KeyMTThreshold:          "70",
	KeyBreakerThreshold:     "3",
	KeyBreakerCooldown:      "300",
	KeyTMEnabled:            "true",
	KeyTMSimilarity:         "0.9",
	KeyQualityEnabled:       "true",
	KeyQualityThreshold:     "50",
	KeyQualityMaxRetries:    "2",
	KeyTranslateBatchSize:   "50",
	KeyWhisperEnabled:       "false",
	KeyWhisperScoreMin:      "60",
	KeyBackendChain:         "",
	KeyHookLogRetentionDays: "30",
	KeyJimakuAPIKey:         "",
	KeyOpenSubtitlesAPIKey:  "",
	KeyOpenAIAPIKey:         "",
	KeyOpenAIBaseURL:        "",
	KeyOpenAIModel:          "",
	KeyDeepLAPIKey:          "",
	KeyWhisperBinary:        "",
}

// sensitiveMarkers flag keys whose values are masked in outbound payloads.
var sensitiveMarkers = []string{"api_key", "apikey", "token", "secret", "password"}
