package history

// Event types recorded by the acquisition pipeline and manual actions.
const (
	EventDownloaded  = "subtitle_downloaded"
	EventUpgraded    = "subtitle_upgraded"
	EventExtracted   = "subtitle_extracted"
	EventTranslated  = "translation_complete"
	EventTranscribed = "transcription_complete"
	EventFailed      = "acquisition_failed"
	EventDeleted     = "subtitle_deleted"
	EventBlacklisted = "subtitle_blacklisted"
)

// Entry is one recorded acquisition event.
type Entry struct {
	ID           int64          `json:"id"`
	EventType    string         `json:"eventType"`
	MediaType    string         `json:"mediaType"`
	MediaID      int64          `json:"mediaId"`
	FilePath     string         `json:"filePath,omitempty"`
	Language     string         `json:"language,omitempty"`
	SubtitleType string         `json:"subtitleType"`
	Provider     string         `json:"provider,omitempty"`
	Backend      string         `json:"backend,omitempty"`
	Score        *int           `json:"score,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    string         `json:"createdAt"`
}

// ListOptions filters and paginates the history listing.
type ListOptions struct {
	EventType string
	MediaType string
	MediaID   int64
	Language  string
	Page      int
	PageSize  int
}

// ListResponse is one page of history entries.
type ListResponse struct {
	Items      []*Entry `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalCount int64    `json:"totalCount"`
	TotalPages int      `json:"totalPages"`
}
