package eventapi

// Event represents an event record
type Event struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AccessCode string `json:"access_code,omitempty"`
	IsActive   bool   `json:"is_active"`
	ImageCount int    `json:"image_count"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// EventLookup is the response of an access-code lookup
type EventLookup struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
}

// EventVerification is the response of verifying an access code for a known event
type EventVerification struct {
	Verified bool  `json:"verified"`
	Event    Event `json:"event"`
}

// CreateEventRequest holds the fields accepted when creating an event.
// An empty AccessCode lets the server generate one.
type CreateEventRequest struct {
	Name       string `json:"name"`
	AccessCode string `json:"access_code,omitempty"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// EventStats represents aggregate counts for an event
type EventStats struct {
	EventID          string `json:"event_id"`
	EventName        string `json:"event_name"`
	ImageCount       int    `json:"image_count"`
	FaceCount        int    `json:"face_count"`
	ProcessedCount   int    `json:"processed_count"`
	StorageUsedBytes int64  `json:"storage_used_bytes"`
}

// Image represents an uploaded event image
type Image struct {
	ID               string `json:"id"`
	EventID          string `json:"event_id"`
	OriginalFilename string `json:"original_filename"`
	URL              string `json:"url,omitempty"`
	ThumbnailURL     string `json:"thumbnail_url,omitempty"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	FileSize         int64  `json:"file_size"`
	FaceCount        int    `json:"face_count"`
	IsProcessed      bool   `json:"is_processed"`
	IsDuplicate      bool   `json:"is_duplicate,omitempty"`
	SceneType        string `json:"scene_type,omitempty"`
	TakenAt          string `json:"taken_at,omitempty"`
	UploadedAt       string `json:"uploaded_at,omitempty"`
}

// ImagePage is one page of an event's images
type ImagePage struct {
	Images  []Image `json:"images"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	Pages   int     `json:"pages"`
	HasNext bool    `json:"has_next"`
}

// UploadResult is the server's answer for one accepted upload request
type UploadResult struct {
	JobID             string `json:"job_id"`
	ImagesAccepted    int    `json:"images_accepted"`
	ImagesRejected    int    `json:"images_rejected"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
}

// JobStatus represents the status of a server-side processing job.
type JobStatus string

// JobStatus constants define the lifecycle states of a processing job.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal returns true once no further transitions can happen.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents an event-scoped processing job
type Job struct {
	ID              string    `json:"id"`
	EventID         string    `json:"event_id"`
	Status          JobStatus `json:"status"`
	TotalImages     int       `json:"total_images"`
	ProcessedImages int       `json:"processed_images"`
	FailedImages    int       `json:"failed_images"`
	TotalFacesFound int       `json:"total_faces_found"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       string    `json:"created_at,omitempty"`
	CompletedAt     string    `json:"completed_at,omitempty"`
}

// MatchDetails explains how a search result was scored
type MatchDetails struct {
	VectorSimilarity float64  `json:"vector_similarity"`
	BM25Score        float64  `json:"bm25_score"`
	QualityBoost     float64  `json:"quality_boost"`
	FeedbackPenalty  float64  `json:"feedback_penalty"`
	FaceQuality      *float64 `json:"face_quality,omitempty"`
	IsFrontal        *bool    `json:"is_frontal,omitempty"`
	Prominence       *float64 `json:"prominence,omitempty"`
	SceneType        string   `json:"scene_type,omitempty"`
}

// SearchResult is one matched image. Face searches fill Similarity, smart
// searches fill RelevanceScore and, when a selfie was sent, Similarity too.
type SearchResult struct {
	Image          Image         `json:"image"`
	Similarity     float64       `json:"similarity"`
	RelevanceScore *float64      `json:"relevance_score,omitempty"`
	MatchDetails   *MatchDetails `json:"match_details,omitempty"`
}

// FeedbackStats counts "not me" feedback recorded by the server
type FeedbackStats struct {
	PersonalFeedbackCount int `json:"personal_feedback_count"`
	TotalFeedbackCount    int `json:"total_feedback_count"`
}

// SearchRequest holds the multipart fields of a face search.
// A zero Threshold lets the server apply its default.
type SearchRequest struct {
	EventID          string
	Selfie           []byte
	SelfieName       string
	Threshold        float64
	ExcludedImageIDs []string
}

// SearchResponse is the result of a face search
type SearchResponse struct {
	Results         []SearchResult `json:"results"`
	Count           int            `json:"count"`
	Threshold       float64        `json:"threshold"`
	SelfieHash      string         `json:"selfie_hash"`
	FeedbackApplied bool           `json:"feedback_applied"`
	FeedbackStats   FeedbackStats  `json:"feedback_stats"`
}

// SmartSearchRequest holds the fields of a hybrid text+face search.
// Query and Selfie are both optional but at least one must be set.
type SmartSearchRequest struct {
	EventID          string
	Query            string
	Selfie           []byte
	SelfieName       string
	Threshold        float64
	ExcludedImageIDs []string
	MaxResults       int
}

// SmartSearchResponse is the result of a hybrid search
type SmartSearchResponse struct {
	Results    []SearchResult `json:"results"`
	Count      int            `json:"count"`
	Query      string         `json:"query,omitempty"`
	SelfieHash string         `json:"selfie_hash,omitempty"`
}

// FeedbackRequest marks an image as "not me" for the selfie identified by SelfieHash
type FeedbackRequest struct {
	EventID    string `json:"event_id"`
	ImageID    string `json:"image_id"`
	SelfieHash string `json:"selfie_hash"`
}

// FeedbackResponse acknowledges recorded feedback
type FeedbackResponse struct {
	Status        string         `json:"status"`
	ImageID       string         `json:"image_id"`
	FeedbackStats *FeedbackStats `json:"feedback_stats,omitempty"`
}

// AlbumStatus represents the generation state of an album
type AlbumStatus string

// AlbumStatus constants define the lifecycle states of album generation.
const (
	AlbumStatusPending    AlbumStatus = "pending"
	AlbumStatusGenerating AlbumStatus = "generating"
	AlbumStatusCompleted  AlbumStatus = "completed"
	AlbumStatusFailed     AlbumStatus = "failed"
)

// IsTerminal returns true once generation has finished either way.
func (s AlbumStatus) IsTerminal() bool {
	return s == AlbumStatusCompleted || s == AlbumStatusFailed
}

// Album represents an auto-generated event album
type Album struct {
	ID           string      `json:"id"`
	EventID      string      `json:"event_id"`
	Status       AlbumStatus `json:"status"`
	Title        string      `json:"title,omitempty"`
	Summary      string      `json:"summary,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	MomentCount  int         `json:"moment_count"`
	CreatedAt    string      `json:"created_at,omitempty"`
	CompletedAt  string      `json:"completed_at,omitempty"`
	Moments      []Moment    `json:"moments,omitempty"`
}

// Moment is a cluster of photos inside an album
type Moment struct {
	ID            string  `json:"id"`
	Caption       string  `json:"caption"`
	SceneType     string  `json:"scene_type,omitempty"`
	TimeStart     string  `json:"time_start,omitempty"`
	TimeEnd       string  `json:"time_end,omitempty"`
	PhotoCount    int     `json:"photo_count"`
	AvgFaces      float64 `json:"avg_faces"`
	DominantScene string  `json:"dominant_scene,omitempty"`
	Lighting      string  `json:"lighting,omitempty"`
	Mood          string  `json:"mood,omitempty"`
	SortOrder     int     `json:"sort_order"`
	Photos        []Image `json:"photos,omitempty"`
}

// AlbumGeneration is the response of an album generation request
type AlbumGeneration struct {
	AlbumID string      `json:"album_id"`
	Status  AlbumStatus `json:"status"`
	Message string      `json:"message"`
}

// AlbumList is the response of listing albums for an event
type AlbumList struct {
	Albums []Album `json:"albums"`
	Count  int     `json:"count"`
}

// Health is the service health report
type Health struct {
	Status  string                    `json:"status"`
	Service string                    `json:"service,omitempty"`
	Version string                    `json:"version,omitempty"`
	Checks  map[string]map[string]any `json:"checks,omitempty"`
}

// messageResponse is the generic {"message": "..."} body of delete endpoints
type messageResponse struct {
	Message string `json:"message"`
}
