package domain

import "time"

// FetchStatus is the final outcome of a fetch
type FetchStatus string

const (
	StatusSucceeded FetchStatus = "succeeded"
	StatusFailed    FetchStatus = "failed"
)

// FetchRecord is the persisted history entry for one fetch request
type FetchRecord struct {
	ID           string        `json:"id" gorm:"primaryKey"`
	URL          string        `json:"url" gorm:"not null"`
	Platform     Platform      `json:"platform" gorm:"not null;index"`
	Status       FetchStatus   `json:"status" gorm:"not null;index"`
	Strategy     string        `json:"strategy,omitempty" gorm:"index"`
	Reason       FailureReason `json:"reason,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty" gorm:"type:text"`
	SizeBytes    int64         `json:"size_bytes"`
	Attempts     int           `json:"attempts"`
	DurationMs   int64         `json:"duration_ms"`
	CreatedAt    time.Time     `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for GORM
func (FetchRecord) TableName() string {
	return "fetch_history"
}

// NewFetchRecord builds a history entry from a finished fetch
func NewFetchRecord(req DownloadRequest, artifact *Artifact, attempts int, elapsed time.Duration, err error) *FetchRecord {
	rec := &FetchRecord{
		ID:         req.ID,
		URL:        req.SourceURL,
		Platform:   req.Platform,
		Status:     StatusSucceeded,
		Attempts:   attempts,
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if artifact != nil {
		rec.Strategy = artifact.Strategy
		rec.SizeBytes = artifact.SizeBytes
	}
	if err != nil {
		rec.Status = StatusFailed
		rec.Reason = ReasonOf(err)
		rec.ErrorMessage = err.Error()
	}
	return rec
}

// FetchRepository defines the interface for fetch history persistence
type FetchRepository interface {
	// Create stores a finished fetch
	Create(record *FetchRecord) error

	// FindByID finds a record by request ID
	FindByID(id string) (*FetchRecord, error)

	// FindRecent returns the newest records matching filters, newest first
	FindRecent(filters map[string]interface{}, limit int) ([]*FetchRecord, error)

	// GetStats returns aggregate statistics
	GetStats() (*FetchStats, error)
}

// FetchStats represents fetch history statistics
type FetchStats struct {
	Total       int64            `json:"total"`
	Succeeded   int64            `json:"succeeded"`
	Failed      int64            `json:"failed"`
	TooLarge    int64            `json:"too_large"`
	Unsupported int64            `json:"unsupported"`
	Exhausted   int64            `json:"exhausted"`
	Wins        map[string]int64 `json:"wins"`
}
