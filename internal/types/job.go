package types

import "time"

// JobRecord maps a source identity to the remote summarization job created
// for it. Rows are upserted, never deleted.
type JobRecord struct {
	SourceKey   string    `gorm:"primaryKey;size:2048" json:"source_key"`
	RemoteJobId string    `gorm:"not null;size:256" json:"remote_job_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (JobRecord) TableName() string {
	return "job_records"
}
