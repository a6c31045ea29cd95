package jobcache

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"autolecture/internal/types"
	"autolecture/log"
)

// SQLStore keeps job records in the application database. Put is a single
// upsert on source_key, which is the merge the file store does by hand.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&types.JobRecord{}); err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, sourceKey string) (string, bool) {
	var record types.JobRecord
	err := s.db.WithContext(ctx).Where("source_key = ?", sourceKey).First(&record).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.GetLogger().Warn("[JobCache] lookup failed, treating as miss",
				zap.String("source_key", sourceKey), zap.Error(err))
		}
		return "", false
	}
	return record.RemoteJobId, true
}

func (s *SQLStore) Put(ctx context.Context, sourceKey, jobID string) error {
	record := types.JobRecord{SourceKey: sourceKey, RemoteJobId: jobID}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"remote_job_id", "updated_at"}),
	}).Create(&record).Error
}
