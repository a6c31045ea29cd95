package storage

import (
	"errors"

	"autolecture/internal/types"

	"gorm.io/gorm"
)

var errNotInitialized = errors.New("database not initialized")

// SaveRun inserts the report or replaces the stored one with the same run id.
func SaveRun(report *types.RunReport) error {
	if DB == nil {
		return errNotInitialized
	}
	var existing types.RunReport
	result := DB.Select("id", "create_time").Where("run_id = ?", report.RunId).First(&existing)

	if result.Error == nil {
		report.Id = existing.Id
		if report.CreateTime == 0 {
			report.CreateTime = existing.CreateTime
		}
		return DB.Save(report).Error
	} else if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return DB.Create(report).Error
	}
	return result.Error
}

func GetRun(runID string) (*types.RunReport, error) {
	if DB == nil {
		return nil, errNotInitialized
	}
	var report types.RunReport
	if err := DB.Where("run_id = ?", runID).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func GetRunHistory(limit int) ([]types.RunReport, error) {
	if DB == nil {
		return nil, errNotInitialized
	}
	var reports []types.RunReport
	if err := DB.Order("create_time desc").Order("id desc").Limit(limit).Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func DeleteRun(runID string) error {
	if DB == nil {
		return errNotInitialized
	}
	return DB.Where("run_id = ?", runID).Delete(&types.RunReport{}).Error
}

// MarkStaleRuns fails every run still marked running, and queued runs too
// when the queue did not survive the restart. Called on server start, when
// no run can actually be in progress.
func MarkStaleRuns(includeQueued bool) (int64, error) {
	if DB == nil {
		return 0, errNotInitialized
	}
	statuses := []int{int(types.RunStatusRunning)}
	if includeQueued {
		statuses = append(statuses, int(types.RunStatusQueued))
	}
	result := DB.Model(&types.RunReport{}).
		Where("status IN ?", statuses).
		Updates(map[string]interface{}{
			"status":      types.RunStatusFailed,
			"fail_reason": "run interrupted by server restart",
			"status_msg":  "interrupted",
		})
	return result.RowsAffected, result.Error
}
