package service

import (
	"context"
	"time"

	"nanohost/storage-api/internal/model"
	"nanohost/storage-api/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExpirySweeper periodically removes blobs whose purchased hosting time
// has run out. The deleteAfter column already includes the grace window,
// so anything past it is safe to drop
func ExpirySweeper(t time.Duration, db *gorm.DB, blob store.Blob) {
	ticker := time.NewTicker(t)

	zap.L().Debug("Expiry sweeper attached", zap.Duration("tick_every", t))

	go func() {
		for range ticker.C {
			var expired []model.File

			err := db.
				Where("uploaded = ? AND delete_after > 0 AND delete_after < ?", true, time.Now().Unix()).
				Find(&expired).
				Error
			if err != nil {
				zap.L().Error("Failed to query db for expired files", zap.Error(err))
				continue
			}

			if len(expired) == 0 {
				continue
			}

			for _, f := range expired {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

				if err := blob.Delete(ctx, "cdn/"+f.ObjectID); err != nil {
					zap.L().Error("Failed to delete expired blob",
						zap.String("object_id", f.ObjectID),
						zap.Error(err))
					cancel()
					continue
				}
				cancel()

				err := db.
					Model(model.File{}).
					Where("id = ?", f.ID).
					Updates(map[string]any{"available": false}).
					Error
				if err != nil {
					zap.L().Error("Failed to mark expired file unavailable",
						zap.String("object_id", f.ObjectID),
						zap.Error(err))
					continue
				}

				zap.L().Info("Expired file removed", zap.String("object_id", f.ObjectID))
			}
		}
	}()
}
