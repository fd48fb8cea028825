package achievement

import (
	"context"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
)

// Record writes candidates to the log and returns the ones that were new
func Record(ctx context.Context, store storage.AchievementStore, candidates []domain.AchievementEvent) ([]domain.AchievementEvent, error) {
	var stored []domain.AchievementEvent
	for i := range candidates {
		ev := candidates[i]
		ok, err := store.RecordAchievement(ctx, &ev)
		if err != nil {
			return stored, err
		}
		if ok {
			stored = append(stored, ev)
		}
	}
	return stored, nil
}
