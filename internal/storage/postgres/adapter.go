package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db      *sql.DB
	writeMu sync.Mutex
	epoch   storage.EpochCounter
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open postgres connection", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to reach postgres", err)
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS commits (
		repo VARCHAR(255) NOT NULL,
		date DATE NOT NULL,
		count INTEGER NOT NULL CHECK (count >= 0),
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_deleted INTEGER NOT NULL DEFAULT 0,
		collected_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (repo, date)
	);

	CREATE INDEX IF NOT EXISTS idx_commits_date ON commits(date);

	CREATE TABLE IF NOT EXISTS streaks (
		id BIGSERIAL PRIMARY KEY,
		kind VARCHAR(16) NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE,
		last_date DATE NOT NULL,
		length INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_streaks_kind ON streaks(kind, start_date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_streaks_one_active ON streaks(kind) WHERE active;

	CREATE TABLE IF NOT EXISTS achievements (
		id VARCHAR(64) PRIMARY KEY,
		type VARCHAR(32) NOT NULL,
		milestone INTEGER NOT NULL,
		message TEXT NOT NULL,
		trigger_date DATE NOT NULL,
		snapshot JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (type, milestone)
	);

	CREATE INDEX IF NOT EXISTS idx_achievements_trigger_date ON achievements(trigger_date);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperrors.NewStorageError("failed to migrate postgres schema", err)
	}
	return nil
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}

// Epoch returns the current write epoch
func (s *postgresStorage) Epoch() uint64 {
	return s.epoch.Current()
}

// Ledger operations

func (s *postgresStorage) Upsert(ctx context.Context, fact *domain.CommitFact) (domain.UpsertResult, error) {
	if err := storage.ValidateFact(fact); err != nil {
		return 0, err
	}
	date := domain.FormatDay(fact.Date)
	collectedAt := fact.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// xmax is zero only for a freshly inserted row version
	var inserted bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO commits (repo, date, count, lines_added, lines_deleted, collected_at)
		VALUES ($1, $2::date, $3, $4, $5, $6)
		ON CONFLICT (repo, date) DO UPDATE SET
			count = EXCLUDED.count,
			lines_added = EXCLUDED.lines_added,
			lines_deleted = EXCLUDED.lines_deleted,
			collected_at = EXCLUDED.collected_at
		RETURNING (xmax = 0)
	`, fact.Repo, date, fact.Commits, fact.LinesAdded, fact.LinesDeleted, collectedAt).Scan(&inserted)
	if err != nil {
		return 0, apperrors.NewStorageError(fmt.Sprintf("failed to upsert %s %s", fact.Repo, date), err)
	}
	s.epoch.Bump()

	if inserted {
		return domain.Inserted, nil
	}
	return domain.Replaced, nil
}

func (s *postgresStorage) Exists(ctx context.Context, repo string, date time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM commits WHERE repo = $1 AND date = $2::date)
	`, repo, domain.FormatDay(date)).Scan(&exists)
	if err != nil {
		return false, apperrors.NewStorageError("failed to check fact", err)
	}
	return exists, nil
}

func (s *postgresStorage) QueryRange(ctx context.Context, start, end time.Time) iter.Seq2[*domain.CommitFact, error] {
	return func(yield func(*domain.CommitFact, error) bool) {
		if err := storage.ValidateRange(start, end); err != nil {
			yield(nil, err)
			return
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT repo, date, count, lines_added, lines_deleted, collected_at
			FROM commits
			WHERE date >= $1::date AND date <= $2::date
			ORDER BY date, repo
		`, domain.FormatDay(start), domain.FormatDay(end))
		if err != nil {
			yield(nil, apperrors.NewStorageError("failed to query commits", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var fact domain.CommitFact
			var date time.Time
			err := rows.Scan(&fact.Repo, &date, &fact.Commits, &fact.LinesAdded, &fact.LinesDeleted, &fact.CollectedAt)
			if err != nil {
				yield(nil, apperrors.NewStorageError("failed to scan commit", err))
				return
			}
			fact.Date = domain.Day(date)
			if !yield(&fact, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, apperrors.NewStorageError("failed to iterate commits", err))
		}
	}
}

func (s *postgresStorage) DailyTotals(ctx context.Context, start, end time.Time) ([]domain.DailyTotal, error) {
	if err := storage.ValidateRange(start, end); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, SUM(count)
		FROM commits
		WHERE date >= $1::date AND date <= $2::date
		GROUP BY date
	`, domain.FormatDay(start), domain.FormatDay(end))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query daily totals", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var date time.Time
		var total int64
		if err := rows.Scan(&date, &total); err != nil {
			return nil, apperrors.NewStorageError("failed to scan daily total", err)
		}
		sums[domain.FormatDay(date)] = total
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate daily totals", err)
	}

	return storage.FillDailyTotals(start, end, sums), nil
}

func (s *postgresStorage) TrackedRange(ctx context.Context) (time.Time, time.Time, bool, error) {
	var first, last sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM commits`).Scan(&first, &last); err != nil {
		return time.Time{}, time.Time{}, false, apperrors.NewStorageError("failed to query tracked range", err)
	}
	if !first.Valid || !last.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return domain.Day(first.Time), domain.Day(last.Time), true, nil
}

func (s *postgresStorage) DaysWithData(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT date) FROM commits`).Scan(&n); err != nil {
		return 0, apperrors.NewStorageError("failed to count tracked days", err)
	}
	return n, nil
}

func (s *postgresStorage) Repositories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT repo FROM commits ORDER BY repo`)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list repositories", err)
	}
	defer rows.Close()

	var repos []string
	for rows.Next() {
		var repo string
		if err := rows.Scan(&repo); err != nil {
			return nil, apperrors.NewStorageError("failed to scan repository", err)
		}
		repos = append(repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate repositories", err)
	}
	return repos, nil
}

// Streak operations

func (s *postgresStorage) ListStreaks(ctx context.Context, kind domain.StreakKind) ([]domain.StreakRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, start_date, end_date, last_date, length, active
		FROM streaks
		WHERE kind = $1
		ORDER BY start_date
	`, string(kind))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query streaks", err)
	}
	defer rows.Close()

	var records []domain.StreakRecord
	for rows.Next() {
		var (
			k   string
			end sql.NullTime
			r   domain.StreakRecord
		)
		if err := rows.Scan(&k, &r.StartDate, &end, &r.LastDate, &r.Length, &r.Active); err != nil {
			return nil, apperrors.NewStorageError("failed to scan streak", err)
		}
		r.Kind = domain.StreakKind(k)
		r.StartDate = domain.Day(r.StartDate)
		r.LastDate = domain.Day(r.LastDate)
		if end.Valid {
			e := domain.Day(end.Time)
			r.EndDate = &e
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate streaks", err)
	}

	if err := storage.ValidateStreaks(kind, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *postgresStorage) ReplaceStreaks(ctx context.Context, sets map[domain.StreakKind][]domain.StreakRecord) error {
	for kind, records := range sets {
		if err := storage.ValidateStreaks(kind, records); err != nil {
			return err
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for kind, records := range sets {
		if _, err := tx.ExecContext(ctx, `DELETE FROM streaks WHERE kind = $1`, string(kind)); err != nil {
			return apperrors.NewStorageError("failed to clear streaks", err)
		}

		for _, r := range records {
			var end sql.NullString
			if r.EndDate != nil {
				end = sql.NullString{String: domain.FormatDay(*r.EndDate), Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO streaks (kind, start_date, end_date, last_date, length, active)
				VALUES ($1, $2::date, $3::date, $4::date, $5, $6)
			`, string(kind), domain.FormatDay(r.StartDate), end, domain.FormatDay(r.LastDate), r.Length, r.Active)
			if err != nil {
				return apperrors.NewStorageError("failed to insert streak", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit streaks", err)
	}
	return nil
}

// Achievement operations

func (s *postgresStorage) RecordAchievement(ctx context.Context, event *domain.AchievementEvent) (bool, error) {
	if event == nil || !event.Type.Valid() {
		return false, apperrors.NewValidationError("invalid achievement event")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	snapshot, err := json.Marshal(event.Snapshot)
	if err != nil {
		return false, apperrors.NewInternalError("failed to encode achievement snapshot", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO achievements (id, type, milestone, message, trigger_date, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7)
		ON CONFLICT (type, milestone) DO NOTHING
	`, event.ID, string(event.Type), event.Milestone, event.Message,
		domain.FormatDay(event.TriggerDate), snapshot, event.CreatedAt)
	if err != nil {
		return false, apperrors.NewStorageError("failed to record achievement", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewStorageError("failed to read achievement insert result", err)
	}
	return n == 1, nil
}

func (s *postgresStorage) ListAchievements(ctx context.Context, since time.Time) ([]*domain.AchievementEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, milestone, message, trigger_date, snapshot, created_at
		FROM achievements
		WHERE trigger_date >= $1::date
		ORDER BY trigger_date, type, milestone
	`, domain.FormatDay(since))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query achievements", err)
	}
	defer rows.Close()

	var events []*domain.AchievementEvent
	for rows.Next() {
		var (
			ev       domain.AchievementEvent
			typ      string
			snapshot []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.Milestone, &ev.Message, &ev.TriggerDate, &snapshot, &ev.CreatedAt); err != nil {
			return nil, apperrors.NewStorageError("failed to scan achievement", err)
		}
		ev.Type = domain.AchievementType(typ)
		ev.TriggerDate = domain.Day(ev.TriggerDate)
		if err := json.Unmarshal(snapshot, &ev.Snapshot); err != nil {
			return nil, apperrors.NewConsistencyViolation("stored snapshot for %s is malformed", ev.ID)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate achievements", err)
	}
	return events, nil
}

func (s *postgresStorage) AchievementStats(ctx context.Context, now time.Time) (*domain.AchievementStats, error) {
	stats := &domain.AchievementStats{ByType: make(map[domain.AchievementType]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM achievements GROUP BY type`)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query achievement stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, apperrors.NewStorageError("failed to scan achievement stats", err)
		}
		stats.ByType[domain.AchievementType(typ)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate achievement stats", err)
	}

	recentSince := domain.Day(now).AddDate(0, 0, -storage.RecentAchievementDays)
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM achievements WHERE trigger_date >= $1::date
	`, domain.FormatDay(recentSince)).Scan(&stats.Recent)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to count recent achievements", err)
	}
	return stats, nil
}
