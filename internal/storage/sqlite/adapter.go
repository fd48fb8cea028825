package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/commit-streaks/internal/domain"
	apperrors "github.com/kurihiro0119/commit-streaks/internal/errors"
	"github.com/kurihiro0119/commit-streaks/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite.
// Dates are stored as YYYY-MM-DD text so lexical order is calendar order.
type sqliteStorage struct {
	db      *sql.DB
	writeMu sync.Mutex
	epoch   storage.EpochCounter
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open sqlite database", err)
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS commits (
		repo TEXT NOT NULL,
		date TEXT NOT NULL,
		count INTEGER NOT NULL CHECK (count >= 0),
		lines_added INTEGER NOT NULL DEFAULT 0,
		lines_deleted INTEGER NOT NULL DEFAULT 0,
		collected_at TEXT NOT NULL,
		PRIMARY KEY (repo, date)
	);

	CREATE INDEX IF NOT EXISTS idx_commits_date ON commits(date);

	CREATE TABLE IF NOT EXISTS streaks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		last_date TEXT NOT NULL,
		length INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_streaks_kind ON streaks(kind, start_date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_streaks_one_active ON streaks(kind) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS achievements (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		milestone INTEGER NOT NULL,
		message TEXT NOT NULL,
		trigger_date TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE (type, milestone)
	);

	CREATE INDEX IF NOT EXISTS idx_achievements_trigger_date ON achievements(trigger_date);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperrors.NewStorageError("failed to migrate sqlite schema", err)
	}
	return nil
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

// Epoch returns the current write epoch
func (s *sqliteStorage) Epoch() uint64 {
	return s.epoch.Current()
}

// Ledger operations

func (s *sqliteStorage) Upsert(ctx context.Context, fact *domain.CommitFact) (domain.UpsertResult, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE repo = ? AND date = ?`, fact.Repo, date).Scan(&existing)
	if err != nil {
		return 0, apperrors.NewStorageError("failed to check existing fact", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO commits (repo, date, count, lines_added, lines_deleted, collected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo, date) DO UPDATE SET
			count = excluded.count,
			lines_added = excluded.lines_added,
			lines_deleted = excluded.lines_deleted,
			collected_at = excluded.collected_at
	`, fact.Repo, date, fact.Commits, fact.LinesAdded, fact.LinesDeleted, collectedAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, apperrors.NewStorageError(fmt.Sprintf("failed to upsert %s %s", fact.Repo, date), err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewStorageError("failed to commit upsert", err)
	}
	s.epoch.Bump()

	if existing > 0 {
		return domain.Replaced, nil
	}
	return domain.Inserted, nil
}

func (s *sqliteStorage) Exists(ctx context.Context, repo string, date time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE repo = ? AND date = ?`, repo, domain.FormatDay(date)).Scan(&n)
	if err != nil {
		return false, apperrors.NewStorageError("failed to check fact", err)
	}
	return n > 0, nil
}

func (s *sqliteStorage) QueryRange(ctx context.Context, start, end time.Time) iter.Seq2[*domain.CommitFact, error] {
	return func(yield func(*domain.CommitFact, error) bool) {
		if err := storage.ValidateRange(start, end); err != nil {
			yield(nil, err)
			return
		}

		rows, err := s.db.QueryContext(ctx, `
			SELECT repo, date, count, lines_added, lines_deleted, collected_at
			FROM commits
			WHERE date >= ? AND date <= ?
			ORDER BY date, repo
		`, domain.FormatDay(start), domain.FormatDay(end))
		if err != nil {
			yield(nil, apperrors.NewStorageError("failed to query commits", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			fact, err := scanFact(rows)
			if !yield(fact, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, apperrors.NewStorageError("failed to iterate commits", err))
		}
	}
}

func scanFact(rows *sql.Rows) (*domain.CommitFact, error) {
	var fact domain.CommitFact
	var date, collectedAt string
	if err := rows.Scan(&fact.Repo, &date, &fact.Commits, &fact.LinesAdded, &fact.LinesDeleted, &collectedAt); err != nil {
		return nil, apperrors.NewStorageError("failed to scan commit", err)
	}
	d, err := domain.ParseDay(date)
	if err != nil {
		return nil, apperrors.NewConsistencyViolation("stored date %q is malformed", date)
	}
	fact.Date = d
	if t, err := time.Parse(time.RFC3339Nano, collectedAt); err == nil {
		fact.CollectedAt = t
	}
	return &fact, nil
}

func (s *sqliteStorage) DailyTotals(ctx context.Context, start, end time.Time) ([]domain.DailyTotal, error) {
	if err := storage.ValidateRange(start, end); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, SUM(count)
		FROM commits
		WHERE date >= ? AND date <= ?
		GROUP BY date
	`, domain.FormatDay(start), domain.FormatDay(end))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query daily totals", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var date string
		var total int64
		if err := rows.Scan(&date, &total); err != nil {
			return nil, apperrors.NewStorageError("failed to scan daily total", err)
		}
		sums[date] = total
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate daily totals", err)
	}

	return storage.FillDailyTotals(start, end, sums), nil
}

func (s *sqliteStorage) TrackedRange(ctx context.Context) (time.Time, time.Time, bool, error) {
	var first, last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM commits`).Scan(&first, &last); err != nil {
		return time.Time{}, time.Time{}, false, apperrors.NewStorageError("failed to query tracked range", err)
	}
	if !first.Valid || !last.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	f, err := domain.ParseDay(first.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, apperrors.NewConsistencyViolation("stored date %q is malformed", first.String)
	}
	l, err := domain.ParseDay(last.String)
	if err != nil {
		return time.Time{}, time.Time{}, false, apperrors.NewConsistencyViolation("stored date %q is malformed", last.String)
	}
	return f, l, true, nil
}

func (s *sqliteStorage) DaysWithData(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT date) FROM commits`).Scan(&n); err != nil {
		return 0, apperrors.NewStorageError("failed to count tracked days", err)
	}
	return n, nil
}

func (s *sqliteStorage) Repositories(ctx context.Context) ([]string, error) {
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

func (s *sqliteStorage) ListStreaks(ctx context.Context, kind domain.StreakKind) ([]domain.StreakRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, start_date, end_date, last_date, length, active
		FROM streaks
		WHERE kind = ?
		ORDER BY start_date
	`, string(kind))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query streaks", err)
	}
	defer rows.Close()

	var records []domain.StreakRecord
	for rows.Next() {
		var (
			k, start, last string
			end            sql.NullString
			r              domain.StreakRecord
		)
		if err := rows.Scan(&k, &start, &end, &last, &r.Length, &r.Active); err != nil {
			return nil, apperrors.NewStorageError("failed to scan streak", err)
		}
		r.Kind = domain.StreakKind(k)
		if r.StartDate, err = domain.ParseDay(start); err != nil {
			return nil, apperrors.NewConsistencyViolation("stored streak start %q is malformed", start)
		}
		if r.LastDate, err = domain.ParseDay(last); err != nil {
			return nil, apperrors.NewConsistencyViolation("stored streak last date %q is malformed", last)
		}
		if end.Valid {
			e, err := domain.ParseDay(end.String)
			if err != nil {
				return nil, apperrors.NewConsistencyViolation("stored streak end %q is malformed", end.String)
			}
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

func (s *sqliteStorage) ReplaceStreaks(ctx context.Context, sets map[domain.StreakKind][]domain.StreakRecord) error {
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

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO streaks (kind, start_date, end_date, last_date, length, active)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare streak insert", err)
	}
	defer stmt.Close()

	for kind, records := range sets {
		if _, err := tx.ExecContext(ctx, `DELETE FROM streaks WHERE kind = ?`, string(kind)); err != nil {
			return apperrors.NewStorageError("failed to clear streaks", err)
		}

		for _, r := range records {
			var end sql.NullString
			if r.EndDate != nil {
				end = sql.NullString{String: domain.FormatDay(*r.EndDate), Valid: true}
			}
			_, err := stmt.ExecContext(ctx, string(kind), domain.FormatDay(r.StartDate), end, domain.FormatDay(r.LastDate), r.Length, r.Active)
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

func (s *sqliteStorage) RecordAchievement(ctx context.Context, event *domain.AchievementEvent) (bool, error) {
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, milestone) DO NOTHING
	`, event.ID, string(event.Type), event.Milestone, event.Message,
		domain.FormatDay(event.TriggerDate), string(snapshot), event.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return false, apperrors.NewStorageError("failed to record achievement", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewStorageError("failed to read achievement insert result", err)
	}
	return n == 1, nil
}

func (s *sqliteStorage) ListAchievements(ctx context.Context, since time.Time) ([]*domain.AchievementEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, milestone, message, trigger_date, snapshot, created_at
		FROM achievements
		WHERE trigger_date >= ?
		ORDER BY trigger_date, type, milestone
	`, domain.FormatDay(since))
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query achievements", err)
	}
	defer rows.Close()

	var events []*domain.AchievementEvent
	for rows.Next() {
		var (
			ev                              domain.AchievementEvent
			typ, trigger, snapshot, created string
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.Milestone, &ev.Message, &trigger, &snapshot, &created); err != nil {
			return nil, apperrors.NewStorageError("failed to scan achievement", err)
		}
		ev.Type = domain.AchievementType(typ)
		if ev.TriggerDate, err = domain.ParseDay(trigger); err != nil {
			return nil, apperrors.NewConsistencyViolation("stored trigger date %q is malformed", trigger)
		}
		if err := json.Unmarshal([]byte(snapshot), &ev.Snapshot); err != nil {
			return nil, apperrors.NewConsistencyViolation("stored snapshot for %s is malformed", ev.ID)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			ev.CreatedAt = t
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate achievements", err)
	}
	return events, nil
}

func (s *sqliteStorage) AchievementStats(ctx context.Context, now time.Time) (*domain.AchievementStats, error) {
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
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM achievements WHERE trigger_date >= ?`, domain.FormatDay(recentSince)).Scan(&stats.Recent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewStorageError("failed to count recent achievements", err)
	}
	return stats, nil
}
