package storage

// postgres.go — mismo contrato que SQLite para despliegues con varios
// procesos. Los importes son NUMERIC y se leen como texto (::text) para que
// pasen por el mismo decode que SQLite. El read-modify-write bloquea la fila
// del set con SELECT … FOR UPDATE.

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/alejandrodnm/surebet/internal/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	timeArg:     func(t time.Time) any { return t.UTC() },
	noLimit:     "ALL",
}

const pgSetCols = `s.id, s.event, s.sport, s.event_date, s.percentage::text, s.status, s.version, s.created_at, s.updated_at`

var _ ports.BetStore = (*PostgresStorage)(nil)

// pgQuerier es lo común a *pgxpool.Pool y pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage implementa ports.BetStore sobre un pool pgx.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage conecta, hace ping y aplica las migraciones embebidas.
func NewPostgresStorage(ctx context.Context, dsn string, maxConns int) (*PostgresStorage, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewPostgresStorage: parse config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage.NewPostgresStorage: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage.NewPostgresStorage: ping: %w", err)
	}

	s := &PostgresStorage{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// CreateSet inserta el set y sus dos patas atómicamente.
func (s *PostgresStorage) CreateSet(ctx context.Context, set domain.BetSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage.CreateSet: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO bet_sets (id, event, sport, event_date, percentage, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		set.ID, set.Event, set.Sport, set.EventDate.UTC(), set.Percentage.String(),
		string(set.Status), set.Version, set.CreatedAt.UTC(), set.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.CreateSet: insert set %s: %w", set.ID, err)
	}

	for _, l := range set.Legs {
		outcome, actual := legValues(l)
		if _, err := tx.Exec(ctx, `
			INSERT INTO bet_legs
				(id, set_id, position, bookmaker, bookmaker_key, selection, stake, odd, outcome, potential_profit, actual_profit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			l.ID, set.ID, l.Position, l.Bookmaker, domain.BookmakerKey(l.Bookmaker), l.Selection, l.Stake.String(), l.Odd.String(),
			outcome, l.PotentialProfit.String(), actual,
		); err != nil {
			return fmt.Errorf("storage.CreateSet: insert leg %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage.CreateSet: commit: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetSet(ctx context.Context, id string) (domain.BetSet, error) {
	set, err := s.loadSet(ctx, s.pool, id, false)
	if err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.GetSet: %w", err)
	}
	return set, nil
}

func (s *PostgresStorage) ListSets(ctx context.Context, f domain.SetFilter) ([]domain.BetSet, []domain.RecordFault, error) {
	where, args := postgresDialect.filterClause(f)
	rows, err := s.pool.Query(ctx, `SELECT `+pgSetCols+` FROM bet_sets s`+where+
		` ORDER BY s.event_date DESC, s.id`+postgresDialect.limitClause(f), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("storage.ListSets: query: %w", err)
	}
	defer rows.Close()

	var records []setRecord
	for rows.Next() {
		rec, err := scanPostgresSet(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("storage.ListSets: scan row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("storage.ListSets: rows: %w", err)
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.id
	}
	legs, err := loadPostgresLegs(ctx, s.pool, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("storage.ListSets: %w", err)
	}

	var faults []domain.RecordFault
	sets := make([]domain.BetSet, 0, len(records))
	for _, rec := range records {
		set, err := assemble(rec, legs[rec.id])
		if err != nil {
			faults = append(faults, domain.RecordFault{SetID: rec.id, Err: err})
			continue
		}
		sets = append(sets, set)
	}
	return sets, faults, nil
}

// UpdateSet bloquea la fila del set hasta el commit: dos liquidaciones
// concurrentes del mismo set se serializan.
func (s *PostgresStorage) UpdateSet(ctx context.Context, id string, fn func(*domain.BetSet) error) (domain.BetSet, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	set, err := s.loadSet(ctx, tx, id, true)
	if err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: %w", err)
	}
	loaded := set.Version
	if err := fn(&set); err != nil {
		return domain.BetSet{}, err
	}
	set.Version = loaded + 1

	tag, err := tx.Exec(ctx, `
		UPDATE bet_sets
		SET event = $1, sport = $2, event_date = $3, percentage = $4, status = $5, version = $6, updated_at = $7
		WHERE id = $8 AND version = $9`,
		set.Event, set.Sport, set.EventDate.UTC(), set.Percentage.String(),
		string(set.Status), set.Version, set.UpdatedAt.UTC(), id, loaded,
	)
	if err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: update set %s: %w", id, err)
	}
	if tag.RowsAffected() != 1 {
		return domain.BetSet{}, domain.Integrityf("set %s: version %d changed during update", id, loaded)
	}

	for _, l := range set.Legs {
		outcome, actual := legValues(l)
		tag, err := tx.Exec(ctx, `
			UPDATE bet_legs
			SET bookmaker = $1, bookmaker_key = $2, selection = $3, stake = $4, odd = $5, outcome = $6,
			    potential_profit = $7, actual_profit = $8
			WHERE id = $9 AND set_id = $10`,
			l.Bookmaker, domain.BookmakerKey(l.Bookmaker), l.Selection, l.Stake.String(), l.Odd.String(), outcome,
			l.PotentialProfit.String(), actual, l.ID, id,
		)
		if err != nil {
			return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: update leg %s: %w", l.ID, err)
		}
		if tag.RowsAffected() != 1 {
			return domain.BetSet{}, domain.Integrityf("set %s: leg %s vanished during update", id, l.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: commit: %w", err)
	}
	return set, nil
}

// DeleteSet borra el set; las patas caen por ON DELETE CASCADE.
func (s *PostgresStorage) DeleteSet(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bet_sets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage.DeleteSet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("set %s", id)
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// --- helpers internos ---

func (s *PostgresStorage) loadSet(ctx context.Context, q pgQuerier, id string, lock bool) (domain.BetSet, error) {
	query := `SELECT ` + pgSetCols + ` FROM bet_sets s WHERE s.id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	rec, err := scanPostgresSet(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BetSet{}, domain.NotFoundf("set %s", id)
	}
	if err != nil {
		return domain.BetSet{}, err
	}

	legs, err := loadPostgresLegs(ctx, q, []string{id})
	if err != nil {
		return domain.BetSet{}, err
	}
	return assemble(rec, legs[id])
}

func loadPostgresLegs(ctx context.Context, q pgQuerier, ids []string) (map[string][]legRecord, error) {
	out := make(map[string][]legRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		SELECT id, set_id, position, bookmaker, selection, stake::text, odd::text,
		       outcome, potential_profit::text, actual_profit::text
		FROM bet_legs
		WHERE set_id = ANY($1)
		ORDER BY set_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("load legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r legRecord
		if err := rows.Scan(&r.id, &r.setID, &r.position, &r.bookmaker, &r.selection,
			&r.stake, &r.odd, &r.outcome, &r.potential, &r.actual); err != nil {
			return nil, fmt.Errorf("scan leg: %w", err)
		}
		out[r.setID] = append(out[r.setID], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load legs: %w", err)
	}
	return out, nil
}

func scanPostgresSet(row pgx.Row) (setRecord, error) {
	var r setRecord
	err := row.Scan(&r.id, &r.event, &r.sport, &r.eventDate, &r.percentage, &r.status, &r.version, &r.createdAt, &r.updatedAt)
	return r, err
}

// runMigrations aplica en orden los .sql embebidos que falten y los registra
// en schema_migrations.
func (s *PostgresStorage) runMigrations(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("storage.runMigrations: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("storage.runMigrations: read dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("storage.runMigrations: check %s: %w", name, err)
		}
		if applied {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("storage.runMigrations: read %s: %w", name, err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage.runMigrations: begin %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("storage.runMigrations: exec %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("storage.runMigrations: record %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("storage.runMigrations: commit %s: %w", name, err)
		}
	}
	return nil
}
