package storage

// sqlite.go — store por defecto, un solo fichero y sin CGo.
//
// Estrategia:
//   - `bet_sets`: una fila por surebet (evento, fecha, % de ventaja, status).
//   - `bet_legs`: exactamente dos filas por set (position 0 = A, 1 = B),
//     borradas en cascada con el set.
//   - Importes y fechas como TEXT: los decimales se guardan tal cual los
//     imprime shopspring/decimal, las fechas con ancho fijo para que el
//     orden lexicográfico sea el cronológico.
//   - Toda escritura que toca las dos patas va en una transacción.
//   - `version` sube en cada UpdateSet; la cache la usa para ordenar escrituras.
//   - `bookmaker_key` es el nombre de la casa normalizado por domain.BookmakerKey.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/surebet/internal/domain"
	"github.com/alejandrodnm/surebet/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS bet_sets (
    id          TEXT PRIMARY KEY,
    event       TEXT NOT NULL,
    sport       TEXT NOT NULL DEFAULT '',
    event_date  TEXT NOT NULL,
    percentage  TEXT NOT NULL DEFAULT '0',
    status      TEXT NOT NULL DEFAULT 'pending',
    version     INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bet_legs (
    id               TEXT PRIMARY KEY,
    set_id           TEXT    NOT NULL REFERENCES bet_sets(id) ON DELETE CASCADE,
    position         INTEGER NOT NULL,
    bookmaker        TEXT    NOT NULL,
    bookmaker_key    TEXT    NOT NULL DEFAULT '',
    selection        TEXT    NOT NULL DEFAULT '',
    stake            TEXT    NOT NULL,
    odd              TEXT    NOT NULL,
    outcome          TEXT,
    potential_profit TEXT    NOT NULL,
    actual_profit    TEXT,
    UNIQUE (set_id, position)
);

CREATE INDEX IF NOT EXISTS idx_sets_event_date ON bet_sets(event_date DESC);
CREATE INDEX IF NOT EXISTS idx_sets_status     ON bet_sets(status);
CREATE INDEX IF NOT EXISTS idx_legs_set        ON bet_legs(set_id);
CREATE INDEX IF NOT EXISTS idx_legs_bookmaker  ON bet_legs(bookmaker_key);
`

// sqliteTime tiene ancho fijo: comparar strings equivale a comparar fechas.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// legsChunk acota el número de placeholders por query IN (...).
const legsChunk = 500

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	timeArg:     func(t time.Time) any { return formatTime(t) },
	noLimit:     "-1",
}

var _ ports.BetStore = (*SQLiteStorage)(nil)

// SQLiteStorage implementa ports.BetStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// queryer es lo común a *sql.DB y *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateSet inserta el set y sus dos patas atómicamente.
func (s *SQLiteStorage) CreateSet(ctx context.Context, set domain.BetSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.CreateSet: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bet_sets (id, event, sport, event_date, percentage, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		set.ID, set.Event, set.Sport, formatTime(set.EventDate), set.Percentage.String(),
		string(set.Status), set.Version, formatTime(set.CreatedAt), formatTime(set.UpdatedAt),
	); err != nil {
		return fmt.Errorf("storage.CreateSet: insert set %s: %w", set.ID, err)
	}

	for _, l := range set.Legs {
		outcome, actual := legValues(l)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bet_legs
				(id, set_id, position, bookmaker, bookmaker_key, selection, stake, odd, outcome, potential_profit, actual_profit)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, set.ID, l.Position, l.Bookmaker, domain.BookmakerKey(l.Bookmaker), l.Selection, l.Stake.String(), l.Odd.String(),
			outcome, l.PotentialProfit.String(), actual,
		); err != nil {
			return fmt.Errorf("storage.CreateSet: insert leg %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.CreateSet: commit: %w", err)
	}
	return nil
}

// GetSet devuelve el set con sus patas.
func (s *SQLiteStorage) GetSet(ctx context.Context, id string) (domain.BetSet, error) {
	set, err := s.loadSet(ctx, s.db, id)
	if err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.GetSet: %w", err)
	}
	return set, nil
}

// ListSets devuelve los sets filtrados, más recientes primero. Los que no se
// pueden decodificar van a faults y el listado sigue.
func (s *SQLiteStorage) ListSets(ctx context.Context, f domain.SetFilter) ([]domain.BetSet, []domain.RecordFault, error) {
	where, args := sqliteDialect.filterClause(f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.event, s.sport, s.event_date, s.percentage, s.status, s.version, s.created_at, s.updated_at
		FROM bet_sets s`+where+`
		ORDER BY s.event_date DESC, s.id`+sqliteDialect.limitClause(f), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("storage.ListSets: query: %w", err)
	}

	var (
		records []setRecord
		faults  []domain.RecordFault
	)
	for rows.Next() {
		rec, err := scanSQLiteSet(rows)
		if err != nil {
			var rf domain.RecordFault
			if errors.As(err, &rf) {
				faults = append(faults, rf)
				continue
			}
			rows.Close()
			return nil, nil, fmt.Errorf("storage.ListSets: scan row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, fmt.Errorf("storage.ListSets: rows: %w", err)
	}
	rows.Close()

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.id
	}
	legs, err := s.loadLegs(ctx, s.db, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("storage.ListSets: %w", err)
	}

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

// UpdateSet es el read-modify-write de un set: leer las dos patas, aplicar fn
// y escribir patas + status en la misma transacción.
func (s *SQLiteStorage) UpdateSet(ctx context.Context, id string, fn func(*domain.BetSet) error) (domain.BetSet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: begin tx: %w", err)
	}
	defer tx.Rollback()

	set, err := s.loadSet(ctx, tx, id)
	if err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: %w", err)
	}
	loaded := set.Version
	if err := fn(&set); err != nil {
		return domain.BetSet{}, err
	}
	set.Version = loaded + 1

	res, err := tx.ExecContext(ctx, `
		UPDATE bet_sets
		SET event = ?, sport = ?, event_date = ?, percentage = ?, status = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		set.Event, set.Sport, formatTime(set.EventDate), set.Percentage.String(),
		string(set.Status), set.Version, formatTime(set.UpdatedAt), id, loaded,
	)
	if err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: update set %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return domain.BetSet{}, domain.Integrityf("set %s: version %d changed during update", id, loaded)
	}

	for _, l := range set.Legs {
		outcome, actual := legValues(l)
		res, err := tx.ExecContext(ctx, `
			UPDATE bet_legs
			SET bookmaker = ?, bookmaker_key = ?, selection = ?, stake = ?, odd = ?, outcome = ?,
			    potential_profit = ?, actual_profit = ?
			WHERE id = ? AND set_id = ?`,
			l.Bookmaker, domain.BookmakerKey(l.Bookmaker), l.Selection, l.Stake.String(), l.Odd.String(), outcome,
			l.PotentialProfit.String(), actual, l.ID, id,
		)
		if err != nil {
			return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: update leg %s: %w", l.ID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return domain.BetSet{}, domain.Integrityf("set %s: leg %s vanished during update", id, l.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.BetSet{}, fmt.Errorf("storage.UpdateSet: commit: %w", err)
	}
	return set, nil
}

// DeleteSet borra las patas y el set.
func (s *SQLiteStorage) DeleteSet(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.DeleteSet: begin tx: %w", err)
	}
	defer tx.Rollback()

	// el FK ya hace cascade; el DELETE explícito cubre DBs creadas sin el pragma
	if _, err := tx.ExecContext(ctx, `DELETE FROM bet_legs WHERE set_id = ?`, id); err != nil {
		return fmt.Errorf("storage.DeleteSet: delete legs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bet_sets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage.DeleteSet: delete set: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("set %s", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.DeleteSet: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func (s *SQLiteStorage) loadSet(ctx context.Context, q queryer, id string) (domain.BetSet, error) {
	row := q.QueryRowContext(ctx, `
		SELECT s.id, s.event, s.sport, s.event_date, s.percentage, s.status, s.version, s.created_at, s.updated_at
		FROM bet_sets s WHERE s.id = ?`, id)
	rec, err := scanSQLiteSet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BetSet{}, domain.NotFoundf("set %s", id)
	}
	if err != nil {
		return domain.BetSet{}, err
	}

	legs, err := s.loadLegs(ctx, q, []string{id})
	if err != nil {
		return domain.BetSet{}, err
	}
	return assemble(rec, legs[id])
}

// loadLegs agrupa por set_id las patas de los sets dados, en orden de position.
func (s *SQLiteStorage) loadLegs(ctx context.Context, q queryer, ids []string) (map[string][]legRecord, error) {
	out := make(map[string][]legRecord, len(ids))
	for start := 0; start < len(ids); start += legsChunk {
		end := min(start+legsChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := q.QueryContext(ctx, `
			SELECT id, set_id, position, bookmaker, selection, stake, odd, outcome, potential_profit, actual_profit
			FROM bet_legs
			WHERE set_id IN (`+strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")+`)
			ORDER BY set_id, position`, args...)
		if err != nil {
			return nil, fmt.Errorf("load legs: %w", err)
		}
		for rows.Next() {
			var r legRecord
			if err := rows.Scan(&r.id, &r.setID, &r.position, &r.bookmaker, &r.selection,
				&r.stake, &r.odd, &r.outcome, &r.potential, &r.actual); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan leg: %w", err)
			}
			out[r.setID] = append(out[r.setID], r)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("load legs: %w", err)
		}
	}
	return out, nil
}

// scanSQLiteSet lee una fila de bet_sets. Una fecha ilegible se devuelve como
// RecordFault para que el listado pueda saltarla.
func scanSQLiteSet(row interface{ Scan(dest ...any) error }) (setRecord, error) {
	var r setRecord
	var eventDate, createdAt, updatedAt string
	if err := row.Scan(&r.id, &r.event, &r.sport, &eventDate, &r.percentage, &r.status, &r.version, &createdAt, &updatedAt); err != nil {
		return r, err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"event_date", eventDate, &r.eventDate},
		{"created_at", createdAt, &r.createdAt},
		{"updated_at", updatedAt, &r.updatedAt},
	} {
		t, err := time.Parse(sqliteTime, f.raw)
		if err != nil {
			return r, domain.RecordFault{SetID: r.id, Err: domain.Integrityf("set %s: %s %q", r.id, f.name, f.raw)}
		}
		*f.dst = t
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}
