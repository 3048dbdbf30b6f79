package preset

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/paramtree/internal/param/value"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS presets (
	name      TEXT PRIMARY KEY,
	saved_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS preset_values (
	preset       TEXT NOT NULL,
	system       TEXT NOT NULL,
	path         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	int_value    INTEGER,
	float_value  REAL,
	text_value   TEXT,
	blob_value   BLOB,
	PRIMARY KEY (preset, system, path)
);

CREATE INDEX IF NOT EXISTS idx_preset_values_preset ON preset_values(preset);
`

// SQLStore keeps presets in a SQLite database.
type SQLStore struct {
	db    *sql.DB
	owned bool
}

// OpenSQLStore opens (or creates) the SQLite database at path and ensures the
// schema exists. Use ":memory:" for a private in-memory database.
func OpenSQLStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open preset db: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	s, err := NewSQLStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLStore uses an existing database handle. The caller keeps ownership
// of db.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		return nil, fmt.Errorf("create preset schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close closes the database if the store opened it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// Save replaces the named preset in a single transaction.
func (s *SQLStore) Save(ctx context.Context, doc *Document) error {
	if err := ValidateName(doc.Name); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM preset_values WHERE preset = ?`, doc.Name); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO presets(name, saved_at) VALUES(?, ?)
			 ON CONFLICT(name) DO UPDATE SET saved_at = excluded.saved_at`,
			doc.Name, doc.SavedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO preset_values(preset, system, path, kind, int_value, float_value, text_value, blob_value)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sys := range doc.SystemNames() {
			paths := make([]string, 0, len(doc.Systems[sys]))
			for p := range doc.Systems[sys] {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				r, err := toRow(doc.Systems[sys][p])
				if err != nil {
					return fmt.Errorf("%s.%s: %w", sys, p, err)
				}
				if _, err := stmt.ExecContext(ctx, doc.Name, sys, p, r.kind, r.i, r.f, r.s, r.b); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Load reads the named preset.
func (s *SQLStore) Load(ctx context.Context, name string) (*Document, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM presets WHERE name = ?`, name).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load preset %s: %w", name, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return nil, fmt.Errorf("load preset %s: saved_at: %w", name, err)
	}
	doc := NewDocument(name, ts)

	rows, err := s.db.QueryContext(ctx,
		`SELECT system, path, kind, int_value, float_value, text_value, blob_value
		 FROM preset_values WHERE preset = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("load preset %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sys, path string
			r         row
		)
		if err := rows.Scan(&sys, &path, &r.kind, &r.i, &r.f, &r.s, &r.b); err != nil {
			return nil, fmt.Errorf("load preset %s: %w", name, err)
		}
		v, err := r.value()
		if err != nil {
			return nil, fmt.Errorf("load preset %s: %s.%s: %w", name, sys, path, err)
		}
		doc.Set(sys, path, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load preset %s: %w", name, err)
	}
	return doc, nil
}

// List returns the preset names in sorted order.
func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Delete removes the named preset and its values.
func (s *SQLStore) Delete(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM presets WHERE name = ?`, name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM preset_values WHERE preset = ?`, name)
		return err
	})
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// row is the column form of a value. NaN floats are stored as a NULL
// float_value because SQLite REAL columns cannot hold NaN.
type row struct {
	kind string
	i    sql.NullInt64
	f    sql.NullFloat64
	s    sql.NullString
	b    []byte
}

func toRow(v value.Value) (row, error) {
	r := row{kind: v.Kind().String()}
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		r.i = sql.NullInt64{Int64: boolInt(b), Valid: true}
	case value.KindInt:
		i, _ := v.AsInt()
		r.i = sql.NullInt64{Int64: i, Valid: true}
	case value.KindFloat:
		f, _ := v.AsFloat()
		r.f = sql.NullFloat64{Float64: f, Valid: !math.IsNaN(f)}
	case value.KindText:
		s, _ := v.AsText()
		r.s = sql.NullString{String: s, Valid: true}
	case value.KindVector:
		vec, _ := v.AsVector()
		r.b = encodeVector(vec)
	case value.KindOpaque:
		r.b, _ = v.AsOpaque()
	default:
		return r, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, v.Kind())
	}
	return r, nil
}

func (r row) value() (value.Value, error) {
	kind, err := value.ParseKind(r.kind)
	if err != nil {
		return value.Value{}, err
	}
	switch kind {
	case value.KindBool:
		return value.Bool(r.i.Int64 != 0), nil
	case value.KindInt:
		return value.Int(r.i.Int64), nil
	case value.KindFloat:
		if !r.f.Valid {
			return value.Float(math.NaN()), nil
		}
		return value.Float(r.f.Float64), nil
	case value.KindText:
		return value.Text(r.s.String), nil
	case value.KindVector:
		vec, err := decodeVector(r.b)
		if err != nil {
			return value.Value{}, err
		}
		return value.Vector(vec...), nil
	case value.KindOpaque:
		return value.Opaque(r.b), nil
	default:
		return value.Value{}, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, kind)
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// encodeVector packs components as little-endian float64.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("%w: vector blob length %d", ErrUnsupportedValue, len(buf))
	}
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}
