package store

import (
	"context"
	"database/sql"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const maxTxAttempts = 5

// Dialect holds the SQL differences between the supported databases.
type Dialect struct {
	Name string
	// schema statements, run in order
	schema []string
	// filter renders an equality condition on a JSON field; the field path
	// and the value are bound as the two next parameters.
	filter    string
	fieldPath func(field string) string
	forUpdate string
	txOptions *sql.TxOptions
	numbered  bool
	classify  func(err error) error
}

// Postgres stores documents as JSONB and runs transactions SERIALIZABLE.
var Postgres = Dialect{
	Name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       JSONB NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents (collection, created_at)`,
	},
	filter:    `data ->> CAST(? AS TEXT) = CAST(? AS TEXT)`,
	fieldPath: func(field string) string { return field },
	forUpdate: " FOR UPDATE",
	txOptions: &sql.TxOptions{Isolation: sql.LevelSerializable},
	numbered:  true,
	classify: func(err error) error {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "40001", "40P01":
				return errors.Wrap(ErrConflict, pgErr.Message)
			case "23505":
				return errors.Wrap(ErrExists, pgErr.Message)
			}
		}
		return err
	},
}

// SQLite stores documents as JSON text; writers are serialized by BEGIN IMMEDIATE.
var SQLite = Dialect{
	Name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents (collection, created_at)`,
	},
	filter:    `CAST(json_extract(data, ?) AS TEXT) = ?`,
	fieldPath: func(field string) string { return "$." + field },
	classify: func(err error) error {
		var sqErr sqlite3.Error
		if errors.As(err, &sqErr) {
			switch {
			case sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked:
				return errors.Wrap(ErrConflict, sqErr.Error())
			case sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqErr.ExtendedCode == sqlite3.ErrConstraintUnique:
				return errors.Wrap(ErrExists, sqErr.Error())
			}
		}
		return err
	},
}

// rebind rewrites ? placeholders into $n for numbered dialects.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore keeps every collection in one documents table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps db and creates the documents table when missing.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "%s: migrating schema", s.dialect.Name)
		}
	}
	return nil
}

// DB exposes the underlying pool for health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) Create(ctx context.Context, collection, id string, data any) (string, error) {
	return s.tx(s.db).Create(ctx, collection, id, data)
}

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	return s.tx(s.db).Get(ctx, collection, id)
}

func (s *SQLStore) List(ctx context.Context, collection string, filters ...Filter) ([]Doc, error) {
	return s.tx(s.db).List(ctx, collection, filters...)
}

func (s *SQLStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, collection, id, fields)
	})
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	return s.tx(s.db).Delete(ctx, collection, id)
}

// RunInTx runs fn in a database transaction, retrying the whole function
// when the database reports a serialization conflict.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		log.Printf("store: %s transaction conflict (attempt %d/%d): %v", s.dialect.Name, attempt, maxTxAttempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 10 * time.Millisecond):
		}
	}
	return err
}

func (s *SQLStore) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.txOptions)
	if err != nil {
		return errors.Wrap(s.dialect.classify(err), "begin transaction")
	}
	if err := fn(ctx, s.tx(sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(s.dialect.classify(err), "commit transaction")
	}
	return nil
}

func (s *SQLStore) tx(e execer) sqlTx {
	return sqlTx{e: e, d: s.dialect}
}

type sqlTx struct {
	e execer
	d Dialect
}

func (t sqlTx) Create(ctx context.Context, collection, id string, data any) (string, error) {
	body, err := encode(data)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC().UnixNano()
	_, err = t.e.ExecContext(ctx, t.d.rebind(
		`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
		collection, id, string(body), now, now)
	if err != nil {
		return "", errors.Wrapf(t.d.classify(err), "creating %s/%s", collection, id)
	}
	return id, nil
}

func (t sqlTx) Get(ctx context.Context, collection, id string) (Doc, error) {
	return t.get(ctx, collection, id, "")
}

func (t sqlTx) get(ctx context.Context, collection, id, suffix string) (Doc, error) {
	row := t.e.QueryRowContext(ctx, t.d.rebind(
		`SELECT id, data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`+suffix),
		collection, id)
	doc, err := scanDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	if err != nil {
		return Doc{}, errors.Wrapf(t.d.classify(err), "reading %s/%s", collection, id)
	}
	return doc, nil
}

func (t sqlTx) List(ctx context.Context, collection string, filters ...Filter) ([]Doc, error) {
	query := `SELECT id, data, created_at, updated_at FROM documents WHERE collection = ?`
	args := []any{collection}
	for _, f := range filters {
		if err := f.validate(); err != nil {
			return nil, err
		}
		query += " AND " + t.d.filter
		args = append(args, t.d.fieldPath(f.Field), matchText(f.Value))
	}
	query += " ORDER BY created_at, id"

	rows, err := t.e.QueryContext(ctx, t.d.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrapf(t.d.classify(err), "listing %s", collection)
	}
	defer rows.Close()

	var out []Doc
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "scanning %s", collection)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(t.d.classify(err), "listing %s", collection)
	}
	return out, nil
}

func (t sqlTx) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	cur, err := t.get(ctx, collection, id, t.d.forUpdate)
	if err != nil {
		return err
	}
	body, err := merge(cur.Data, fields)
	if err != nil {
		return err
	}
	_, err = t.e.ExecContext(ctx, t.d.rebind(
		`UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`),
		string(body), time.Now().UTC().UnixNano(), collection, id)
	if err != nil {
		return errors.Wrapf(t.d.classify(err), "updating %s/%s", collection, id)
	}
	return nil
}

func (t sqlTx) Delete(ctx context.Context, collection, id string) error {
	res, err := t.e.ExecContext(ctx, t.d.rebind(
		`DELETE FROM documents WHERE collection = ? AND id = ?`), collection, id)
	if err != nil {
		return errors.Wrapf(t.d.classify(err), "deleting %s/%s", collection, id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "%s/%s", collection, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDoc(sc scanner) (Doc, error) {
	var (
		doc              Doc
		data             []byte
		created, updated int64
	)
	if err := sc.Scan(&doc.ID, &data, &created, &updated); err != nil {
		return Doc{}, err
	}
	doc.Data = data
	doc.CreatedAt = time.Unix(0, created).UTC()
	doc.UpdatedAt = time.Unix(0, updated).UTC()
	return doc, nil
}
