package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
	"github.com/KaramelBytes/tidyloom-cli/internal/history"
)

// LogTableSuffix names the processing-log table written next to a dataset table.
const LogTableSuffix = "_processing_log"

type sqliteLoader struct{}

func (sqliteLoader) Name() string { return "sqlite" }

func (sqliteLoader) CanLoad(path string) bool { return hasExt(path, ".db", ".sqlite", ".sqlite3") }

// Load reads opt.Table, or the first user table by name when unset.
func (sqliteLoader) Load(ctx context.Context, path string, opt Options) (*Table, error) {
	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	table := opt.Table
	if table == "" {
		if table, err = firstTable(ctx, db); err != nil {
			return nil, err
		}
	}
	q := "SELECT * FROM " + sqlIdent(table)
	if opt.MaxRows > 0 {
		// one extra row so truncation is still reported
		q += fmt.Sprintf(" LIMIT %d", opt.MaxRows+1)
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	tbl := &Table{Header: cols}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make([]dataset.Value, len(cols))
		for i, v := range raw {
			row[i] = sqlCell(v)
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, rows.Err()
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}

func firstTable(ctx context.Context, db *sql.DB) (string, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name NOT LIKE ?
		 ORDER BY name LIMIT 1`, "%"+LogTableSuffix).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("database has no tables")
	}
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}
	return name, nil
}

func sqlCell(v any) dataset.Value {
	switch x := v.(type) {
	case nil:
		return dataset.Null()
	case int64:
		return dataset.Number(float64(x))
	case float64:
		return dataset.Number(x)
	case bool:
		return dataset.Bool(x)
	case time.Time:
		return dataset.Time(x)
	case []byte:
		return textCell(string(x))
	case string:
		return textCell(x)
	}
	return textCell(fmt.Sprint(v))
}

// WriteSQLite replaces table in the database at path with snap and writes
// the processing log to <table>_processing_log, all in one transaction.
func WriteSQLite(ctx context.Context, path, table string, snap *dataset.Snapshot, steps []history.Step) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("sqlite export: table name required")
	}
	db, err := openSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := writeDataTable(ctx, tx, table, snap); err != nil {
		return err
	}
	if err := writeLogTable(ctx, tx, table+LogTableSuffix, steps); err != nil {
		return err
	}
	return tx.Commit()
}

func writeDataTable(ctx context.Context, tx *sql.Tx, table string, snap *dataset.Snapshot) error {
	cols := snap.Columns()
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = sqlIdent(c.Name) + " " + sqlType(c.Type)
		marks[i] = "?"
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", sqlIdent(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", sqlIdent(table), strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()
	args := make([]any, len(cols))
	for r := 0; r < snap.NumRows(); r++ {
		for j, c := range cols {
			args[j] = sqlArg(c.Values[r])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", r+1, err)
		}
	}
	return nil
}

func writeLogTable(ctx context.Context, tx *sql.Tx, table string, steps []history.Step) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+sqlIdent(table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE %s (
		seq INTEGER PRIMARY KEY,
		step_id TEXT NOT NULL,
		description TEXT NOT NULL,
		input_version INTEGER NOT NULL,
		output_version INTEGER NOT NULL,
		composite INTEGER NOT NULL,
		fixes TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`, sqlIdent(table))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	for _, s := range steps {
		fixes, err := json.Marshal(s.Fixes)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?)", sqlIdent(table)),
			s.Seq, s.ID, s.Description, s.InputVersion, s.OutputVersion, s.Composite,
			string(fixes), s.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert step %d: %w", s.Seq, err)
		}
	}
	return nil
}

func sqlType(t dataset.ColumnType) string {
	switch t {
	case dataset.Numeric:
		return "REAL"
	case dataset.Boolean:
		return "INTEGER"
	}
	return "TEXT"
}

// sqlArg maps a cell to a driver value. Datetimes are stored as text.
func sqlArg(v dataset.Value) any {
	switch v.Kind() {
	case dataset.KindNull:
		return nil
	case dataset.KindNumber:
		f, _ := v.Float()
		return f
	case dataset.KindBool:
		return v.Boolean()
	}
	return v.Text()
}

func sqlIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
