package annotation

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

// gafColumns are the 17 tab-separated fields of a GAF 2.x annotation line,
// in file order.
var gafColumns = []string{
	"db",
	"db_object_id",
	"db_object_symbol",
	"qualifier",
	"go_id",
	"db_reference",
	"evidence_code",
	"with_from",
	"aspect",
	"db_object_name",
	"db_object_synonym",
	"db_object_type",
	"taxon",
	"date",
	"assigned_by",
	"annotation_extension",
	"gene_product_form_id",
}

// loadGAF parses a GAF file into an in-memory SQLite table named gaf.
// Comment lines start with '!'. Short lines are padded so partial rows from
// older GAF versions still load.
func loadGAF(ctx context.Context, path string) (*sql.DB, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, 0, fmt.Errorf("open sqlite: %w", err)
	}
	// A shared in-memory database needs a single connection.
	db.SetMaxOpenConns(1)

	ddl := fmt.Sprintf("CREATE TABLE gaf (%s TEXT)", strings.Join(gafColumns, " TEXT, "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, 0, fmt.Errorf("create gaf table: %w", err)
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(gafColumns)), ",")
	insert := fmt.Sprintf("INSERT INTO gaf (%s) VALUES (%s)", strings.Join(gafColumns, ", "), placeholders)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return nil, 0, err
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		tx.Rollback()
		db.Close()
		return nil, 0, err
	}
	defer stmt.Close()

	rows := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		fields := strings.Split(line, "\t")
		args := make([]interface{}, len(gafColumns))
		for i := range gafColumns {
			if i < len(fields) {
				args[i] = fields[i]
			} else {
				args[i] = ""
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			db.Close()
			return nil, 0, fmt.Errorf("insert row %d: %w", rows+1, err)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		tx.Rollback()
		db.Close()
		return nil, 0, fmt.Errorf("read %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, 0, err
	}
	return db, rows, nil
}
