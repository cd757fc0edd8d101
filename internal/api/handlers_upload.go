package api

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
)

const maxUploadBytes = 32 << 20 // 32 MiB

var identifierChars = regexp.MustCompile(`[^a-z0-9_]+`)

// handleUpload ingests a CSV file as a new table on the write pool and
// invalidates the schema cache so the table becomes queryable immediately.
// All columns are stored as TEXT; SQLite's flexible typing makes aggregates
// on numeric-looking text work well enough for exploration.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domain.ErrValidation("file form field is required: %v", err))
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		writeError(w, domain.ErrValidation("only CSV files are allowed"))
		return
	}

	tableName := sanitizeIdentifier(strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename)))
	if tableName == "" {
		tableName = "uploaded_data"
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	rawHeader, err := reader.Read()
	if err != nil {
		writeError(w, domain.ErrValidation("read CSV header: %v", err))
		return
	}
	columns := make([]string, len(rawHeader))
	for i, name := range rawHeader {
		col := sanitizeIdentifier(name)
		if col == "" {
			col = fmt.Sprintf("column_%d", i+1)
		}
		columns[i] = col
	}

	rowCount, err := s.ingestCSV(r, tableName, columns, reader)
	if err != nil {
		writeError(w, err)
		return
	}

	s.schemas.Invalidate()
	s.logger.Info("csv uploaded",
		"user_id", p.ID,
		"table", tableName,
		"rows", rowCount,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Successfully uploaded %q to table %q", header.Filename, tableName),
		"table":   tableName,
		"rows":    rowCount,
		"columns": columns,
	})
}

// ingestCSV replaces the target table and loads every record in one
// transaction. Uploading the same file twice replaces the data, matching
// what an analyst iterating on an export expects.
func (s *Server) ingestCSV(r *http.Request, tableName string, columns []string, reader *csv.Reader) (int, error) {
	quotedCols := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quotedCols[i] = fmt.Sprintf("%q", col)
		placeholders[i] = "?"
	}

	tx, err := s.writeDB.BeginTx(r.Context(), nil)
	if err != nil {
		return 0, domain.ErrExecution("begin upload transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", tableName)); err != nil {
		return 0, domain.ErrExecution("replace table: %v", err)
	}
	createStmt := fmt.Sprintf("CREATE TABLE %q (%s TEXT)", tableName, strings.Join(quotedCols, " TEXT, "))
	if _, err := tx.Exec(createStmt); err != nil {
		return 0, domain.ErrExecution("create table: %v", err)
	}

	insertStmt, err := tx.Prepare(fmt.Sprintf(
		"INSERT INTO %q (%s) VALUES (%s)",
		tableName, strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "),
	))
	if err != nil {
		return 0, domain.ErrExecution("prepare insert: %v", err)
	}
	defer insertStmt.Close()

	rowCount := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, domain.ErrValidation("read CSV row %d: %v", rowCount+1, err)
		}

		values := make([]any, len(columns))
		for i := range columns {
			if i < len(record) {
				values[i] = record[i]
			} else {
				values[i] = ""
			}
		}
		if _, err := insertStmt.Exec(values...); err != nil {
			return 0, domain.ErrExecution("insert row %d: %v", rowCount+1, err)
		}
		rowCount++
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.ErrExecution("commit upload: %v", err)
	}
	return rowCount, nil
}

// sanitizeIdentifier lowercases and strips everything outside [a-z0-9_],
// then trims leading digits so the result is a valid bare identifier.
func sanitizeIdentifier(name string) string {
	s := identifierChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	s = strings.Trim(s, "_")
	for len(s) > 0 && s[0] >= '0' && s[0] <= '9' {
		s = s[1:]
	}
	return s
}
