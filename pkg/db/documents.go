package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CERT-Polska/hsn2-console/pkg/mapreduce"
	"github.com/google/uuid"
)

// Import describes one pull or import run.
type Import struct {
	ImportID      string
	Source        string
	DocumentCount int
	CreatedAt     time.Time
}

// JobInfo summarises the snapshot contents of one job.
type JobInfo struct {
	Job       string
	Documents int
}

// ImportDocuments stores docs in a single transaction, replacing earlier
// copies with the same _id, and records the run under a new import id.
func (db *DB) ImportDocuments(source string, docs []mapreduce.Document) (*Import, error) {
	importID := uuid.New().String()

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after Commit

	if _, err := tx.Exec(`
		INSERT INTO imports (import_id, source, document_count)
		VALUES (?, ?, ?)
	`, importID, source, len(docs)); err != nil {
		return nil, fmt.Errorf("failed to record import: %w", err)
	}

	for _, doc := range docs {
		if err := upsertDocument(tx, importID, doc); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}

	return db.GetImport(importID)
}

func upsertDocument(tx *sql.Tx, importID string, doc mapreduce.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document without _id")
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", doc.ID, err)
	}

	var job sql.NullString
	if v, ok := doc.Job.Get(); ok {
		job = sql.NullString{String: v, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO documents (doc_id, job, type, body, import_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			job = excluded.job,
			type = excluded.type,
			body = excluded.body,
			import_id = excluded.import_id,
			updated_at = CURRENT_TIMESTAMP
	`, doc.ID, job, doc.Type, string(body), importID)
	if err != nil {
		return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
	}
	return nil
}

// GetImport returns one import run.
func (db *DB) GetImport(importID string) (*Import, error) {
	var imp Import
	err := db.QueryRow(`
		SELECT import_id, source, document_count, created_at
		FROM imports WHERE import_id = ?
	`, importID).Scan(&imp.ImportID, &imp.Source, &imp.DocumentCount, &imp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get import %s: %w", importID, err)
	}
	return &imp, nil
}

// ListImports returns the most recent import runs first.
func (db *DB) ListImports(limit int) ([]Import, error) {
	rows, err := db.Query(`
		SELECT import_id, source, document_count, created_at
		FROM imports
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var imports []Import
	for rows.Next() {
		var imp Import
		if err := rows.Scan(&imp.ImportID, &imp.Source, &imp.DocumentCount, &imp.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

// JobDocuments returns every stored document of a job, ordered by _id.
func (db *DB) JobDocuments(job string) ([]mapreduce.Document, error) {
	rows, err := db.Query(`
		SELECT body FROM documents
		WHERE job = ?
		ORDER BY doc_id
	`, job)
	if err != nil {
		return nil, fmt.Errorf("failed to query job %s: %w", job, err)
	}
	defer rows.Close()

	var docs []mapreduce.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var doc mapreduce.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode stored document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListJobs returns every job in the snapshot with its document count.
func (db *DB) ListJobs() ([]JobInfo, error) {
	rows, err := db.Query(`
		SELECT job, COUNT(*) FROM documents
		WHERE job IS NOT NULL
		GROUP BY job
		ORDER BY job
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []JobInfo
	for rows.Next() {
		var j JobInfo
		if err := rows.Scan(&j.Job, &j.Documents); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
