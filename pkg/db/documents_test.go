package db

import (
	"testing"

	"github.com/CERT-Polska/hsn2-console/pkg/mapreduce"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database := &DB{path: ":memory:"}
	var err error
	database.DB, err = openDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Each pooled connection would get its own in-memory database.
	database.SetMaxOpenConns(1)

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return database
}

func testDocs() []mapreduce.Document {
	return []mapreduce.Document{
		{
			ID:             "obj:1",
			Type:           "url",
			Job:            mapreduce.Int(7),
			Classification: mapreduce.Some("benign"),
			Origin:         mapreduce.Some("input"),
			URLOriginal:    mapreduce.Some("http://example.com/"),
		},
		{
			ID:             "obj:2",
			Type:           "file",
			Job:            mapreduce.Int(7),
			Classification: mapreduce.Some("malicious"),
			MimeType:       mapreduce.Some("application/pdf"),
			Parent:         mapreduce.Int(1),
		},
		{
			ID:   "job:7",
			Type: "job",
			Job:  mapreduce.Int(7),
		},
		{
			ID:             "obj:3",
			Type:           "file",
			Job:            mapreduce.Int(8),
			Classification: mapreduce.Some("benign"),
		},
		{
			ID:   "orphan:1",
			Type: "file",
		},
	}
}

func TestImportDocuments(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	imp, err := db.ImportDocuments("export.json", testDocs())
	if err != nil {
		t.Fatalf("ImportDocuments() failed: %v", err)
	}
	if imp.ImportID == "" {
		t.Error("ImportDocuments() returned empty import id")
	}
	if imp.Source != "export.json" {
		t.Errorf("Source = %q, want %q", imp.Source, "export.json")
	}
	if imp.DocumentCount != 5 {
		t.Errorf("DocumentCount = %d, want 5", imp.DocumentCount)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		t.Fatalf("failed to count documents: %v", err)
	}
	if count != 5 {
		t.Errorf("stored %d documents, want 5", count)
	}
}

func TestImportDocuments_ReplacesExisting(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.ImportDocuments("first", testDocs()); err != nil {
		t.Fatalf("first import failed: %v", err)
	}

	updated := testDocs()[1]
	updated.Classification = mapreduce.Some("suspicious")
	second, err := db.ImportDocuments("second", []mapreduce.Document{updated})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}

	docs, err := db.JobDocuments("7")
	if err != nil {
		t.Fatalf("JobDocuments() failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}
	if got := docs[1].Classification.String(); got != "suspicious" {
		t.Errorf("classification = %q, want %q", got, "suspicious")
	}

	var importID string
	if err := db.QueryRow("SELECT import_id FROM documents WHERE doc_id = 'obj:2'").Scan(&importID); err != nil {
		t.Fatalf("failed to query import id: %v", err)
	}
	if importID != second.ImportID {
		t.Errorf("import_id = %q, want %q", importID, second.ImportID)
	}
}

func TestImportDocuments_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	docs := append(testDocs(), mapreduce.Document{Type: "file"})
	if _, err := db.ImportDocuments("broken", docs); err == nil {
		t.Fatal("ImportDocuments() expected error for document without _id")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		t.Fatalf("failed to count documents: %v", err)
	}
	if count != 0 {
		t.Errorf("stored %d documents after failed import, want 0", count)
	}
	imports, err := db.ListImports(10)
	if err != nil {
		t.Fatalf("ListImports() failed: %v", err)
	}
	if len(imports) != 0 {
		t.Errorf("got %d imports after failed import, want 0", len(imports))
	}
}

func TestJobDocuments_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.ImportDocuments("test", testDocs()); err != nil {
		t.Fatalf("ImportDocuments() failed: %v", err)
	}

	docs, err := db.JobDocuments("7")
	if err != nil {
		t.Fatalf("JobDocuments() failed: %v", err)
	}

	want := testDocs()[:3]
	if len(docs) != len(want) {
		t.Fatalf("got %d documents, want %d", len(docs), len(want))
	}
	for i := range want {
		if docs[i] != want[i] {
			t.Errorf("document %d = %+v, want %+v", i, docs[i], want[i])
		}
	}
	if docs[0].MimeType.Present() {
		t.Error("absent mime type should stay absent after a round trip")
	}

	none, err := db.JobDocuments("999")
	if err != nil {
		t.Fatalf("JobDocuments() failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d documents for unknown job, want 0", len(none))
	}
}

func TestListJobs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.ImportDocuments("test", testDocs()); err != nil {
		t.Fatalf("ImportDocuments() failed: %v", err)
	}

	jobs, err := db.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs() failed: %v", err)
	}

	want := []JobInfo{{Job: "7", Documents: 3}, {Job: "8", Documents: 1}}
	if len(jobs) != len(want) {
		t.Fatalf("got %d jobs, want %d", len(jobs), len(want))
	}
	for i := range want {
		if jobs[i] != want[i] {
			t.Errorf("job %d = %+v, want %+v", i, jobs[i], want[i])
		}
	}
}

func TestListImports(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for _, source := range []string{"a", "b", "c"} {
		if _, err := db.ImportDocuments(source, testDocs()[:1]); err != nil {
			t.Fatalf("ImportDocuments(%s) failed: %v", source, err)
		}
	}

	imports, err := db.ListImports(2)
	if err != nil {
		t.Fatalf("ListImports() failed: %v", err)
	}
	if len(imports) != 2 {
		t.Fatalf("got %d imports, want 2", len(imports))
	}
	if imports[0].Source != "c" || imports[1].Source != "b" {
		t.Errorf("imports = %q, %q; want c, b", imports[0].Source, imports[1].Source)
	}
}
