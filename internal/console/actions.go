package console

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/CERT-Polska/hsn2-console/models"
	"github.com/CERT-Polska/hsn2-console/pkg/couch"
	"github.com/CERT-Polska/hsn2-console/pkg/db"
	"github.com/CERT-Polska/hsn2-console/pkg/mapreduce"
	"github.com/CERT-Polska/hsn2-console/pkg/report"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

var logLevels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

func newLogger(c *cli.Context) (*slog.Logger, error) {
	level, ok := logLevels[strings.ToUpper(c.String("log-level"))]
	if !ok {
		return nil, fmt.Errorf("invalid log level %q (want DEBUG, INFO, WARN or ERROR)", c.String("log-level"))
	}
	return slog.New(slog.NewJSONHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level})), nil
}

// loadConfig reads --config, falling back to the default path and then to
// built-in defaults when the file does not exist.
func loadConfig(c *cli.Context, logger *slog.Logger) (*models.Config, error) {
	path := c.String("config")
	config, err := models.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) && path != models.DefaultConfigPath {
		logger.Warn("cannot open config file, trying default", "path", path, "default", models.DefaultConfigPath)
		config, err = models.LoadConfig(models.DefaultConfigPath)
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("no config file found, using defaults")
		config, err = models.DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	if c.IsSet("snapshot-path") {
		config.Snapshot = c.String("snapshot-path")
	}
	return config, nil
}

// env bundles what every action needs.
type env struct {
	logger *slog.Logger
	config *models.Config
}

func setup(c *cli.Context) (*env, error) {
	logger, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	config, err := loadConfig(c, logger)
	if err != nil {
		return nil, err
	}
	return &env{logger: logger, config: config}, nil
}

func (e *env) couchClient() (*couch.Client, error) {
	url := couch.ServerURL(e.config.CouchDB.Server, e.config.CouchDB.Port)
	return couch.NewClient(url, e.config.CouchDB.DB, nil)
}

func jobArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one job id, got %d arguments", c.NArg())
	}
	return c.Args().First(), nil
}

// jobDocuments loads a job from the snapshot or from CouchDB.
func (e *env) jobDocuments(c *cli.Context, job string) ([]mapreduce.Document, error) {
	if c.Bool("snapshot") {
		database, err := db.Open(e.config.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot: %w", err)
		}
		defer database.Close()
		e.logger.Debug("reading snapshot", "path", database.Path(), "job", job)
		return database.JobDocuments(job)
	}

	client, err := e.couchClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()
	e.logger.Debug("querying couchdb", "server", e.config.CouchDB.Server, "db", e.config.CouchDB.DB, "job", job)
	return client.JobDocuments(c.Context, job)
}

// runJob evaluates the views over a job's documents and logs the documents
// that could not be mapped.
func (e *env) runJob(c *cli.Context, job string, mapper func(mapreduce.Document, mapreduce.Emitter) error) (*mapreduce.Result, error) {
	docs, err := e.jobDocuments(c, job)
	if err != nil {
		return nil, err
	}
	return e.evaluate(c, job, docs, mapper)
}

func (e *env) evaluate(c *cli.Context, job string, docs []mapreduce.Document, mapper func(mapreduce.Document, mapreduce.Emitter) error) (*mapreduce.Result, error) {
	result, err := mapreduce.Run(c.Context, docs, mapreduce.Options{
		Workers:   e.config.Workers,
		BatchSize: e.config.BatchSize,
		Mapper:    mapper,
	})
	if err != nil {
		return nil, err
	}
	for _, f := range result.Failures {
		e.logger.Warn("skipping document", "id", f.DocumentID, "error", f.Err)
	}
	e.logger.Info("job evaluated", "job", job, "documents", len(docs), "objects", result.Mapped, "failures", len(result.Failures))
	return result, nil
}

func ListAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	job, err := jobArg(c)
	if err != nil {
		return err
	}

	out, _ := c.App.Writer.(*os.File)
	color, err := report.UseColor(c.String("color"), out)
	if err != nil {
		return err
	}

	result, err := e.runJob(c, job, mapreduce.Map)
	if err != nil {
		return err
	}

	opts := report.Options{
		SortBy:         c.String("sort"),
		Classification: c.String("classification"),
		Color:          color,
		Colors:         e.config.Colors,
	}
	rows := result.Rows(job)
	if c.Bool("tree") {
		return report.PrintTree(c.App.Writer, rows, opts)
	}
	return report.PrintList(c.App.Writer, rows, opts)
}

func SummaryAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	job, err := jobArg(c)
	if err != nil {
		return err
	}

	result, err := e.runJob(c, job, mapreduce.MapByType)
	if err != nil {
		return err
	}

	printed := 0
	for _, key := range result.Keys() {
		keyJob, typ, err := mapreduce.SplitTypeKey(key)
		if err != nil {
			return err
		}
		if keyJob != job {
			continue
		}
		if err := result.ReduceErrors[key]; err != nil {
			return err
		}
		if err := report.PrintSummary(c.App.Writer, typ, result.Aggregates[key]); err != nil {
			return err
		}
		printed++
	}
	if printed == 0 {
		fmt.Fprintf(c.App.ErrWriter, "No file or url objects found for job %s\n", job)
	}
	return nil
}

func DeployAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	var design *couch.DesignDoc
	if dir := c.String("directory"); dir != "" {
		design, err = couch.LoadViewDir(dir)
	} else {
		design, err = couch.DesignDocument()
	}
	if err != nil {
		return err
	}

	client, err := e.couchClient()
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Ping(c.Context); err != nil {
		return fmt.Errorf("cannot reach couchdb: %w", err)
	}

	rev, err := client.DeployViews(c.Context, design)
	if err != nil {
		return fmt.Errorf("failed to deploy views: %w", err)
	}
	e.logger.Info("views deployed", "id", design.ID, "rev", rev, "views", len(design.Views))
	fmt.Fprintf(c.App.Writer, "Deployed %s (%d views) at revision %s\n", design.ID, len(design.Views), rev)
	return nil
}

func PullAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	job, err := jobArg(c)
	if err != nil {
		return err
	}

	client, err := e.couchClient()
	if err != nil {
		return err
	}
	defer client.Close()
	docs, err := client.JobDocuments(c.Context, job)
	if err != nil {
		return err
	}

	return e.store(c, "couchdb:"+e.config.CouchDB.DB+"/job/"+job, docs, 0)
}

func ImportAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one export file, got %d arguments", c.NArg())
	}
	path := c.Args().First()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}
	docs, err := ParseExport(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return e.store(c, path, docs, uint64(len(data)))
}

func (e *env) store(c *cli.Context, source string, docs []mapreduce.Document, size uint64) error {
	database, err := db.Open(e.config.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer database.Close()

	imp, err := database.ImportDocuments(source, docs)
	if err != nil {
		return err
	}
	e.logger.Info("documents stored", "import_id", imp.ImportID, "source", source, "documents", imp.DocumentCount)

	msg := fmt.Sprintf("Stored %s documents", humanize.Comma(int64(imp.DocumentCount)))
	if size > 0 {
		msg += fmt.Sprintf(" (%s)", humanize.Bytes(size))
	}
	fmt.Fprintf(c.App.Writer, "%s in %s [import %s]\n", msg, database.Path(), imp.ImportID)
	return nil
}

func JobsAction(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	database, err := db.Open(e.config.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer database.Close()

	jobs, err := database.ListJobs()
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(c.App.Writer, "No jobs in snapshot")
		return nil
	}

	top := c.Int("top")
	fmt.Fprintf(c.App.Writer, "%-12s %-10s %s\n", "Job", "Documents", "Top classifications")
	fmt.Fprintln(c.App.Writer, strings.Repeat("-", 43))
	for _, j := range jobs {
		docs, err := database.JobDocuments(j.Job)
		if err != nil {
			return err
		}
		result, err := e.evaluate(c, j.Job, docs, mapreduce.Map)
		if err != nil {
			return err
		}
		if err := result.ReduceErrors[j.Job]; err != nil {
			e.logger.Warn("cannot count classifications", "job", j.Job, "error", err)
		}
		classes := mapreduce.TopClassifications(result.Aggregates[j.Job], top)
		fmt.Fprintf(c.App.Writer, "%-12s %-10s %s\n", j.Job, humanize.Comma(int64(j.Documents)), strings.Join(classes, " "))
	}

	imports, err := database.ListImports(1)
	if err != nil {
		return err
	}
	if len(imports) > 0 {
		fmt.Fprintf(c.App.Writer, "\nLast import: %s from %s (%s)\n",
			imports[0].ImportID, imports[0].Source, humanize.Time(imports[0].CreatedAt))
	}
	return nil
}
