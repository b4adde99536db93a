// Package couch is a small CouchDB client covering what the console needs:
// reading a job's documents and deploying the _design/hr views.
package couch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/couchdb"

	"github.com/CERT-Polska/hsn2-console/pkg/mapreduce"
)

const DefaultPageSize = 500

// Client talks to one CouchDB database.
type Client struct {
	server   *kivik.Client
	db       *kivik.DB
	PageSize int
}

// NewClient returns a client for database on the server at baseURL.
// A nil httpClient gets a client with a 30s timeout.
func NewClient(baseURL, database string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid couchdb url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid couchdb url %q: scheme must be http or https", baseURL)
	}
	if database == "" {
		return nil, fmt.Errorf("couchdb database name is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// HSN2 runs CouchDB releases that do not accept gzip request bodies.
	server, err := kivik.New("couch", strings.TrimSuffix(baseURL, "/"),
		couchdb.OptionHTTPClient(httpClient),
		couchdb.OptionNoRequestCompression(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create couchdb client: %w", err)
	}
	return &Client{
		server:   server,
		db:       server.DB(database),
		PageSize: DefaultPageSize,
	}, nil
}

// ServerURL returns "http://<server>:<port>/".
func ServerURL(server string, port int) string {
	return fmt.Sprintf("http://%s:%d/", server, port)
}

// Close releases the connections held by the client.
func (c *Client) Close() error {
	return c.server.Close()
}

// Ping checks that the server is up.
func (c *Client) Ping(ctx context.Context) error {
	up, err := c.server.Ping(ctx)
	if err != nil {
		return err
	}
	if !up {
		return fmt.Errorf("couchdb at %s is not up", c.server.DSN())
	}
	return nil
}

type findRequest struct {
	Selector map[string]interface{} `json:"selector"`
	Limit    int                    `json:"limit"`
	Bookmark string                 `json:"bookmark,omitempty"`
}

// jobSelector matches the job id written either as a string or a number.
func jobSelector(job string) map[string]interface{} {
	alternatives := []interface{}{map[string]interface{}{"job": job}}
	if n, err := strconv.ParseInt(job, 10, 64); err == nil {
		alternatives = append(alternatives, map[string]interface{}{"job": n})
	}
	return map[string]interface{}{"$or": alternatives}
}

// JobDocuments returns every document whose job field equals job.
func (c *Client) JobDocuments(ctx context.Context, job string) ([]mapreduce.Document, error) {
	limit := c.PageSize
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var docs []mapreduce.Document
	req := findRequest{Selector: jobSelector(job), Limit: limit}
	for {
		page, bookmark, err := c.findPage(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to query job %s: %w", job, err)
		}
		docs = append(docs, page...)
		if len(page) < limit || bookmark == "" || bookmark == req.Bookmark {
			return docs, nil
		}
		req.Bookmark = bookmark
	}
}

func (c *Client) findPage(ctx context.Context, req findRequest) ([]mapreduce.Document, string, error) {
	rs := c.db.Find(ctx, req)
	defer rs.Close()

	var page []mapreduce.Document
	for rs.Next() {
		var doc mapreduce.Document
		if err := rs.ScanDoc(&doc); err != nil {
			return nil, "", err
		}
		page = append(page, doc)
	}
	if err := rs.Err(); err != nil {
		return nil, "", err
	}
	meta, err := rs.Metadata()
	if err != nil {
		return nil, "", err
	}
	return page, meta.Bookmark, nil
}

// DeployViews saves design. When a design document already exists its
// current revision is fetched and the save retried once.
func (c *Client) DeployViews(ctx context.Context, design *DesignDoc) (string, error) {
	rev, err := c.db.Put(ctx, design.ID, design)
	if err == nil {
		return rev, nil
	}
	if kivik.HTTPStatus(err) != http.StatusConflict {
		return "", err
	}

	current, err := c.db.GetRev(ctx, design.ID)
	if err != nil {
		return "", fmt.Errorf("failed to read current %s: %w", design.ID, err)
	}

	retry := *design
	retry.Rev = current
	return c.db.Put(ctx, retry.ID, &retry)
}
