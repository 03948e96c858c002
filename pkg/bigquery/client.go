package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

// CartEventsSchema is the layout of the cart events table. Rows are
// partitioned by day on occurred_at and clustered for per-session reads.
var CartEventsSchema = bigquery.Schema{
	{Name: "event_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: bigquery.StringFieldType, Required: true},
	{Name: "session_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "user_id", Type: bigquery.StringFieldType},
	{Name: "product_id", Type: bigquery.StringFieldType},
	{Name: "quantity", Type: bigquery.IntegerFieldType},
	{Name: "previous_quantity", Type: bigquery.IntegerFieldType},
	{Name: "value", Type: bigquery.FloatFieldType},
	{Name: "cart_total", Type: bigquery.FloatFieldType, Required: true},
	{Name: "cart_item_count", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "occurred_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "metadata", Type: bigquery.JSONFieldType},
}

type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	cfg     config.BigQueryConfig
	logg    *logger.Logger
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// NewClient connects to BigQuery and checks the dataset and cart events
// table, creating the table when cfg.CreateTables is set.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	if strings.TrimSpace(cfg.CartEventsTable) == "" {
		return nil, errTableNameRequired
	}
	if logg == nil {
		logg = logger.Nop()
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	client := &Client{
		client:  bqClient,
		dataset: bqClient.Dataset(datasetID),
		cfg:     cfg,
		logg:    logg,
	}
	if err := client.ensureCartEventsTable(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"dataset": datasetID,
		"table":   client.CartEventsTable(),
	}), "bigquery client initialized")
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

// CartEventsTableMetadata describes the table created when CreateTables is on.
func CartEventsTableMetadata() *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Description: "Cart lifecycle events",
		Schema:      CartEventsSchema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "occurred_at",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"session_id", "event_type"}},
	}
}

func (c *Client) ensureCartEventsTable(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}

	name := c.CartEventsTable()
	table := c.dataset.Table(name)
	_, err := table.Metadata(ctx)
	switch {
	case err == nil:
		return nil
	case !isNotFound(err):
		return fmt.Errorf("checking table %q: %w", name, err)
	case !c.cfg.CreateTables:
		return fmt.Errorf("table %q does not exist", name)
	}

	if err := table.Create(ctx, CartEventsTableMetadata()); err != nil && !isConflict(err) {
		return fmt.Errorf("creating table %q: %w", name, err)
	}
	c.logg.Info(c.logg.WithField(ctx, "table", name), "bigquery cart events table created")
	return nil
}

// Ping verifies the dataset and cart events table are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()
	if _, err := c.dataset.Table(c.CartEventsTable()).Metadata(ctx); err != nil {
		return fmt.Errorf("checking table %q: %w", c.CartEventsTable(), err)
	}
	return nil
}

// InsertRows streams rows into the given table of the configured dataset.
func (c *Client) InsertRows(ctx context.Context, table string, rows any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	if strings.TrimSpace(table) == "" {
		return errTableNameRequired
	}
	if rows == nil {
		return nil
	}
	return c.dataset.Table(strings.TrimSpace(table)).Inserter().Put(ctx, rows)
}

func (c *Client) CartEventsTable() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.cfg.CartEventsTable)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	return apiStatus(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return apiStatus(err) == http.StatusConflict
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code
	}
	return 0
}
