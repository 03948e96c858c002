package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pkgbigquery "github.com/angelmondragon/packfinderz-cart/pkg/bigquery"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultMaximumBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = p.InitialBackoff
	}
	return p
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows any) error
}

// BigQuerySink streams event batches into the cart events table.
type BigQuerySink struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

// NewBigQuerySink uses the client's configured cart events table when table is blank.
func NewBigQuerySink(client *pkgbigquery.Client, table string, policy RetryPolicy) (*BigQuerySink, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = client.CartEventsTable()
	}
	return newBigQuerySink(client, table, policy)
}

func newBigQuerySink(client tableInserter, table string, policy RetryPolicy) (*BigQuerySink, error) {
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("cart events table is required")
	}
	return &BigQuerySink{client: client, table: table, retry: policy.withDefaults()}, nil
}

func (s *BigQuerySink) Send(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*Row, 0, len(events))
	for _, e := range events {
		r, err := e.row()
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}
	return s.insertWithRetry(ctx, rows)
}

func (s *BigQuerySink) insertWithRetry(ctx context.Context, rows []*Row) error {
	attempts := 0
	backoff := s.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.client.InsertRows(ctx, s.table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= s.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", s.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, s.retry.MaximumBackoff)
	}
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if len(pme) == 0 {
			return false
		}
		for _, rowErr := range pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}
