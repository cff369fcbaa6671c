// Package query runs SQL against the live snapshot and converts the rows
// into the tabular result both front-ends render.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/inelson/kubesql/internal/engine"
	"github.com/inelson/kubesql/internal/metrics"
	"github.com/inelson/kubesql/internal/snapshot"
	"github.com/inelson/kubesql/pkg/api"
)

var errEmptyQuery = errors.New("empty query")

// QueryError wraps a malformed query or an engine failure. Its message is
// the engine's message.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

type Facade struct {
	store  *snapshot.Store
	logger *slog.Logger
}

func New(store *snapshot.Store, logger *slog.Logger) *Facade {
	return &Facade{store: store, logger: logger}
}

// Execute runs q against the snapshot that is live when it is called. A
// refresh publishing mid-query does not affect the rows returned.
func (f *Facade) Execute(ctx context.Context, q string) (*api.QueryResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, &QueryError{Query: q, Err: errEmptyQuery}
	}

	snap, err := f.store.Acquire()
	if err != nil {
		return nil, &QueryError{Query: q, Err: err}
	}
	defer snap.Release()

	started := time.Now()
	res, err := snap.Query(ctx, q)
	metrics.QueryExecuted(time.Since(started), err)
	if err != nil {
		f.logger.Debug("query failed", "snapshot", snap.ID, "error", err)
		return nil, &QueryError{Query: q, Err: err}
	}
	f.logger.Debug("query executed", "snapshot", snap.ID, "rows", len(res.Rows), "duration", time.Since(started))

	return convert(res), nil
}

func convert(res *engine.Result) *api.QueryResult {
	out := &api.QueryResult{
		Headers: res.Columns,
		Data:    make([][]any, 0, len(res.Rows)),
	}
	for _, row := range res.Rows {
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = convertValue(res.Types[i], v)
		}
		out.Data = append(out.Data, values)
	}
	return out
}

// convertValue turns JSON document columns back into nested values.
// Anything that does not decode is returned as stored.
func convertValue(declType string, v any) any {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(declType, "JSON") {
		return v
	}
	var doc any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return v
	}
	return doc
}
