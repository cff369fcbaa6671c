// Package snapshot holds the live, immutable view of the cluster and
// swaps it atomically when a refresh cycle commits a new one.
package snapshot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/inelson/kubesql/internal/engine"
	"github.com/inelson/kubesql/internal/models"
	"github.com/inelson/kubesql/pkg/api"
)

// Snapshot is one consistent bundle of the four tables. Neither the Go-side
// rows nor the engine tables change after Build returns.
type Snapshot struct {
	ID        string
	CreatedAt time.Time

	tables models.Tables
	db     *engine.DB

	// refs counts the store's reference plus every reader holding the
	// snapshot. The engine is closed when it drops to zero.
	refs atomic.Int64
}

// Build loads tables into a fresh engine database. The caller owns the
// returned snapshot until it is published or released.
func Build(ctx context.Context, tables models.Tables) (*Snapshot, error) {
	db, err := engine.Load(ctx, &tables)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	s := &Snapshot{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		tables:    tables,
		db:        db,
	}
	s.refs.Store(1)
	return s, nil
}

// Empty builds a snapshot with no rows in any table.
func Empty(ctx context.Context) (*Snapshot, error) {
	return Build(ctx, models.Tables{})
}

// Query runs a read-only statement against this snapshot's tables. The
// caller must hold a reference obtained from Store.Acquire.
func (s *Snapshot) Query(ctx context.Context, query string) (*engine.Result, error) {
	return s.db.Query(ctx, query)
}

// The slices returned below are shared and must not be modified.

func (s *Snapshot) Pods() []models.ResourceRecord        { return s.tables.Pods }
func (s *Snapshot) Nodes() []models.ResourceRecord       { return s.tables.Nodes }
func (s *Snapshot) Services() []models.ResourceRecord    { return s.tables.Services }
func (s *Snapshot) Containers() []models.ContainerRecord { return s.tables.Containers }

func (s *Snapshot) Counts() api.TableCounts {
	return s.tables.Counts()
}

func (s *Snapshot) tryAcquire() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops one reference. The last release closes the engine.
func (s *Snapshot) Release() {
	if s.refs.Add(-1) == 0 {
		s.db.Close()
	}
}

// Closed reports whether the engine behind s has been released for good.
func (s *Snapshot) Closed() bool {
	return s.refs.Load() <= 0
}
