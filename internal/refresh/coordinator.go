// Package refresh fetches the cluster collections, derives the containers
// relation and commits each cycle to the snapshot store as a whole.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"

	"github.com/inelson/kubesql/internal/metrics"
	"github.com/inelson/kubesql/internal/models"
	"github.com/inelson/kubesql/internal/snapshot"
	"github.com/inelson/kubesql/pkg/api"
	"github.com/inelson/kubesql/pkg/event"
)

// Fetcher retrieves full collections from the cluster.
type Fetcher interface {
	FetchPods(ctx context.Context) ([]corev1.Pod, error)
	FetchNodes(ctx context.Context) ([]corev1.Node, error)
	FetchServices(ctx context.Context) ([]corev1.Service, error)
}

// Publisher receives refresh lifecycle events.
type Publisher interface {
	Publish(e *event.Event)
}

type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:     10 * time.Second,
		FetchTimeout: 30 * time.Second,
	}
}

type Coordinator struct {
	fetcher   Fetcher
	store     *snapshot.Store
	publisher Publisher
	config    Config
	logger    *slog.Logger

	// cycle is held for the duration of one RefreshOnce.
	cycle sync.Mutex

	cronMu sync.Mutex
	cron   *cron.Cron

	statsMu sync.RWMutex
	stats   api.RefreshStats
}

// New creates a coordinator. publisher may be nil.
func New(fetcher Fetcher, store *snapshot.Store, publisher Publisher, cfg Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
	}
}

// RefreshOnce runs one fetch, derive and commit cycle. On any error the
// previously published snapshot stays live.
func (c *Coordinator) RefreshOnce(ctx context.Context) error {
	if !c.cycle.TryLock() {
		return ErrRefreshInProgress
	}
	defer c.cycle.Unlock()

	started := time.Now()
	c.statsMu.Lock()
	c.stats.Cycles++
	c.stats.LastAttempt = started.UTC()
	c.statsMu.Unlock()

	tables, err := c.collect(ctx)
	if err != nil {
		c.fail(err)
		return err
	}

	snap, err := snapshot.Build(ctx, tables)
	if err != nil {
		c.fail(err)
		return err
	}
	c.store.Publish(snap)

	elapsed := time.Since(started)
	counts := snap.Counts()
	c.statsMu.Lock()
	c.stats.LastSuccess = snap.CreatedAt
	c.stats.LastError = ""
	c.stats.ConsecutiveFailures = 0
	c.statsMu.Unlock()
	metrics.RefreshSucceeded(elapsed, counts)

	c.logger.Info("snapshot published",
		"snapshot", snap.ID,
		"pods", counts.Pods,
		"nodes", counts.Nodes,
		"services", counts.Services,
		"containers", counts.Containers,
		"duration", elapsed,
	)
	c.publishEvent(event.TypeSnapshotPublished, event.TopicSnapshot, map[string]any{
		"snapshot":   snap.ID,
		"counts":     counts,
		"durationMs": elapsed.Milliseconds(),
	})
	return nil
}

func (c *Coordinator) collect(ctx context.Context) (models.Tables, error) {
	var (
		pods     []corev1.Pod
		nodes    []corev1.Node
		services []corev1.Service
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pods, err = fetch(gctx, c.config.FetchTimeout, models.KindPod, c.fetcher.FetchPods)
		return err
	})
	g.Go(func() (err error) {
		nodes, err = fetch(gctx, c.config.FetchTimeout, models.KindNode, c.fetcher.FetchNodes)
		return err
	})
	g.Go(func() (err error) {
		services, err = fetch(gctx, c.config.FetchTimeout, models.KindService, c.fetcher.FetchServices)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Tables{}, err
	}

	return c.buildTables(pods, nodes, services)
}

// fetch calls fn under its own timeout. A fetcher that ignores its context
// still cannot hold the cycle past the deadline.
func fetch[T any](ctx context.Context, timeout time.Duration, kind models.ResourceKind, fn func(context.Context) ([]T, error)) ([]T, error) {
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		items []T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		items, err := fn(fctx)
		done <- result{items: items, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, &FetchError{Resource: kind, Err: r.err}
		}
		return r.items, nil
	case <-fctx.Done():
		return nil, &FetchError{Resource: kind, Err: fctx.Err()}
	}
}

func (c *Coordinator) buildTables(pods []corev1.Pod, nodes []corev1.Node, services []corev1.Service) (models.Tables, error) {
	var t models.Tables
	seen := make(map[string]struct{})

	for i := range nodes {
		r, err := nodeRecord(&nodes[i])
		if err != nil {
			return models.Tables{}, err
		}
		if c.duplicate(seen, models.KindNode, r.UID) {
			continue
		}
		t.Nodes = append(t.Nodes, r)
	}

	clear(seen)
	for i := range services {
		r, err := serviceRecord(&services[i])
		if err != nil {
			return models.Tables{}, err
		}
		if c.duplicate(seen, models.KindService, r.UID) {
			continue
		}
		t.Services = append(t.Services, r)
	}

	clear(seen)
	skipped := 0
	for i := range pods {
		p := &pods[i]
		r, err := podRecord(p)
		if err != nil {
			return models.Tables{}, err
		}
		if c.duplicate(seen, models.KindPod, r.UID) {
			continue
		}
		t.Pods = append(t.Pods, r)

		containers, err := podContainers(p)
		if err != nil {
			var derr *DerivationError
			if errors.As(err, &derr) {
				skipped++
				c.logger.Debug("skipping container rows", "error", err)
				continue
			}
			return models.Tables{}, err
		}
		t.Containers = append(t.Containers, containers...)
	}
	if skipped > 0 {
		c.logger.Info("pods with misaligned container statuses skipped", "pods", skipped)
	}

	return t, nil
}

func (c *Coordinator) duplicate(seen map[string]struct{}, kind models.ResourceKind, uid string) bool {
	if _, ok := seen[uid]; ok {
		c.logger.Warn("duplicate uid dropped", "type", kind, "uid", uid)
		return true
	}
	seen[uid] = struct{}{}
	return false
}

func (c *Coordinator) fail(err error) {
	c.statsMu.Lock()
	c.stats.LastError = err.Error()
	c.stats.ConsecutiveFailures++
	failures := c.stats.ConsecutiveFailures
	c.statsMu.Unlock()

	resource := ""
	var ferr *FetchError
	if errors.As(err, &ferr) {
		resource = string(ferr.Resource)
	}
	metrics.RefreshFailed(resource)

	c.logger.Error("refresh cycle failed, keeping previous snapshot",
		"resource", resource,
		"consecutive_failures", failures,
		"error", err,
	)
	c.publishEvent(event.TypeRefreshFailed, event.TopicRefresh, map[string]string{
		"resource": resource,
		"error":    err.Error(),
	})
}

func (c *Coordinator) publishEvent(eventType, topic string, payload any) {
	if c.publisher == nil {
		return
	}
	e, err := event.New(eventType, topic, "refresh", payload)
	if err != nil {
		return
	}
	c.publisher.Publish(e)
}

// Stats describes the outcome of past cycles.
func (c *Coordinator) Stats() api.RefreshStats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// Start schedules RefreshOnce every Interval until ctx is done or Stop is
// called. A tick that fires while a cycle is still running is skipped.
func (c *Coordinator) Start(ctx context.Context) error {
	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.cron != nil {
		return errors.New("refresh scheduler already started")
	}

	l := cronLogger{logger: c.logger}
	cr := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	spec := fmt.Sprintf("@every %s", c.config.Interval)
	if _, err := cr.AddFunc(spec, func() { c.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule refresh %q: %w", spec, err)
	}
	cr.Start()
	c.cron = cr

	c.logger.Info("refresh scheduler started", "interval", c.config.Interval, "fetch_timeout", c.config.FetchTimeout)

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return nil
}

func (c *Coordinator) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := c.RefreshOnce(ctx); errors.Is(err, ErrRefreshInProgress) {
		c.logger.Debug("refresh tick skipped, cycle still running")
	}
}

// Stop halts the scheduler and waits for a running cycle to finish.
func (c *Coordinator) Stop() {
	c.cronMu.Lock()
	cr := c.cron
	c.cronMu.Unlock()
	if cr == nil {
		return
	}
	<-cr.Stop().Done()
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
