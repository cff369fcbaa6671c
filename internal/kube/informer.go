package kube

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

var ErrCacheNotSynced = errors.New("informer caches not synced")

// InformerFetcher serves fetches from shared informer caches instead of
// listing on every cycle. Each fetch still returns the full collection.
type InformerFetcher struct {
	factory  informers.SharedInformerFactory
	logger   *slog.Logger
	pods     cache.Store
	nodes    cache.Store
	services cache.Store
	mu       sync.RWMutex
	ready    bool
}

func NewInformerFetcher(cs kubernetes.Interface, resync time.Duration, logger *slog.Logger) *InformerFetcher {
	return &InformerFetcher{
		factory: informers.NewSharedInformerFactory(cs, resync),
		logger:  logger,
	}
}

// Start runs the informers until ctx is done and blocks until their caches
// have synced once.
func (f *InformerFetcher) Start(ctx context.Context) error {
	f.logger.Info("starting informer caches")

	pods := f.watchResource("pods", f.factory.Core().V1().Pods().Informer())
	nodes := f.watchResource("nodes", f.factory.Core().V1().Nodes().Informer())
	services := f.watchResource("services", f.factory.Core().V1().Services().Informer())

	f.factory.Start(ctx.Done())
	if !cache.WaitForCacheSync(ctx.Done(), pods.HasSynced, nodes.HasSynced, services.HasSynced) {
		return ErrCacheNotSynced
	}

	f.mu.Lock()
	f.pods = pods.GetStore()
	f.nodes = nodes.GetStore()
	f.services = services.GetStore()
	f.ready = true
	f.mu.Unlock()
	f.logger.Info("informer caches ready")
	return nil
}

func (f *InformerFetcher) watchResource(name string, informer cache.SharedIndexInformer) cache.SharedIndexInformer {
	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    func(obj interface{}) { f.logger.Debug("resource added", "type", name) },
		UpdateFunc: func(_, _ interface{}) {},
		DeleteFunc: func(obj interface{}) { f.logger.Debug("resource deleted", "type", name) },
	})
	if err != nil {
		f.logger.Warn("failed to add event handler", "type", name, "error", err)
	}
	return informer
}

func (f *InformerFetcher) IsReady() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.ready
}

func (f *InformerFetcher) FetchPods(ctx context.Context) ([]corev1.Pod, error) {
	store, err := f.store(ctx, func() cache.Store { return f.pods })
	if err != nil {
		return nil, err
	}
	return listStore[corev1.Pod](store), nil
}

func (f *InformerFetcher) FetchNodes(ctx context.Context) ([]corev1.Node, error) {
	store, err := f.store(ctx, func() cache.Store { return f.nodes })
	if err != nil {
		return nil, err
	}
	return listStore[corev1.Node](store), nil
}

func (f *InformerFetcher) FetchServices(ctx context.Context) ([]corev1.Service, error) {
	store, err := f.store(ctx, func() cache.Store { return f.services })
	if err != nil {
		return nil, err
	}
	return listStore[corev1.Service](store), nil
}

func (f *InformerFetcher) store(ctx context.Context, pick func() cache.Store) (cache.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.ready {
		return nil, ErrCacheNotSynced
	}
	return pick(), nil
}

// listStore copies every *T held by s. The copies share nested maps and
// slices with the cache, so callers must treat them as read-only.
func listStore[T any](s cache.Store) []T {
	items := s.List()
	result := make([]T, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(*T); ok {
			result = append(result, *obj)
		}
	}
	return result
}
