package kube

import (
	"context"
	"errors"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/tools/cache"
)

func TestInformerFetcher_NotReady(t *testing.T) {
	cs := fake.NewSimpleClientset()
	f := NewInformerFetcher(cs, 0, testLogger())

	if f.IsReady() {
		t.Error("fetcher should not be ready before Start")
	}
	if _, err := f.FetchPods(context.Background()); !errors.Is(err, ErrCacheNotSynced) {
		t.Errorf("expected ErrCacheNotSynced, got %v", err)
	}
	if _, err := f.FetchNodes(context.Background()); !errors.Is(err, ErrCacheNotSynced) {
		t.Errorf("expected ErrCacheNotSynced, got %v", err)
	}
	if _, err := f.FetchServices(context.Background()); !errors.Is(err, ErrCacheNotSynced) {
		t.Errorf("expected ErrCacheNotSynced, got %v", err)
	}
}

func TestInformerFetcher_FromStores(t *testing.T) {
	cs := fake.NewSimpleClientset()
	f := NewInformerFetcher(cs, 0, testLogger())

	pods := cache.NewStore(cache.MetaNamespaceKeyFunc)
	pods.Add(&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "pod-1", Namespace: "default", UID: "p1"}})
	pods.Add(&corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "pod-2", Namespace: "default", UID: "p2"}})
	nodes := cache.NewStore(cache.MetaNamespaceKeyFunc)
	nodes.Add(&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node-1", UID: "n1"}})
	services := cache.NewStore(cache.MetaNamespaceKeyFunc)

	f.mu.Lock()
	f.pods, f.nodes, f.services = pods, nodes, services
	f.ready = true
	f.mu.Unlock()

	gotPods, err := f.FetchPods(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotPods) != 2 {
		t.Errorf("expected 2 pods, got %d", len(gotPods))
	}

	gotNodes, err := f.FetchNodes(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotNodes) != 1 || gotNodes[0].Name != "node-1" {
		t.Errorf("expected node-1, got %+v", gotNodes)
	}

	gotServices, err := f.FetchServices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotServices) != 0 {
		t.Errorf("expected no services, got %d", len(gotServices))
	}
}

func TestInformerFetcher_Start(t *testing.T) {
	cs := fake.NewSimpleClientset(testObjects()...)
	f := NewInformerFetcher(cs, 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := f.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !f.IsReady() {
		t.Fatal("fetcher should be ready after Start")
	}

	pods, err := f.FetchPods(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pods) != 2 {
		t.Errorf("expected 2 pods, got %d", len(pods))
	}
}

func TestInformerFetcher_CanceledContext(t *testing.T) {
	cs := fake.NewSimpleClientset()
	f := NewInformerFetcher(cs, 0, testLogger())
	f.mu.Lock()
	f.ready = true
	f.nodes = cache.NewStore(cache.MetaNamespaceKeyFunc)
	f.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.FetchNodes(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
