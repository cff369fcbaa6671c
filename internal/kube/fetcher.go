package kube

import (
	"context"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const defaultPageSize = 500

// ListFetcher issues a fresh, paginated List call across all namespaces
// for every fetch.
type ListFetcher struct {
	clientset kubernetes.Interface
	pageSize  int64
	logger    *slog.Logger
}

func NewListFetcher(cs kubernetes.Interface, logger *slog.Logger) *ListFetcher {
	return &ListFetcher{
		clientset: cs,
		pageSize:  defaultPageSize,
		logger:    logger,
	}
}

func (f *ListFetcher) FetchPods(ctx context.Context) ([]corev1.Pod, error) {
	var items []corev1.Pod
	err := paginate(ctx, f.pageSize, func(opts metav1.ListOptions) (string, error) {
		list, err := f.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return "", err
		}
		items = append(items, list.Items...)
		return list.Continue, nil
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("fetched collection", "type", "pods", "count", len(items))
	return items, nil
}

func (f *ListFetcher) FetchNodes(ctx context.Context) ([]corev1.Node, error) {
	var items []corev1.Node
	err := paginate(ctx, f.pageSize, func(opts metav1.ListOptions) (string, error) {
		list, err := f.clientset.CoreV1().Nodes().List(ctx, opts)
		if err != nil {
			return "", err
		}
		items = append(items, list.Items...)
		return list.Continue, nil
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("fetched collection", "type", "nodes", "count", len(items))
	return items, nil
}

func (f *ListFetcher) FetchServices(ctx context.Context) ([]corev1.Service, error) {
	var items []corev1.Service
	err := paginate(ctx, f.pageSize, func(opts metav1.ListOptions) (string, error) {
		list, err := f.clientset.CoreV1().Services(metav1.NamespaceAll).List(ctx, opts)
		if err != nil {
			return "", err
		}
		items = append(items, list.Items...)
		return list.Continue, nil
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("fetched collection", "type", "services", "count", len(items))
	return items, nil
}

// paginate calls page until the server stops returning a continue token.
func paginate(ctx context.Context, limit int64, page func(metav1.ListOptions) (string, error)) error {
	opts := metav1.ListOptions{Limit: limit}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := page(opts)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		opts.Continue = next
	}
}
