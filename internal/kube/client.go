// Package kube fetches full pod, node and service collections from the
// Kubernetes API server.
package kube

import (
	"fmt"
	"log/slog"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ClientOptions selects how the API server is reached. With both fields
// empty the in-cluster config is tried first, then ~/.kube/config.
type ClientOptions struct {
	APIServer  string
	Kubeconfig string
}

func NewClientset(opts ClientOptions, logger *slog.Logger) (kubernetes.Interface, error) {
	config, err := restConfig(opts)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8s clientset: %w", err)
	}
	logger.Info("kubernetes client ready", "api_server", config.Host)
	return clientset, nil
}

func restConfig(opts ClientOptions) (*rest.Config, error) {
	if opts.APIServer != "" || opts.Kubeconfig != "" {
		config, err := clientcmd.BuildConfigFromFlags(opts.APIServer, opts.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build k8s config: %w", err)
		}
		return config, nil
	}

	config, err := rest.InClusterConfig()
	if err != nil {
		config, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to build k8s config: %w", err)
		}
	}
	return config, nil
}
