package refresh

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/inelson/kubesql/internal/models"
)

// documents converts a typed object to its unstructured form and splits
// out the metadata, spec and status sub-documents.
func documents(obj any) (metadata, spec, status models.Document, err error) {
	u, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, nil, nil, err
	}
	return subDocument(u, "metadata"), subDocument(u, "spec"), subDocument(u, "status"), nil
}

func subDocument(u map[string]any, key string) models.Document {
	if m, ok := u[key].(map[string]any); ok {
		return models.Document(m)
	}
	return models.Document{}
}

func nodeRecord(n *corev1.Node) (models.ResourceRecord, error) {
	metadata, spec, status, err := documents(n)
	if err != nil {
		return models.ResourceRecord{}, fmt.Errorf("convert node %s: %w", n.Name, err)
	}
	return models.ResourceRecord{
		UID:      string(n.UID),
		Name:     n.Name,
		Metadata: metadata,
		Spec:     spec,
		Status:   status,
	}, nil
}

func serviceRecord(s *corev1.Service) (models.ResourceRecord, error) {
	metadata, spec, status, err := documents(s)
	if err != nil {
		return models.ResourceRecord{}, fmt.Errorf("convert service %s/%s: %w", s.Namespace, s.Name, err)
	}
	return models.ResourceRecord{
		UID:      string(s.UID),
		Name:     s.Name,
		Metadata: metadata,
		Spec:     spec,
		Status:   status,
	}, nil
}

func podRecord(p *corev1.Pod) (models.ResourceRecord, error) {
	metadata, spec, status, err := documents(p)
	if err != nil {
		return models.ResourceRecord{}, fmt.Errorf("convert pod %s/%s: %w", p.Namespace, p.Name, err)
	}
	return models.ResourceRecord{
		UID:      string(p.UID),
		Node:     p.Spec.NodeName,
		Metadata: metadata,
		Spec:     spec,
		Status:   status,
	}, nil
}

// podContainers pairs spec.containers[i] with status.containerStatuses[i].
// Arrays of different length yield a DerivationError and no rows.
func podContainers(p *corev1.Pod) ([]models.ContainerRecord, error) {
	specs := p.Spec.Containers
	statuses := p.Status.ContainerStatuses
	if len(specs) != len(statuses) {
		return nil, &DerivationError{
			PodUID:     string(p.UID),
			Pod:        p.Namespace + "/" + p.Name,
			Containers: len(specs),
			Statuses:   len(statuses),
		}
	}

	records := make([]models.ContainerRecord, 0, len(specs))
	for i, c := range specs {
		records = append(records, models.ContainerRecord{
			Image:    c.Image,
			UID:      string(p.UID),
			Restarts: max(int64(statuses[i].RestartCount), 0),
		})
	}
	return records, nil
}
