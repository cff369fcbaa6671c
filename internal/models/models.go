package models

import "github.com/inelson/kubesql/pkg/api"

// Document is a schema-less sub-document of a Kubernetes object
// (metadata, spec or status) in its unstructured JSON form.
type Document map[string]any

type ResourceKind string

const (
	KindPod     ResourceKind = "pods"
	KindNode    ResourceKind = "nodes"
	KindService ResourceKind = "services"
)

// ResourceRecord is one row of the pods, nodes or services table.
// Name is only populated for nodes and services, Node only for pods.
type ResourceRecord struct {
	UID      string   `json:"uid" db:"uid"`
	Name     string   `json:"name,omitempty" db:"name"`
	Node     string   `json:"node,omitempty" db:"node"`
	Metadata Document `json:"metadata" db:"metadata"`
	Spec     Document `json:"spec" db:"spec"`
	Status   Document `json:"status" db:"status"`
}

// ContainerRecord is one row of the derived containers table. UID is the
// owning pod's uid, so several rows share it.
type ContainerRecord struct {
	Image    string `json:"image" db:"image"`
	UID      string `json:"uid" db:"uid"`
	Restarts int64  `json:"restarts" db:"restarts"`
}

// Tables is the full content of one snapshot.
type Tables struct {
	Pods       []ResourceRecord
	Nodes      []ResourceRecord
	Services   []ResourceRecord
	Containers []ContainerRecord
}

func (t *Tables) Counts() api.TableCounts {
	return api.TableCounts{
		Pods:       len(t.Pods),
		Nodes:      len(t.Nodes),
		Services:   len(t.Services),
		Containers: len(t.Containers),
	}
}
