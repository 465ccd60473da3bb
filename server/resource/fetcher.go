// Package resource builds the upstream fetch functions the cache wrapper
// consumes: list/detail queries against a cluster's Kubernetes API server.
package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
)

var (
	gatewayGVR        = schema.GroupVersionResource{Group: "networking.istio.io", Version: "v1beta1", Resource: "gateways"}
	virtualServiceGVR = schema.GroupVersionResource{Group: "networking.istio.io", Version: "v1beta1", Resource: "virtualservices"}
)

// ClusterClients holds the API clients for one control plane.
type ClusterClients struct {
	Kube    kubernetes.Interface
	Dynamic dynamic.Interface
}

// Registry maps cluster names to their API clients.
type Registry struct {
	mu       sync.RWMutex
	clusters map[string]*ClusterClients
}

func NewRegistry() *Registry {
	return &Registry{clusters: make(map[string]*ClusterClients)}
}

func (r *Registry) Add(name string, clients *ClusterClients) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clusters[name] = clients
}

func (r *Registry) Get(name string) (*ClusterClients, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients, ok := r.clusters[name]
	if !ok {
		return nil, fmt.Errorf("unknown cluster %q", name)
	}
	return clients, nil
}

// WorkloadSummary is the dashboard row for a workload list query.
type WorkloadSummary struct {
	Name          string    `json:"name"`
	Namespace     string    `json:"namespace"`
	Kind          string    `json:"kind"`
	Replicas      int32     `json:"replicas"`
	ReadyReplicas int32     `json:"readyReplicas"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PodSummary is the dashboard row for a pod list query.
type PodSummary struct {
	Name      string    `json:"name"`
	Namespace string    `json:"namespace"`
	Phase     string    `json:"phase"`
	NodeName  string    `json:"nodeName"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventSummary is the dashboard row for an event list query.
type EventSummary struct {
	Type           string    `json:"type"`
	Reason         string    `json:"reason"`
	Message        string    `json:"message"`
	InvolvedObject string    `json:"involvedObject"`
	Count          int32     `json:"count"`
	LastSeen       time.Time `json:"lastSeen"`
}

// RoutingObject is the dashboard row for a mesh routing object query.
type RoutingObject struct {
	Name      string    `json:"name"`
	Namespace string    `json:"namespace"`
	Kind      string    `json:"kind"`
	Hosts     []string  `json:"hosts"`
	CreatedAt time.Time `json:"createdAt"`
}

// Fetcher produces the fetch closures handed to the cache wrapper. Each
// closure performs exactly one upstream query and never touches the cache.
type Fetcher struct {
	clients *ClusterClients
}

func NewFetcher(clients *ClusterClients) *Fetcher {
	return &Fetcher{clients: clients}
}

// Workloads lists deployments in the namespace (all namespaces when empty).
func (f *Fetcher) Workloads(namespace string) func(ctx context.Context) ([]WorkloadSummary, error) {
	return func(ctx context.Context) ([]WorkloadSummary, error) {
		deployments, err := f.clients.Kube.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list deployments: %w", err)
		}
		summaries := make([]WorkloadSummary, 0, len(deployments.Items))
		for _, d := range deployments.Items {
			replicas := int32(1)
			if d.Spec.Replicas != nil {
				replicas = *d.Spec.Replicas
			}
			summaries = append(summaries, WorkloadSummary{
				Name:          d.Name,
				Namespace:     d.Namespace,
				Kind:          "Deployment",
				Replicas:      replicas,
				ReadyReplicas: d.Status.ReadyReplicas,
				CreatedAt:     d.CreationTimestamp.Time,
			})
		}
		return summaries, nil
	}
}

// Pods lists pods in the namespace.
func (f *Fetcher) Pods(namespace string) func(ctx context.Context) ([]PodSummary, error) {
	return func(ctx context.Context) ([]PodSummary, error) {
		pods, err := f.clients.Kube.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list pods: %w", err)
		}
		summaries := make([]PodSummary, 0, len(pods.Items))
		for _, p := range pods.Items {
			summaries = append(summaries, PodSummary{
				Name:      p.Name,
				Namespace: p.Namespace,
				Phase:     string(p.Status.Phase),
				NodeName:  p.Spec.NodeName,
				CreatedAt: p.CreationTimestamp.Time,
			})
		}
		return summaries, nil
	}
}

// Events lists events in the namespace.
func (f *Fetcher) Events(namespace string) func(ctx context.Context) ([]EventSummary, error) {
	return func(ctx context.Context) ([]EventSummary, error) {
		events, err := f.clients.Kube.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}
		summaries := make([]EventSummary, 0, len(events.Items))
		for _, e := range events.Items {
			summaries = append(summaries, EventSummary{
				Type:           e.Type,
				Reason:         e.Reason,
				Message:        e.Message,
				InvolvedObject: fmt.Sprintf("%s/%s", e.InvolvedObject.Kind, e.InvolvedObject.Name),
				Count:          e.Count,
				LastSeen:       e.LastTimestamp.Time,
			})
		}
		return summaries, nil
	}
}

// Gateways lists Istio gateways in the namespace.
func (f *Fetcher) Gateways(namespace string) func(ctx context.Context) ([]RoutingObject, error) {
	return f.routingObjects(gatewayGVR, "Gateway", namespace, "servers")
}

// VirtualServices lists Istio virtual services in the namespace.
func (f *Fetcher) VirtualServices(namespace string) func(ctx context.Context) ([]RoutingObject, error) {
	return f.routingObjects(virtualServiceGVR, "VirtualService", namespace, "hosts")
}

func (f *Fetcher) routingObjects(gvr schema.GroupVersionResource, kind, namespace, hostsField string) func(ctx context.Context) ([]RoutingObject, error) {
	return func(ctx context.Context) ([]RoutingObject, error) {
		list, err := f.clients.Dynamic.Resource(gvr).Namespace(namespace).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s objects: %w", kind, err)
		}
		objects := make([]RoutingObject, 0, len(list.Items))
		for _, item := range list.Items {
			objects = append(objects, RoutingObject{
				Name:      item.GetName(),
				Namespace: item.GetNamespace(),
				Kind:      kind,
				Hosts:     routingHosts(&item, hostsField),
				CreatedAt: item.GetCreationTimestamp().Time,
			})
		}
		return objects, nil
	}
}

// routingHosts extracts spec hosts from a routing object. Gateways nest hosts
// under spec.servers[].hosts; virtual services carry spec.hosts directly.
func routingHosts(obj *unstructured.Unstructured, field string) []string {
	var hosts []string
	if field == "hosts" {
		hosts, _, _ = unstructured.NestedStringSlice(obj.Object, "spec", "hosts")
		return hosts
	}
	servers, _, _ := unstructured.NestedSlice(obj.Object, "spec", "servers")
	for _, server := range servers {
		serverMap, ok := server.(map[string]any)
		if !ok {
			continue
		}
		serverHosts, _, _ := unstructured.NestedStringSlice(serverMap, "hosts")
		hosts = append(hosts, serverHosts...)
	}
	return hosts
}
