package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ListNodesTool lists cluster nodes with their conditions.
type ListNodesTool struct {
	kube kubernetes.Interface
}

func (t *ListNodesTool) Name() string { return "list_nodes" }

func (t *ListNodesTool) Description() string {
	return "List cluster nodes with readiness, pressure conditions, kubelet version, and capacity."
}

func (t *ListNodesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ListNodesTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	nodes, err := t.kube.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}

	type nodeSummary struct {
		Name           string   `json:"name"`
		Ready          bool     `json:"ready"`
		Problems       []string `json:"problems,omitempty"`
		KubeletVersion string   `json:"kubeletVersion"`
		CPU            string   `json:"cpu"`
		Memory         string   `json:"memory"`
	}

	summaries := make([]nodeSummary, 0, len(nodes.Items))
	notReady := 0
	for i := range nodes.Items {
		node := &nodes.Items[i]
		s := nodeSummary{
			Name:           node.Name,
			KubeletVersion: node.Status.NodeInfo.KubeletVersion,
			CPU:            node.Status.Capacity.Cpu().String(),
			Memory:         node.Status.Capacity.Memory().String(),
		}
		for _, c := range node.Status.Conditions {
			if c.Type == corev1.NodeReady {
				s.Ready = c.Status == corev1.ConditionTrue
				continue
			}
			// Pressure and availability conditions are problems when true.
			if c.Status == corev1.ConditionTrue {
				s.Problems = append(s.Problems, string(c.Type))
			}
		}
		if !s.Ready {
			notReady++
		}
		summaries = append(summaries, s)
	}

	return &Result{
		Success: true,
		Data:    summaries,
		Summary: fmt.Sprintf("%d nodes, %d not ready", len(summaries), notReady),
	}, nil
}

// DescribeNodeTool returns detailed state for a single node.
type DescribeNodeTool struct {
	kube kubernetes.Interface
}

func (t *DescribeNodeTool) Name() string { return "describe_node" }

func (t *DescribeNodeTool) Description() string {
	return "Get detailed information about a node: conditions with messages, taints, allocatable resources, and system info."
}

func (t *DescribeNodeTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the node",
			},
		},
		"required": []string{"name"},
	}
}

func (t *DescribeNodeTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	node, err := t.kube.CoreV1().Nodes().Get(ctx, params.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting node %s: %w", params.Name, err)
	}

	conditions := make([]map[string]string, 0, len(node.Status.Conditions))
	for _, c := range node.Status.Conditions {
		conditions = append(conditions, map[string]string{
			"type":    string(c.Type),
			"status":  string(c.Status),
			"reason":  c.Reason,
			"message": c.Message,
		})
	}

	taints := make([]string, 0, len(node.Spec.Taints))
	for _, taint := range node.Spec.Taints {
		taints = append(taints, fmt.Sprintf("%s=%s:%s", taint.Key, taint.Value, taint.Effect))
	}

	return &Result{
		Success: true,
		Data: map[string]interface{}{
			"name":          node.Name,
			"labels":        node.Labels,
			"conditions":    conditions,
			"taints":        taints,
			"unschedulable": node.Spec.Unschedulable,
			"allocatable": map[string]string{
				"cpu":    node.Status.Allocatable.Cpu().String(),
				"memory": node.Status.Allocatable.Memory().String(),
				"pods":   node.Status.Allocatable.Pods().String(),
			},
			"systemInfo": map[string]string{
				"kubeletVersion":   node.Status.NodeInfo.KubeletVersion,
				"osImage":          node.Status.NodeInfo.OSImage,
				"kernelVersion":    node.Status.NodeInfo.KernelVersion,
				"containerRuntime": node.Status.NodeInfo.ContainerRuntimeVersion,
			},
		},
		Summary: fmt.Sprintf("node %s", node.Name),
	}, nil
}

// ListServicesTool lists services with type, cluster IP, and ports.
type ListServicesTool struct {
	kube kubernetes.Interface
}

func (t *ListServicesTool) Name() string { return "list_services" }

func (t *ListServicesTool) Description() string {
	return "List services in a namespace (or all namespaces) with type, cluster IP, ports, and selector."
}

func (t *ListServicesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace to list services from. Empty means all namespaces.",
			},
		},
	}
}

func (t *ListServicesTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace string `json:"namespace"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	services, err := t.kube.CoreV1().Services(params.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}

	type serviceSummary struct {
		Name      string            `json:"name"`
		Namespace string            `json:"namespace"`
		Type      string            `json:"type"`
		ClusterIP string            `json:"clusterIP"`
		Ports     []string          `json:"ports"`
		Selector  map[string]string `json:"selector,omitempty"`
	}

	summaries := make([]serviceSummary, 0, len(services.Items))
	for i := range services.Items {
		svc := &services.Items[i]
		ports := make([]string, 0, len(svc.Spec.Ports))
		for _, p := range svc.Spec.Ports {
			ports = append(ports, fmt.Sprintf("%d/%s", p.Port, p.Protocol))
		}
		summaries = append(summaries, serviceSummary{
			Name:      svc.Name,
			Namespace: svc.Namespace,
			Type:      string(svc.Spec.Type),
			ClusterIP: svc.Spec.ClusterIP,
			Ports:     ports,
			Selector:  svc.Spec.Selector,
		})
	}

	return &Result{
		Success: true,
		Data:    summaries,
		Summary: fmt.Sprintf("%d services", len(summaries)),
	}, nil
}

// ListDeploymentsTool lists deployments with replica status.
type ListDeploymentsTool struct {
	kube kubernetes.Interface
}

func (t *ListDeploymentsTool) Name() string { return "list_deployments" }

func (t *ListDeploymentsTool) Description() string {
	return "List deployments in a namespace (or all namespaces) with desired, ready, and available replica counts."
}

func (t *ListDeploymentsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace to list deployments from. Empty means all namespaces.",
			},
		},
	}
}

func (t *ListDeploymentsTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace string `json:"namespace"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	deployments, err := t.kube.AppsV1().Deployments(params.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	type deploymentSummary struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
		Desired   int32  `json:"desired"`
		Ready     int32  `json:"ready"`
		Available int32  `json:"available"`
		Updated   int32  `json:"updated"`
	}

	summaries := make([]deploymentSummary, 0, len(deployments.Items))
	degraded := 0
	for i := range deployments.Items {
		d := &deployments.Items[i]
		var desired int32 = 1
		if d.Spec.Replicas != nil {
			desired = *d.Spec.Replicas
		}
		if d.Status.ReadyReplicas < desired {
			degraded++
		}
		summaries = append(summaries, deploymentSummary{
			Name:      d.Name,
			Namespace: d.Namespace,
			Desired:   desired,
			Ready:     d.Status.ReadyReplicas,
			Available: d.Status.AvailableReplicas,
			Updated:   d.Status.UpdatedReplicas,
		})
	}

	return &Result{
		Success: true,
		Data:    summaries,
		Summary: fmt.Sprintf("%d deployments, %d below desired replicas", len(summaries), degraded),
	}, nil
}

// ListJobsTool lists jobs with completion status.
type ListJobsTool struct {
	kube kubernetes.Interface
}

func (t *ListJobsTool) Name() string { return "list_jobs" }

func (t *ListJobsTool) Description() string {
	return "List jobs in a namespace (or all namespaces) with active, succeeded, and failed pod counts."
}

func (t *ListJobsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace to list jobs from. Empty means all namespaces.",
			},
		},
	}
}

func (t *ListJobsTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace string `json:"namespace"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	jobs, err := t.kube.BatchV1().Jobs(params.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	type jobSummary struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
		Active    int32  `json:"active"`
		Succeeded int32  `json:"succeeded"`
		Failed    int32  `json:"failed"`
		Complete  bool   `json:"complete"`
	}

	summaries := make([]jobSummary, 0, len(jobs.Items))
	failed := 0
	for i := range jobs.Items {
		job := &jobs.Items[i]
		complete := false
		for _, c := range job.Status.Conditions {
			if c.Type == "Complete" && c.Status == corev1.ConditionTrue {
				complete = true
			}
		}
		if job.Status.Failed > 0 {
			failed++
		}
		summaries = append(summaries, jobSummary{
			Name:      job.Name,
			Namespace: job.Namespace,
			Active:    job.Status.Active,
			Succeeded: job.Status.Succeeded,
			Failed:    job.Status.Failed,
			Complete:  complete,
		})
	}

	return &Result{
		Success: true,
		Data:    summaries,
		Summary: fmt.Sprintf("%d jobs, %d with failures", len(summaries), failed),
	}, nil
}

// ListEventsTool lists recent cluster events, optionally filtered by time.
type ListEventsTool struct {
	kube kubernetes.Interface

	// now is overridable in tests for deterministic time filtering.
	now func() time.Time
}

func (t *ListEventsTool) Name() string { return "list_events" }

func (t *ListEventsTool) Description() string {
	return "List recent events in a namespace (or all namespaces). Use since to filter by time ('15m', '2 hours ago', unix timestamp) and warnings_only to show only Warning events."
}

func (t *ListEventsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace to list events from. Empty means all namespaces.",
			},
			"since": map[string]interface{}{
				"type":        "string",
				"description": "Only include events after this time. Accepts durations ('15m'), human expressions ('2 hours ago'), or unix timestamps.",
			},
			"warnings_only": map[string]interface{}{
				"type":        "boolean",
				"description": "Only return events of type Warning",
			},
		},
	}
}

func (t *ListEventsTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace    string `json:"namespace"`
		Since        string `json:"since"`
		WarningsOnly bool   `json:"warnings_only"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	nowFn := t.now
	if nowFn == nil {
		nowFn = time.Now
	}

	var cutoff time.Time
	if params.Since != "" {
		parsed, err := parseSince(params.Since, nowFn())
		if err != nil {
			return nil, err
		}
		cutoff = parsed
	}

	events, err := t.kube.CoreV1().Events(params.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	type eventSummary struct {
		Type      string `json:"type"`
		Reason    string `json:"reason"`
		Object    string `json:"object"`
		Message   string `json:"message"`
		Count     int32  `json:"count"`
		LastSeen  string `json:"lastSeen"`
		Namespace string `json:"namespace"`
	}

	summaries := make([]eventSummary, 0, len(events.Items))
	for i := range events.Items {
		ev := &events.Items[i]
		lastSeen := ev.LastTimestamp.Time
		if lastSeen.IsZero() {
			lastSeen = ev.EventTime.Time
		}
		if !cutoff.IsZero() && lastSeen.Before(cutoff) {
			continue
		}
		if params.WarningsOnly && ev.Type != corev1.EventTypeWarning {
			continue
		}
		summaries = append(summaries, eventSummary{
			Type:      ev.Type,
			Reason:    ev.Reason,
			Object:    fmt.Sprintf("%s/%s", ev.InvolvedObject.Kind, ev.InvolvedObject.Name),
			Message:   ev.Message,
			Count:     ev.Count,
			LastSeen:  lastSeen.Format(time.RFC3339),
			Namespace: ev.Namespace,
		})
	}

	return &Result{
		Success: true,
		Data:    summaries,
		Summary: fmt.Sprintf("%d events", len(summaries)),
	}, nil
}
