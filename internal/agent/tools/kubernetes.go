package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// podSummary is the compact pod representation returned by pod listing tools.
type podSummary struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Phase     string `json:"phase"`
	Ready     string `json:"ready"`
	Restarts  int32  `json:"restarts"`
	Reason    string `json:"reason,omitempty"`
	Node      string `json:"node,omitempty"`
	AgeSec    int64  `json:"ageSeconds"`
}

func summarizePod(pod *corev1.Pod, now time.Time) podSummary {
	var ready, total int
	var restarts int32
	var reason string

	total = len(pod.Spec.Containers)
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			ready++
		}
		restarts += cs.RestartCount
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			reason = cs.State.Waiting.Reason
		} else if cs.State.Terminated != nil && cs.State.Terminated.Reason != "" && reason == "" {
			reason = cs.State.Terminated.Reason
		}
	}
	if reason == "" {
		reason = pod.Status.Reason
	}

	return podSummary{
		Name:      pod.Name,
		Namespace: pod.Namespace,
		Phase:     string(pod.Status.Phase),
		Ready:     fmt.Sprintf("%d/%d", ready, total),
		Restarts:  restarts,
		Reason:    reason,
		Node:      pod.Spec.NodeName,
		AgeSec:    int64(now.Sub(pod.CreationTimestamp.Time).Seconds()),
	}
}

// podIsProblematic reports whether a pod looks unhealthy: failed or pending
// phase, a non-benign waiting reason, or excessive restarts.
func podIsProblematic(pod *corev1.Pod) bool {
	switch pod.Status.Phase {
	case corev1.PodFailed, corev1.PodPending, corev1.PodUnknown:
		return true
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.RestartCount > 3 {
			return true
		}
		if cs.State.Waiting != nil {
			switch cs.State.Waiting.Reason {
			case "ContainerCreating", "PodInitializing", "":
				// transient during startup
			default:
				return true
			}
		}
		if !cs.Ready && cs.State.Running != nil {
			return true
		}
	}
	return false
}

// ListPodsTool lists pods in a namespace with summarized status.
type ListPodsTool struct {
	kube kubernetes.Interface
}

func (t *ListPodsTool) Name() string { return "list_pods" }

func (t *ListPodsTool) Description() string {
	return "List pods in a namespace (or all namespaces) with phase, readiness, restart counts, and waiting reasons. Use label_selector to filter, and problems_only to show only unhealthy pods."
}

func (t *ListPodsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace to list pods from. Empty means all namespaces.",
			},
			"label_selector": map[string]interface{}{
				"type":        "string",
				"description": "Kubernetes label selector, e.g. 'app=nginx'",
			},
			"problems_only": map[string]interface{}{
				"type":        "boolean",
				"description": "Only return pods that look unhealthy",
			},
		},
	}
}

func (t *ListPodsTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace     string `json:"namespace"`
		LabelSelector string `json:"label_selector"`
		ProblemsOnly  bool   `json:"problems_only"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	pods, err := t.kube.CoreV1().Pods(params.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: params.LabelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}

	now := time.Now()
	summaries := make([]podSummary, 0, len(pods.Items))
	for i := range pods.Items {
		pod := &pods.Items[i]
		if params.ProblemsOnly && !podIsProblematic(pod) {
			continue
		}
		summaries = append(summaries, summarizePod(pod, now))
	}

	return &Result{
		Success: true,
		Data:    summaries,
		Summary: fmt.Sprintf("%d pods", len(summaries)),
	}, nil
}

// DescribePodTool returns the detailed state of a single pod.
type DescribePodTool struct {
	kube kubernetes.Interface
}

func (t *DescribePodTool) Name() string { return "describe_pod" }

func (t *DescribePodTool) Description() string {
	return "Get detailed information about a single pod: containers, container states, conditions, labels, owner, and node placement."
}

func (t *DescribePodTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace of the pod",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the pod",
			},
		},
		"required": []string{"namespace", "name"},
	}
}

func (t *DescribePodTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Namespace == "" || params.Name == "" {
		return nil, fmt.Errorf("namespace and name are required")
	}

	pod, err := t.kube.CoreV1().Pods(params.Namespace).Get(ctx, params.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting pod %s/%s: %w", params.Namespace, params.Name, err)
	}

	type containerDetail struct {
		Name         string `json:"name"`
		Image        string `json:"image"`
		Ready        bool   `json:"ready"`
		Restarts     int32  `json:"restarts"`
		State        string `json:"state"`
		Reason       string `json:"reason,omitempty"`
		Message      string `json:"message,omitempty"`
		LastExitCode *int32 `json:"lastExitCode,omitempty"`
	}

	containers := make([]containerDetail, 0, len(pod.Status.ContainerStatuses))
	for _, cs := range pod.Status.ContainerStatuses {
		detail := containerDetail{
			Name:     cs.Name,
			Image:    cs.Image,
			Ready:    cs.Ready,
			Restarts: cs.RestartCount,
		}
		switch {
		case cs.State.Running != nil:
			detail.State = "Running"
		case cs.State.Waiting != nil:
			detail.State = "Waiting"
			detail.Reason = cs.State.Waiting.Reason
			detail.Message = cs.State.Waiting.Message
		case cs.State.Terminated != nil:
			detail.State = "Terminated"
			detail.Reason = cs.State.Terminated.Reason
			detail.Message = cs.State.Terminated.Message
		}
		if cs.LastTerminationState.Terminated != nil {
			code := cs.LastTerminationState.Terminated.ExitCode
			detail.LastExitCode = &code
		}
		containers = append(containers, detail)
	}

	conditions := make([]map[string]string, 0, len(pod.Status.Conditions))
	for _, c := range pod.Status.Conditions {
		conditions = append(conditions, map[string]string{
			"type":    string(c.Type),
			"status":  string(c.Status),
			"reason":  c.Reason,
			"message": c.Message,
		})
	}

	var owner string
	if refs := pod.OwnerReferences; len(refs) > 0 {
		owner = fmt.Sprintf("%s/%s", refs[0].Kind, refs[0].Name)
	}

	return &Result{
		Success: true,
		Data: map[string]interface{}{
			"name":       pod.Name,
			"namespace":  pod.Namespace,
			"phase":      string(pod.Status.Phase),
			"node":       pod.Spec.NodeName,
			"labels":     pod.Labels,
			"owner":      owner,
			"containers": containers,
			"conditions": conditions,
			"startTime":  pod.Status.StartTime,
		},
		Summary: fmt.Sprintf("pod %s/%s (%s)", pod.Namespace, pod.Name, pod.Status.Phase),
	}, nil
}

// PodLogsTool fetches recent logs from a pod container.
type PodLogsTool struct {
	kube kubernetes.Interface
}

func (t *PodLogsTool) Name() string { return "pod_logs" }

func (t *PodLogsTool) Description() string {
	return "Fetch recent log lines from a pod container. Use previous=true to read logs from the prior (crashed) container instance."
}

func (t *PodLogsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace of the pod",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the pod",
			},
			"container": map[string]interface{}{
				"type":        "string",
				"description": "Container name (optional for single-container pods)",
			},
			"tail_lines": map[string]interface{}{
				"type":        "integer",
				"description": "Number of lines from the end of the logs (default 100)",
			},
			"previous": map[string]interface{}{
				"type":        "boolean",
				"description": "Read logs from the previous container instance",
			},
		},
		"required": []string{"namespace", "name"},
	}
}

func (t *PodLogsTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
		Container string `json:"container"`
		TailLines int64  `json:"tail_lines"`
		Previous  bool   `json:"previous"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Namespace == "" || params.Name == "" {
		return nil, fmt.Errorf("namespace and name are required")
	}
	if params.TailLines <= 0 {
		params.TailLines = 100
	}

	opts := &corev1.PodLogOptions{
		Container: params.Container,
		TailLines: &params.TailLines,
		Previous:  params.Previous,
	}
	raw, err := t.kube.CoreV1().Pods(params.Namespace).GetLogs(params.Name, opts).DoRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching logs for %s/%s: %w", params.Namespace, params.Name, err)
	}

	logs := string(raw)
	lineCount := 0
	if logs != "" {
		lineCount = strings.Count(strings.TrimRight(logs, "\n"), "\n") + 1
	}

	return &Result{
		Success: true,
		Data: map[string]interface{}{
			"pod":       fmt.Sprintf("%s/%s", params.Namespace, params.Name),
			"container": params.Container,
			"previous":  params.Previous,
			"logs":      logs,
		},
		Summary: fmt.Sprintf("%d log lines from %s/%s", lineCount, params.Namespace, params.Name),
	}, nil
}

// DiagnosePodTool combines pod state and events into a single diagnostic view.
type DiagnosePodTool struct {
	kube kubernetes.Interface
}

func (t *DiagnosePodTool) Name() string { return "diagnose_pod" }

func (t *DiagnosePodTool) Description() string {
	return "Diagnose a pod: combines container states, restart counts, detected problems, and related events into one view. Prefer this over separate describe/event calls when investigating a failing pod."
}

func (t *DiagnosePodTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace of the pod",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the pod",
			},
		},
		"required": []string{"namespace", "name"},
	}
}

func (t *DiagnosePodTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Namespace == "" || params.Name == "" {
		return nil, fmt.Errorf("namespace and name are required")
	}

	pod, err := t.kube.CoreV1().Pods(params.Namespace).Get(ctx, params.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting pod %s/%s: %w", params.Namespace, params.Name, err)
	}

	var findings []string
	switch pod.Status.Phase {
	case corev1.PodFailed:
		findings = append(findings, fmt.Sprintf("pod is in Failed phase: %s", pod.Status.Reason))
	case corev1.PodPending:
		findings = append(findings, "pod is Pending and has not been scheduled or started")
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			findings = append(findings, fmt.Sprintf("container %s is waiting: %s (%s)", cs.Name, cs.State.Waiting.Reason, cs.State.Waiting.Message))
		}
		if cs.State.Terminated != nil {
			findings = append(findings, fmt.Sprintf("container %s terminated with exit code %d: %s", cs.Name, cs.State.Terminated.ExitCode, cs.State.Terminated.Reason))
		}
		if cs.RestartCount > 3 {
			findings = append(findings, fmt.Sprintf("container %s has restarted %d times", cs.Name, cs.RestartCount))
		}
		if cs.LastTerminationState.Terminated != nil {
			lt := cs.LastTerminationState.Terminated
			findings = append(findings, fmt.Sprintf("container %s last terminated with exit code %d (%s)", cs.Name, lt.ExitCode, lt.Reason))
		}
	}
	for _, c := range pod.Status.Conditions {
		if c.Status != corev1.ConditionTrue && c.Type != corev1.PodReadyToStartContainers {
			findings = append(findings, fmt.Sprintf("condition %s is %s: %s", c.Type, c.Status, c.Message))
		}
	}

	events, err := t.kube.CoreV1().Events(params.Namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("involvedObject.name=%s,involvedObject.kind=Pod", params.Name),
	})
	var eventLines []string
	if err == nil {
		for _, ev := range events.Items {
			eventLines = append(eventLines, fmt.Sprintf("[%s] %s: %s", ev.Type, ev.Reason, ev.Message))
		}
	}

	healthy := len(findings) == 0 && !podIsProblematic(pod)

	return &Result{
		Success: true,
		Data: map[string]interface{}{
			"pod":      summarizePod(pod, time.Now()),
			"healthy":  healthy,
			"findings": findings,
			"events":   eventLines,
		},
		Summary: fmt.Sprintf("pod %s/%s: %d findings, %d events", pod.Namespace, pod.Name, len(findings), len(eventLines)),
	}, nil
}
