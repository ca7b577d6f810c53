package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kubepilot/kubepilot/internal/helm"
)

// HelmListReleasesTool lists Helm releases in the cluster.
type HelmListReleasesTool struct {
	helm helm.Client
}

func (t *HelmListReleasesTool) Name() string { return "helm_list_releases" }

func (t *HelmListReleasesTool) Description() string {
	return "List Helm releases with chart version, revision, status, and last update time. Empty namespace lists releases across all namespaces."
}

func (t *HelmListReleasesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace to list releases from. Empty means all namespaces.",
			},
		},
	}
}

func (t *HelmListReleasesTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace string `json:"namespace"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	releases, err := t.helm.ListReleases(ctx, params.Namespace)
	if err != nil {
		return nil, err
	}

	return &Result{
		Success: true,
		Data:    releases,
		Summary: fmt.Sprintf("%d helm releases", len(releases)),
	}, nil
}

// HelmReleaseStatusTool returns the status of a single Helm release.
type HelmReleaseStatusTool struct {
	helm             helm.Client
	defaultNamespace string
}

func (t *HelmReleaseStatusTool) Name() string { return "helm_release_status" }

func (t *HelmReleaseStatusTool) Description() string {
	return "Get the status of a single Helm release, including revision, deployment state, and release notes."
}

func (t *HelmReleaseStatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"namespace": map[string]interface{}{
				"type":        "string",
				"description": "Namespace of the release",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the release",
			},
		},
		"required": []string{"name"},
	}
}

func (t *HelmReleaseStatusTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	var params struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if params.Namespace == "" {
		params.Namespace = t.defaultNamespace
	}

	info, err := t.helm.ReleaseStatus(ctx, params.Namespace, params.Name)
	if err != nil {
		return nil, err
	}

	return &Result{
		Success: true,
		Data:    info,
		Summary: fmt.Sprintf("release %s: %s (revision %d)", info.Name, info.Status, info.Revision),
	}, nil
}
