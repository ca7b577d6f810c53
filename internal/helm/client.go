// Package helm wraps the Helm SDK for read-only release inspection.
package helm

import (
	"context"
	"fmt"
	"os"
	"time"

	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/release"

	"github.com/kubepilot/kubepilot/internal/logging"
)

// ReleaseInfo is the summarized view of a Helm release.
type ReleaseInfo struct {
	Name       string    `json:"name"`
	Namespace  string    `json:"namespace"`
	Revision   int       `json:"revision"`
	Status     string    `json:"status"`
	Chart      string    `json:"chart"`
	AppVersion string    `json:"appVersion,omitempty"`
	Updated    time.Time `json:"updated"`
	Notes      string    `json:"notes,omitempty"`
}

// Client provides read-only access to Helm releases in the cluster.
type Client interface {
	// ListReleases returns deployed releases in the namespace. An empty
	// namespace lists releases across all namespaces.
	ListReleases(ctx context.Context, namespace string) ([]ReleaseInfo, error)

	// ReleaseStatus returns the current state of a single release.
	ReleaseStatus(ctx context.Context, namespace, name string) (*ReleaseInfo, error)
}

type actionClient struct {
	settings *cli.EnvSettings
	logger   *logging.Logger
}

// NewClient creates a Helm client using the ambient environment (kubeconfig,
// HELM_DRIVER, HELM_NAMESPACE).
func NewClient() Client {
	return &actionClient{
		settings: cli.New(),
		logger:   logging.GetLogger("helm"),
	}
}

// configuration builds an action.Configuration scoped to a namespace.
func (c *actionClient) configuration(namespace string) (*action.Configuration, error) {
	cfg := new(action.Configuration)
	err := cfg.Init(c.settings.RESTClientGetter(), namespace, os.Getenv("HELM_DRIVER"), c.logger.Debug)
	if err != nil {
		return nil, fmt.Errorf("initializing helm configuration: %w", err)
	}
	return cfg, nil
}

func (c *actionClient) ListReleases(ctx context.Context, namespace string) ([]ReleaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, err := c.configuration(namespace)
	if err != nil {
		return nil, err
	}

	list := action.NewList(cfg)
	list.All = true
	if namespace == "" {
		list.AllNamespaces = true
	}

	releases, err := list.Run()
	if err != nil {
		return nil, fmt.Errorf("listing helm releases: %w", err)
	}

	infos := make([]ReleaseInfo, 0, len(releases))
	for _, rel := range releases {
		infos = append(infos, summarizeRelease(rel, false))
	}
	return infos, nil
}

func (c *actionClient) ReleaseStatus(ctx context.Context, namespace, name string) (*ReleaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, err := c.configuration(namespace)
	if err != nil {
		return nil, err
	}

	status := action.NewStatus(cfg)
	rel, err := status.Run(name)
	if err != nil {
		return nil, fmt.Errorf("getting status of release %s: %w", name, err)
	}

	info := summarizeRelease(rel, true)
	return &info, nil
}

func summarizeRelease(rel *release.Release, includeNotes bool) ReleaseInfo {
	info := ReleaseInfo{
		Name:      rel.Name,
		Namespace: rel.Namespace,
		Revision:  rel.Version,
	}
	if rel.Info != nil {
		info.Status = rel.Info.Status.String()
		info.Updated = rel.Info.LastDeployed.Time
		if includeNotes {
			info.Notes = rel.Info.Notes
		}
	}
	if rel.Chart != nil && rel.Chart.Metadata != nil {
		info.Chart = fmt.Sprintf("%s-%s", rel.Chart.Metadata.Name, rel.Chart.Metadata.Version)
		info.AppVersion = rel.Chart.Metadata.AppVersion
	}
	return info
}
