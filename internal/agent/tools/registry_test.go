package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/kubepilot/kubepilot/internal/helm"
)

type fakeHelm struct {
	releases      []helm.ReleaseInfo
	err           error
	lastNamespace string
}

func (f *fakeHelm) ListReleases(ctx context.Context, namespace string) ([]helm.ReleaseInfo, error) {
	f.lastNamespace = namespace
	return f.releases, f.err
}

func (f *fakeHelm) ReleaseStatus(ctx context.Context, namespace, name string) (*helm.ReleaseInfo, error) {
	f.lastNamespace = namespace
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.releases {
		if f.releases[i].Name == name {
			return &f.releases[i], nil
		}
	}
	return nil, fmt.Errorf("release: not found")
}

type staticTool struct {
	name   string
	result *Result
	err    error
	panics bool
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return "static test tool" }
func (t *staticTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (t *staticTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	if t.panics {
		panic("boom")
	}
	return t.result, t.err
}

func TestRegistryContainsExpectedTools(t *testing.T) {
	reg := NewRegistry(Dependencies{
		Kube: fake.NewSimpleClientset(),
		Helm: &fakeHelm{},
	})

	defs := reg.Definitions()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}

	assert.Contains(t, names, "list_pods")
	assert.Contains(t, names, "describe_pod")
	assert.Contains(t, names, "pod_logs")
	assert.Contains(t, names, "diagnose_pod")
	assert.Contains(t, names, "list_nodes")
	assert.Contains(t, names, "list_events")
	assert.Contains(t, names, "helm_list_releases")
	assert.Contains(t, names, "helm_release_status")
}

func TestRegistryWithoutHelmOmitsHelmTools(t *testing.T) {
	reg := NewRegistry(Dependencies{Kube: fake.NewSimpleClientset()})

	_, ok := reg.Get("helm_list_releases")
	assert.False(t, ok)
	_, ok = reg.Get("list_pods")
	assert.True(t, ok)
}

func TestHelmReleaseStatusUsesDefaultNamespace(t *testing.T) {
	fh := &fakeHelm{releases: []helm.ReleaseInfo{{Name: "ingress", Namespace: "infra", Status: "deployed"}}}
	reg := NewRegistry(Dependencies{Helm: fh, HelmNamespace: "infra"})

	content, isError := reg.Execute(context.Background(), "helm_release_status", json.RawMessage(`{"name":"ingress"}`))
	assert.False(t, isError)
	assert.Contains(t, content, "ingress")
	assert.Equal(t, "infra", fh.lastNamespace)

	// an explicit namespace wins over the default
	reg.Execute(context.Background(), "helm_release_status", json.RawMessage(`{"name":"ingress","namespace":"prod"}`))
	assert.Equal(t, "prod", fh.lastNamespace)
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry(Dependencies{})

	content, isError := reg.Execute(context.Background(), "no_such_tool", nil)
	assert.True(t, isError)
	assert.Contains(t, content, "unknown tool")
}

func TestRegistryExecuteConvertsErrorsToResults(t *testing.T) {
	reg := NewRegistry(Dependencies{})
	reg.Register(&staticTool{name: "failing", err: fmt.Errorf("cluster unreachable")})

	content, isError := reg.Execute(context.Background(), "failing", nil)
	assert.True(t, isError)
	assert.Contains(t, content, "cluster unreachable")

	var result Result
	require.NoError(t, json.Unmarshal([]byte(content), &result))
	assert.False(t, result.Success)
}

func TestRegistryExecuteRecoversFromPanic(t *testing.T) {
	reg := NewRegistry(Dependencies{})
	reg.Register(&staticTool{name: "panicky", panics: true})

	content, isError := reg.Execute(context.Background(), "panicky", nil)
	assert.True(t, isError)
	assert.Contains(t, content, "panicked")
}

func TestRegistryExecuteSuccess(t *testing.T) {
	reg := NewRegistry(Dependencies{})
	reg.Register(&staticTool{name: "ok", result: &Result{Success: true, Data: "hello"}})

	content, isError := reg.Execute(context.Background(), "ok", nil)
	assert.False(t, isError)

	var result Result
	require.NoError(t, json.Unmarshal([]byte(content), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "hello", result.Data)
}

func TestTruncateResultCapsLargeOutput(t *testing.T) {
	large := strings.Repeat("x", MaxToolResponseBytes*2)
	result := truncateResult(&Result{Success: true, Data: large, Summary: "big"}, MaxToolResponseBytes)

	data, err := json.Marshal(result.Data)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), MaxToolResponseBytes+1024)
	assert.Contains(t, result.Summary, "TRUNCATED")

	truncated, ok := result.Data.(*truncatedData)
	require.True(t, ok)
	assert.True(t, truncated.Truncated)
	assert.Greater(t, truncated.OriginalBytes, MaxToolResponseBytes)
}

func TestTruncateResultLeavesSmallOutput(t *testing.T) {
	original := &Result{Success: true, Data: "small", Summary: "s"}
	result := truncateResult(original, MaxToolResponseBytes)
	assert.Equal(t, original, result)
}
