package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComponent struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
}

func (f *fakeComponent) Start(ctx context.Context) error {
	*f.log = append(*f.log, "start:"+f.name)
	return f.startErr
}

func (f *fakeComponent) Stop(ctx context.Context) error {
	*f.log = append(*f.log, "stop:"+f.name)
	return f.stopErr
}

func (f *fakeComponent) Name() string { return f.name }

func TestStartStopOrder(t *testing.T) {
	var log []string
	m := NewManager()
	a := &fakeComponent{name: "a", log: &log}
	b := &fakeComponent{name: "b", log: &log}

	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())

	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, log)
}

func TestStartFailureRollsBack(t *testing.T) {
	var log []string
	m := NewManager()
	a := &fakeComponent{name: "a", log: &log}
	b := &fakeComponent{name: "b", log: &log, startErr: errors.New("boom")}

	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
	// Only the successfully started component is stopped during rollback.
	assert.Equal(t, []string{"start:a", "start:b", "stop:a"}, log)
}

func TestRegisterValidation(t *testing.T) {
	var log []string
	m := NewManager()
	a := &fakeComponent{name: "a", log: &log}

	assert.Error(t, m.Register(nil))
	assert.Error(t, m.Register(&fakeComponent{name: "", log: &log}))
	require.NoError(t, m.Register(a))
	assert.Error(t, m.Register(a))
}

func TestStopContinuesPastErrors(t *testing.T) {
	var log []string
	m := NewManager()
	a := &fakeComponent{name: "a", log: &log, stopErr: errors.New("stuck")}
	b := &fakeComponent{name: "b", log: &log}

	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	require.NoError(t, m.Start(context.Background()))

	err := m.Stop()
	require.Error(t, err)
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, log)
}
