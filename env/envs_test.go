package env

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/conduit-qa/conduit-tests/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeEnv records start and stop order into a shared journal.
type fakeEnv struct {
	BaseEnv
	deps     []string
	startErr error
	journal  *journal
	stopped  bool
}

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

func (j *journal) index(event string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, e := range j.events {
		if e == event {
			return i
		}
	}
	return -1
}

func newFake(name string, j *journal, deps ...string) *fakeEnv {
	return &fakeEnv{BaseEnv: BaseEnv{name: name}, deps: deps, journal: j}
}

func (f *fakeEnv) Configure(envs *Envs) ([]string, error) {
	return f.deps, nil
}

func (f *fakeEnv) Start(ctx context.Context, envs *Envs) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		time.Sleep(5 * time.Millisecond)
		f.journal.add("start:" + f.name)
		ch <- f.startErr
	}()
	return ch
}

func (f *fakeEnv) Stop() error {
	f.stopped = true
	f.journal.add("stop:" + f.name)
	return nil
}

func TestExecute_DependencyOrder(t *testing.T) {
	j := &journal{}
	envs := NewEnvs(zaptest.NewLogger(t))
	envs.Register(
		newFake("auth", j, "conduit"),
		newFake("conduit", j),
		newFake("playwright", j),
		newFake("ui", j, "auth", "playwright"),
	)

	require.NoError(t, envs.Execute(context.Background()))
	assert.Less(t, j.index("start:conduit"), j.index("start:auth"))
	assert.Less(t, j.index("start:auth"), j.index("start:ui"))
	assert.Less(t, j.index("start:playwright"), j.index("start:ui"))
	assert.Greater(t, envs.GetStartDuration("ui"), time.Duration(0))
}

func TestExecute_UnknownDependency(t *testing.T) {
	envs := NewEnvs(nil)
	envs.Register(newFake("auth", &journal{}, "conduit"))

	err := envs.Execute(context.Background())
	assert.ErrorContains(t, err, "dependency 'conduit' which is not registered")
}

func TestExecute_Cycle(t *testing.T) {
	envs := NewEnvs(nil)
	j := &journal{}
	envs.Register(newFake("a", j, "b"), newFake("b", j, "c"), newFake("c", j, "a"))

	err := envs.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle detected: a -> b -> c -> a")
	assert.Empty(t, j.events)
}

func TestExecute_FailureStopsStarted(t *testing.T) {
	j := &journal{}
	conduit := newFake("conduit", j)
	auth := newFake("auth", j, "conduit")
	auth.startErr = errors.New("bad credentials")
	ui := newFake("ui", j, "auth")

	envs := NewEnvs(zaptest.NewLogger(t))
	envs.Register(conduit, auth, ui)

	err := envs.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "start auth failed: bad credentials")
	assert.True(t, conduit.stopped)
	assert.False(t, ui.stopped)
	assert.Equal(t, -1, j.index("start:ui"))
}

func TestRegister_DuplicatePanics(t *testing.T) {
	envs := NewEnvs(nil)
	envs.Register(newFake("conduit", &journal{}))
	assert.Panics(t, func() { envs.Register(newFake("conduit", &journal{})) })
}

func TestGetFreePort(t *testing.T) {
	envs := NewEnvs(nil)
	a, err := envs.GetFreePort()
	require.NoError(t, err)
	b, err := envs.GetFreePort()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestFindCycle(t *testing.T) {
	assert.Empty(t, findCycle([]string{"a", "b"}, map[string][]string{"a": {"b"}}))
	assert.Equal(t, "a -> a", findCycle([]string{"a"}, map[string][]string{"a": {"a"}}))
}

func TestStubConduitAndAuth(t *testing.T) {
	cfg := &config.Config{Conduit: config.ConduitConfig{Mode: config.ModeStub}}
	conduitEnv := NewConduitEnv(cfg)
	authEnv := NewAuthEnv(nil)

	envs := NewEnvs(zaptest.NewLogger(t))
	envs.Register(conduitEnv, authEnv)
	require.NoError(t, envs.Execute(context.Background()))
	t.Cleanup(envs.StopAll)

	details, ok := envs.GetDetails(ConduitComponentName).(*ConduitDetails)
	require.True(t, ok)
	assert.Equal(t, StubEmail, details.Email)
	assert.True(t, strings.HasSuffix(envs.GetURL(ConduitComponentName), "/api"))

	token, ok := envs.GetDetails(AuthComponentName).(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(token, "Token "))
	assert.Equal(t, token, authEnv.Token())
}
