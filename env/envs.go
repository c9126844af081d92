package env

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Envs configures and starts registered components in dependency order.
type Envs struct {
	components map[string]Environment
	logger     *zap.Logger
	portMu     sync.Mutex
	usedPorts  map[int]struct{}
}

func NewEnvs(logger *zap.Logger) *Envs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Envs{
		components: make(map[string]Environment),
		logger:     logger,
		usedPorts:  make(map[int]struct{}),
	}
}

// Logger is shared with components so their output lands in one stream.
func (e *Envs) Logger() *zap.Logger { return e.logger }

// SetLogger replaces the logger. Call before Execute.
func (e *Envs) SetLogger(logger *zap.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Register adds components. It panics on a duplicate name.
func (e *Envs) Register(envs ...Environment) {
	for _, env := range envs {
		name := env.Name()
		if _, exists := e.components[name]; exists {
			panic(fmt.Sprintf("environment component with name '%s' already registered", name))
		}
		e.components[name] = env
		e.logger.Debug("Registered component", zap.String("component", name))
	}
}

// GetFreePort reserves a loopback TCP port not handed out before in this run.
func (e *Envs) GetFreePort() (int, error) {
	e.portMu.Lock()
	defer e.portMu.Unlock()

	for i := 0; i < 100; i++ {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			continue
		}
		port := listener.Addr().(*net.TCPAddr).Port
		listener.Close()

		if _, used := e.usedPorts[port]; !used {
			e.usedPorts[port] = struct{}{}
			e.logger.Debug("Allocated port", zap.Int("port", port))
			return port, nil
		}
	}
	return 0, fmt.Errorf("failed to find an available free port after multiple attempts")
}

// Execute configures every component, validates the dependency graph and
// starts each component as soon as its dependencies have started. On any
// failure the components that did start are stopped again.
func (e *Envs) Execute(ctx context.Context) error {
	startTime := time.Now()
	if len(e.components) == 0 {
		e.logger.Info("No components registered")
		return nil
	}

	dependencies, err := e.configure(ctx)
	if err != nil {
		e.logger.Error("Environment configure failed", zap.Error(err))
		return err
	}

	dependents := make(map[string][]string) // dependency -> components waiting on it
	pending := make(map[string]int)         // component -> unmet dependencies
	var initial []string
	for name := range e.components {
		deps := dependencies[name]
		pending[name] = len(deps)
		if len(deps) == 0 {
			initial = append(initial, name)
			continue
		}
		for _, dep := range deps {
			if _, exists := e.components[dep]; !exists {
				return fmt.Errorf("component '%s' configured dependency '%s' which is not registered", name, dep)
			}
			dependents[dep] = append(dependents[dep], name)
		}
	}
	if cycle := findCycle(e.componentNames(), dependencies); cycle != "" {
		return fmt.Errorf("dependency cycle detected: %s", cycle)
	}

	var mu sync.Mutex
	started := make(map[string]struct{})
	group, groupCtx := errgroup.WithContext(ctx)

	var launch func(name string)
	launch = func(name string) {
		component := e.components[name]
		group.Go(func() error {
			begin := time.Now()
			e.logger.Info("Starting component", zap.String("component", name))

			var startErr error
			select {
			case err, ok := <-component.Start(groupCtx, e):
				if ok {
					startErr = err
				} else if groupCtx.Err() != nil {
					startErr = groupCtx.Err()
				}
			case <-groupCtx.Done():
				startErr = groupCtx.Err()
			}
			duration := time.Since(begin)
			if startErr != nil {
				e.logger.Error("Component failed to start", zap.String("component", name), zap.Duration("duration", duration), zap.Error(startErr))
				return fmt.Errorf("start %s failed: %w", name, startErr)
			}

			component.SetStartDuration(duration)
			e.logger.Info("Component started", zap.String("component", name), zap.Duration("duration", duration))

			mu.Lock()
			defer mu.Unlock()
			started[name] = struct{}{}
			for _, next := range dependents[name] {
				pending[next]--
				if pending[next] == 0 && groupCtx.Err() == nil {
					launch(next)
				}
			}
			return nil
		})
	}

	mu.Lock()
	for _, name := range initial {
		launch(name)
	}
	mu.Unlock()

	err = group.Wait()
	if err == nil && len(started) != len(e.components) {
		err = fmt.Errorf("environment setup finished inconsistently: %d components registered, %d started", len(e.components), len(started))
	}
	if err != nil {
		e.logger.Error("Environment setup failed, stopping started components", zap.Error(err))
		e.stop(started)
		return err
	}

	e.logger.Info("Environment setup complete", zap.Duration("duration", time.Since(startTime)), zap.Int("components", len(started)))
	return nil
}

func (e *Envs) configure(ctx context.Context) (map[string][]string, error) {
	var mu sync.Mutex
	dependencies := make(map[string][]string, len(e.components))
	group, groupCtx := errgroup.WithContext(ctx)

	for _, env := range e.components {
		env := env
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			deps, err := env.Configure(e)
			if err != nil {
				return fmt.Errorf("configure %s failed: %w", env.Name(), err)
			}
			e.logger.Debug("Component configured", zap.String("component", env.Name()), zap.Strings("dependencies", deps))
			mu.Lock()
			dependencies[env.Name()] = deps
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return dependencies, nil
}

// StopAll stops every registered component, logging failures.
func (e *Envs) StopAll() {
	all := make(map[string]struct{}, len(e.components))
	for name := range e.components {
		all[name] = struct{}{}
	}
	e.stop(all)
}

func (e *Envs) stop(names map[string]struct{}) {
	var wg sync.WaitGroup
	for name := range names {
		env, ok := e.components[name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(name string, env Environment) {
			defer wg.Done()
			if err := env.Stop(); err != nil {
				e.logger.Error("Error stopping component", zap.String("component", name), zap.Error(err))
				return
			}
			e.logger.Debug("Component stopped", zap.String("component", name))
		}(name, env)
	}
	wg.Wait()
}

func (e *Envs) componentNames() []string {
	names := make([]string, 0, len(e.components))
	for name := range e.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// findCycle returns a path like "a -> b -> a" for the first cycle found.
func findCycle(names []string, deps map[string][]string) string {
	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int, len(names))

	var visit func(node string, path []string) string
	visit = func(node string, path []string) string {
		state[node] = inStack
		path = append(path, node)
		for _, dep := range deps[node] {
			switch state[dep] {
			case inStack:
				cycle := path
				for i, n := range path {
					if n == dep {
						cycle = path[i:]
						break
					}
				}
				return strings.Join(append(cycle, dep), " -> ")
			case unvisited:
				if c := visit(dep, path); c != "" {
					return c
				}
			}
		}
		state[node] = done
		return ""
	}

	for _, name := range names {
		if state[name] == unvisited {
			if c := visit(name, nil); c != "" {
				return c
			}
		}
	}
	return ""
}

func (e *Envs) GetComponent(name string) (Environment, bool) {
	env, ok := e.components[name]
	return env, ok
}

// GetURL returns "" for unknown components.
func (e *Envs) GetURL(name string) string {
	env, ok := e.components[name]
	if !ok {
		e.logger.Error("Component not found when getting URL", zap.String("component", name))
		return ""
	}
	return env.URL()
}

// GetDetails returns nil for unknown components.
func (e *Envs) GetDetails(name string) interface{} {
	env, ok := e.components[name]
	if !ok {
		e.logger.Error("Component not found when getting details", zap.String("component", name))
		return nil
	}
	return env.GetDetails()
}

func (e *Envs) GetStartDuration(name string) time.Duration {
	env, ok := e.components[name]
	if !ok {
		return 0
	}
	return env.GetStartDuration()
}

// --- package-level manager used by TestMain ---

var defaultEnvs = NewEnvs(nil)

func SetLogger(logger *zap.Logger) {
	defaultEnvs.SetLogger(logger)
}

func Register(envs ...Environment) {
	defaultEnvs.Register(envs...)
}

func Execute(ctx context.Context) error {
	return defaultEnvs.Execute(ctx)
}

func StopAll() {
	defaultEnvs.StopAll()
}

func GetURL(name string) string {
	return defaultEnvs.GetURL(name)
}

func GetDetails(name string) interface{} {
	return defaultEnvs.GetDetails(name)
}

func GetStartDuration(name string) time.Duration {
	return defaultEnvs.GetStartDuration(name)
}

func GetComponent(name string) (Environment, bool) {
	return defaultEnvs.GetComponent(name)
}
