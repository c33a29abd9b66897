package lifecycle

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type namedComponent struct {
	Component
	name string
}

// Named attaches a name used in logs and errors.
func Named(name string, component Component) Component {
	if component == nil {
		return nil
	}
	return &namedComponent{Component: component, name: name}
}

type Runtime struct {
	components []Component
}

func NewRuntime(components ...Component) *Runtime {
	r := &Runtime{}
	for _, component := range components {
		r.Register(component)
	}
	return r
}

func (r *Runtime) Register(component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, component)
}

// Start starts components in registration order. When one fails, the ones
// already running are stopped in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	started := make([]Component, 0, len(r.components))
	for _, component := range r.components {
		name := nameOf(component)
		if err := component.Start(ctx); err != nil {
			_ = stopComponents(ctx, started)
			return fmt.Errorf("start %s: %w", name, err)
		}
		getLogEntry().WithField("component", name).Debug("started")
		started = append(started, component)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	return stopComponents(ctx, r.components)
}

func stopComponents(ctx context.Context, components []Component) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		name := nameOf(component)
		if err := component.Stop(ctx); err != nil {
			getLogEntry().WithFields(log.Fields{"component": name, "error": err.Error()}).Warn("stop failed")
			stopErr = errors.Join(stopErr, fmt.Errorf("stop %s: %w", name, err))
			continue
		}
		getLogEntry().WithField("component", name).Debug("stopped")
	}
	return stopErr
}

func nameOf(component Component) string {
	if named, ok := component.(*namedComponent); ok {
		return named.name
	}
	return fmt.Sprintf("%T", component)
}

func getLogEntry() *log.Entry {
	return log.WithField("object", "Runtime")
}
