package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Runtime is a goja VM bound to the cookie sandbox of one window
type Runtime struct {
	vm      *goja.Runtime
	config  RuntimeConfig
	cookies *CookieSandbox
	mu      sync.Mutex

	// Console output and cookie writes of the running script
	console []LogEntry
	syncs   []<-chan struct{}
}

// NewRuntime creates a runtime whose document.cookie is backed by cookies
func NewRuntime(cookies *CookieSandbox, config RuntimeConfig) (*Runtime, error) {
	r := &Runtime{
		vm:      goja.New(),
		config:  config,
		cookies: cookies,
	}

	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs a script with the configured timeout
func (r *Runtime) Execute(ctx context.Context, script string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	r.console = nil
	r.syncs = nil

	timeout := r.config.Timeout
	if timeout <= 0 {
		timeout = DefaultRuntimeConfig().Timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-timer.C:
			r.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-stop:
		}
	}()

	val, err := r.vm.RunString(script)
	close(stop)
	<-exited
	r.vm.ClearInterrupt()

	result := &Result{
		Duration: time.Since(start),
		Console:  r.console,
		Syncs:    r.syncs,
	}
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrScriptFailed, err)
	}

	result.Value = exportValue(val)
	return result, nil
}

// setupGlobals configures global objects and removes host escapes
func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "warn", "error", "info"} {
			if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
				return err
			}
		}
		if err := r.vm.Set("console", console); err != nil {
			return err
		}
	}

	document := r.vm.NewObject()
	err := document.DefineAccessorProperty("cookie",
		r.vm.ToValue(r.getCookie),
		r.vm.ToValue(r.setCookie),
		goja.FLAG_FALSE, goja.FLAG_TRUE)
	if err != nil {
		return fmt.Errorf("failed to define document.cookie: %w", err)
	}
	if err := r.vm.Set("document", document); err != nil {
		return err
	}

	window := r.vm.NewObject()
	if win := r.cookies.Window(); win != nil {
		window.Set("name", win.Name())
		location := r.vm.NewObject()
		location.Set("origin", win.Origin())
		window.Set("location", location)
	}
	window.Set("document", document)
	return r.vm.Set("window", window)
}

func (r *Runtime) getCookie(goja.FunctionCall) goja.Value {
	return r.vm.ToValue(r.cookies.Cookie())
}

// setCookie ignores rejected writes, as document.cookie does
func (r *Runtime) setCookie(call goja.FunctionCall) goja.Value {
	done, err := r.cookies.SetCookie(call.Argument(0).String())
	if err == nil {
		r.syncs = append(r.syncs, done)
	}
	return goja.Undefined()
}

func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		return goja.Undefined()
	}
}

func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
