//go:generate mockgen -destination=./mocks/hooks.go . Executor

// Package hooks runs the Tengo scripts mods ship for apply events.
package hooks

import (
	"context"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/glorpus-work/modpatch/internal/logger"
	"github.com/glorpus-work/modpatch/pkg/errors"
)

// Operations reported to scripts.
const (
	OperationApply = "apply"
)

// HookContext provides context information to hook scripts.
type HookContext struct {
	ModID      string
	ModVersion string
	Variant    string
	Event      string
	Operation  string
	GameDir    string
	ModDir     string
	LibraryDir string
}

// Executor runs a hook script.
type Executor interface {
	Execute(ctx context.Context, name string, script []byte, hc *HookContext) error
}

// TengoExecutor runs hook scripts with the Tengo interpreter.
type TengoExecutor struct{}

// NewTengoExecutor creates a new Tengo script executor.
func NewTengoExecutor() *TengoExecutor {
	return &TengoExecutor{}
}

// Execute runs script. name identifies the script in errors and logs. A script fails
// when it does not compile, aborts at runtime or sets a non-empty err variable.
func (e *TengoExecutor) Execute(ctx context.Context, name string, script []byte, hc *HookContext) error {
	logger.Debug("Executing hook script", logger.Fields{
		"hook":    name,
		"event":   hc.Event,
		"mod":     hc.ModID,
		"version": hc.ModVersion,
	})

	moduleMap := stdlib.GetModuleMap(stdlib.AllModuleNames()...)
	setupScriptContext(moduleMap, hc)

	s := tengo.NewScript(script)
	s.SetImports(moduleMap)
	// Declared up front so scripts can report failures by assigning to it.
	if err := s.Add("err", ""); err != nil {
		return errors.Wrapf(errors.ErrHookExecution, "%s: %v", name, err)
	}

	compiled, err := s.RunContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrHookExecution, "%s: %v", name, err)
	}

	if errVar := compiled.Get("err"); errVar != nil {
		switch v := errVar.Value().(type) {
		case error:
			return errors.Wrapf(errors.ErrHookScript, "%s: %v", name, v)
		case string:
			if v != "" {
				return errors.Wrapf(errors.ErrHookScript, "%s: %s", name, v)
			}
		}
	}

	logger.Debug("Hook script executed successfully", logger.Fields{"hook": name, "mod": hc.ModID})
	return nil
}

// setupScriptContext exposes hc to scripts as the "context" and "dirs" modules.
func setupScriptContext(moduleMap *tengo.ModuleMap, hc *HookContext) {
	moduleMap.AddBuiltinModule("context", map[string]tengo.Object{
		"mod_id":      &tengo.String{Value: hc.ModID},
		"mod_version": &tengo.String{Value: hc.ModVersion},
		"variant":     &tengo.String{Value: hc.Variant},
		"event":       &tengo.String{Value: hc.Event},
		"operation":   &tengo.String{Value: hc.Operation},
		"game_dir":    &tengo.String{Value: hc.GameDir},
	})

	dirModule := make(map[string]tengo.Object)
	if hc.GameDir != "" {
		dirModule["game_dir"] = &tengo.String{Value: hc.GameDir}
	}
	if hc.ModDir != "" {
		dirModule["mod_dir"] = &tengo.String{Value: hc.ModDir}
	}
	if hc.LibraryDir != "" {
		dirModule["library_dir"] = &tengo.String{Value: hc.LibraryDir}
	}
	if len(dirModule) > 0 {
		moduleMap.AddBuiltinModule("dirs", dirModule)
	}
}
