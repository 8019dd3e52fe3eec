package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/mattjoyce/xyrun/internal/config"
	"github.com/mattjoyce/xyrun/internal/helpers"
	"github.com/mattjoyce/xyrun/internal/protocol"
	"github.com/mattjoyce/xyrun/internal/xyapi"
)

// Script runs the command in an embedded JavaScript runtime.
type Script struct {
	lib    *helpers.Library
	cfg    config.ScriptConfig
	logger *slog.Logger

	vm      *goja.Runtime
	program *goja.Program
	ctx     context.Context
}

// NewScript builds a script executor with the job globals bound.
func NewScript(lib *helpers.Library, cfg config.ScriptConfig, logger *slog.Logger) *Script {
	s := &Script{
		lib:    lib,
		cfg:    cfg,
		logger: logger,
		vm:     goja.New(),
		ctx:    context.Background(),
	}
	s.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	s.bind()
	return s
}

func (s *Script) Name() string { return "script" }

func (s *Script) ExtensionGlob() string {
	if s.cfg.ExtensionGlob == "" {
		return "*.js"
	}
	return s.cfg.ExtensionGlob
}

func (s *Script) Compile(source string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("command is empty")
	}
	prg, err := goja.Compile("command", source, false)
	if err != nil {
		return fmt.Errorf("compile command: %w", err)
	}
	s.program = prg
	s.logger.Debug("compiled command", "executor", s.Name(), "script_digest", Digest(source))
	return nil
}

// LoadExtension compiles and runs the file in the job's runtime so its
// definitions are visible to the command.
func (s *Script) LoadExtension(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read extension: %w", err)
	}
	prg, err := goja.Compile(filepath.Base(path), string(src), false)
	if err != nil {
		return fmt.Errorf("compile extension %s: %w", filepath.Base(path), err)
	}
	if _, err := s.run(context.Background(), prg); err != nil {
		return fmt.Errorf("load extension %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *Script) Execute(ctx context.Context) error {
	if s.program == nil {
		return fmt.Errorf("execute: command not compiled")
	}
	_, err := s.run(ctx, s.program)
	return err
}

// run executes prg, interrupting the runtime when ctx ends.
func (s *Script) run(ctx context.Context, prg *goja.Program) (goja.Value, error) {
	s.ctx = ctx
	stop := context.AfterFunc(ctx, func() {
		s.vm.Interrupt(ctx.Err())
	})
	defer func() {
		if !stop() {
			s.vm.ClearInterrupt()
		}
		s.ctx = context.Background()
	}()

	v, err := s.vm.RunProgram(prg)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("command interrupted: %w", ctx.Err())
		}
		return nil, err
	}
	return v, nil
}

func (s *Script) bind() {
	vm := s.vm

	if err := vm.Set("job", s.jsValue(s.lib.Job())); err != nil {
		panic(err)
	}

	console := vm.NewObject()
	for name, level := range map[string]string{"log": "info", "info": "info", "warn": "warning", "error": "error"} {
		level := level
		s.set(console, name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			s.check(s.lib.Log(strings.Join(parts, " "), level))
			return goja.Undefined()
		})
	}
	if err := vm.Set("console", console); err != nil {
		panic(err)
	}

	xy := vm.NewObject()
	s.bindEmitters(xy)
	s.bindRemote(xy)
	if err := vm.Set("xy", xy); err != nil {
		panic(err)
	}
}

func (s *Script) bindEmitters(xy *goja.Object) {
	lib := s.lib

	s.set(xy, "progress", func(call goja.FunctionCall) goja.Value {
		s.check(lib.Progress(call.Argument(0).ToFloat(), optString(call.Argument(1))))
		return goja.Undefined()
	})
	s.set(xy, "status", func(call goja.FunctionCall) goja.Value {
		s.check(lib.Status(call.Argument(0).String()))
		return goja.Undefined()
	})
	s.set(xy, "label", func(call goja.FunctionCall) goja.Value {
		s.check(lib.Label(call.Argument(0).String()))
		return goja.Undefined()
	})
	s.set(xy, "data", func(call goja.FunctionCall) goja.Value {
		s.check(lib.Data(call.Argument(0).Export()))
		return goja.Undefined()
	})
	s.set(xy, "file", func(call goja.FunctionCall) goja.Value {
		s.check(lib.File(optString(call.Argument(0))))
		return goja.Undefined()
	})
	s.set(xy, "perf", func(call goja.FunctionCall) goja.Value {
		var metrics map[string]any
		s.check(s.vm.ExportTo(call.Argument(0), &metrics))
		scale := 0.0
		if v := call.Argument(1); !isNullish(v) {
			scale = v.ToFloat()
		}
		s.check(lib.Perf(metrics, scale))
		return goja.Undefined()
	})
	s.set(xy, "table", func(call goja.FunctionCall) goja.Value {
		var t protocol.Table
		s.check(s.vm.ExportTo(call.Argument(0), &t.Rows))
		if v := call.Argument(1); !isNullish(v) {
			s.check(s.vm.ExportTo(v, &t.Header))
		}
		t.Title = optString(call.Argument(2))
		t.Caption = optString(call.Argument(3))
		s.check(lib.Table(t))
		return goja.Undefined()
	})
	s.set(xy, "html", s.panel(lib.HTML))
	s.set(xy, "text", s.panel(lib.Text))
	s.set(xy, "markdown", s.panel(lib.Markdown))
	s.set(xy, "log", func(call goja.FunctionCall) goja.Value {
		s.check(lib.Log(call.Argument(0).String(), optString(call.Argument(1))))
		return goja.Undefined()
	})
	s.set(xy, "param", func(call goja.FunctionCall) goja.Value {
		return s.jsValue(lib.Param(call.Argument(0).String(), call.Argument(1).Export()))
	})
	s.set(xy, "params", func(goja.FunctionCall) goja.Value {
		s.check(lib.Params())
		return goja.Undefined()
	})
	s.set(xy, "inputFiles", func(goja.FunctionCall) goja.Value {
		return s.jsValue(lib.InputFiles())
	})
	s.set(xy, "emit", func(call goja.FunctionCall) goja.Value {
		s.check(lib.Emit(call.Argument(0).Export()))
		return goja.Undefined()
	})
}

func (s *Script) bindRemote(xy *goja.Object) {
	lib := s.lib

	s.set(xy, "getBucketFile", func(call goja.FunctionCall) goja.Value {
		path, err := lib.GetBucketFile(s.ctx, call.Argument(0).String(), call.Argument(1).String(), optString(call.Argument(2)))
		s.check(err)
		return s.vm.ToValue(path)
	})
	s.set(xy, "putBucketFile", func(call goja.FunctionCall) goja.Value {
		s.check(lib.PutBucketFile(s.ctx, call.Argument(0).String(), call.Argument(1).String()))
		return goja.Undefined()
	})
	s.set(xy, "deleteBucketFile", func(call goja.FunctionCall) goja.Value {
		s.check(lib.DeleteBucketFile(s.ctx, call.Argument(0).String(), call.Argument(1).String()))
		return goja.Undefined()
	})
	s.set(xy, "getBucketData", func(call goja.FunctionCall) goja.Value {
		data, err := lib.GetBucketData(s.ctx, call.Argument(0).String())
		s.check(err)
		return s.jsValue(data)
	})
	s.set(xy, "putBucketData", func(call goja.FunctionCall) goja.Value {
		var data map[string]any
		s.check(s.vm.ExportTo(call.Argument(1), &data))
		s.check(lib.PutBucketData(s.ctx, call.Argument(0).String(), data))
		return goja.Undefined()
	})
	s.set(xy, "cacheGet", func(call goja.FunctionCall) goja.Value {
		v, err := lib.CacheGet(s.ctx, call.Argument(0).String())
		s.check(err)
		if v == nil {
			return goja.Null()
		}
		return s.jsValue(v)
	})
	s.set(xy, "cacheSet", func(call goja.FunctionCall) goja.Value {
		s.check(lib.CacheSet(s.ctx, call.Argument(0).String(), call.Argument(1).Export()))
		return goja.Undefined()
	})
	s.set(xy, "getTags", func(call goja.FunctionCall) goja.Value {
		var filter xyapi.TagFilter
		if v := call.Argument(0); !isNullish(v) {
			var raw struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			}
			s.check(s.vm.ExportTo(v, &raw))
			filter = xyapi.TagFilter{ID: raw.ID, Title: raw.Title}
		}
		tags, err := lib.GetTags(s.ctx, filter)
		s.check(err)
		return s.jsValue(tags)
	})
	s.set(xy, "pushTags", func(call goja.FunctionCall) goja.Value {
		var names []string
		if v := call.Argument(0); !isNullish(v) {
			s.check(s.vm.ExportTo(v, &names))
		}
		s.check(lib.PushTags(s.ctx, names))
		return goja.Undefined()
	})
	s.set(xy, "sendEmail", func(call goja.FunctionCall) goja.Value {
		var msg xyapi.Email
		s.check(s.vm.ExportTo(call.Argument(0), &msg))
		s.check(lib.SendEmail(s.ctx, msg))
		return goja.Undefined()
	})
}

func (s *Script) panel(emit func(content, title, caption string) error) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		s.check(emit(call.Argument(0).String(), optString(call.Argument(1)), optString(call.Argument(2))))
		return goja.Undefined()
	}
}

func (s *Script) set(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	if err := obj.Set(name, fn); err != nil {
		panic(err)
	}
}

// check raises err as a JavaScript exception.
func (s *Script) check(err error) {
	if err != nil {
		panic(s.vm.NewGoError(err))
	}
}

// jsValue hands v to the runtime as plain JSON data, so scripts see the
// wire field names and can mutate the result freely.
func (s *Script) jsValue(v any) goja.Value {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(s.vm.NewGoError(fmt.Errorf("convert value: %w", err)))
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		panic(s.vm.NewGoError(fmt.Errorf("convert value: %w", err)))
	}
	return s.vm.ToValue(plain)
}

func optString(v goja.Value) string {
	if isNullish(v) {
		return ""
	}
	return v.String()
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
