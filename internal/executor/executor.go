// Package executor runs a job's command. Two strategies share one
// interface: an in-process JavaScript runtime and a legacy shell subprocess.
package executor

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/xyrun/internal/config"
	"github.com/mattjoyce/xyrun/internal/helpers"
	"github.com/mattjoyce/xyrun/internal/protocol"
)

// Executor compiles and runs one command block.
type Executor interface {
	// Name identifies the strategy in logs.
	Name() string
	// ExtensionGlob selects the input files loaded as extensions.
	ExtensionGlob() string
	// Compile validates source. It must be called before Execute.
	Compile(source string) error
	// LoadExtension makes the file at path available to the command.
	LoadExtension(path string) error
	// Execute runs the compiled command.
	Execute(ctx context.Context) error
}

// UnsupportedRuntimeError means the requested runtime cannot run on this
// host. The runner reports it with its own terminal code.
type UnsupportedRuntimeError struct {
	Reason string
}

func (e *UnsupportedRuntimeError) Error() string {
	return e.Reason
}

// Select returns the executor the job asks for.
func Select(lib *helpers.Library, cfg *config.Config, logger *slog.Logger) Executor {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if lib.Job().ParamBool(protocol.ParamLegacyShell) {
		return NewShell(lib, cfg.Legacy, logger)
	}
	return NewScript(lib, cfg.Script, logger)
}

// Digest returns a short BLAKE3 fingerprint of source.
func Digest(source string) string {
	sum := blake3.Sum256([]byte(source))
	return hex.EncodeToString(sum[:8])
}
