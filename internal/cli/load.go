package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/metaop/internal/config"
	"github.com/roach88/metaop/internal/oplog"
	"github.com/roach88/metaop/internal/strategy"
)

// loadStrategies returns the strategy set from path, or the built-in
// defaults when path is empty. Every enabled strategy is constructed once
// so parameter errors surface before any operation is touched.
func loadStrategies(f *OutputFormatter, path string) ([]strategy.Config, error) {
	if path == "" {
		f.VerboseLog("Using built-in strategy defaults")
		return config.Default().Strategies(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, failConfig(f, err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, failConfig(f, errors.Join(errs...))
	}
	f.VerboseLog("Loaded %d strategies from %s", len(cfg.Entries), path)
	return cfg.Strategies(), nil
}

func failConfig(f *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var loadErr *config.LoadError
	if errors.As(err, &loadErr) {
		code = loadErr.Code
	}
	return f.Fail(ExitCommandError, code, "invalid configuration", err)
}

// loadOperation reads one operation file.
func loadOperation(f *OutputFormatter, path string) (*oplog.Operation, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("operation file not found: %s", path), nil)
	}
	op, err := oplog.ReadFile(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidOperation, "failed to load operation", err)
	}
	slog.Debug("operation loaded",
		"path", path,
		"name", op.Name,
		"records", len(op.SubOperations),
	)
	return op, nil
}
