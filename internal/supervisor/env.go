package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/schollz/progressbar/v3"

	"github.com/exorde-labs/swarm-control/internal/logging"
	"github.com/exorde-labs/swarm-control/internal/topology"
	"github.com/exorde-labs/swarm-control/internal/ui"
)

// requirementsFile is the co-located pinned-dependency manifest §4.5 looks
// for next to a node's venv directory.
const requirementsFile = "requirements.txt"

// markerFile is dropped inside venv on a successful one-shot install, so
// repeated supervisor starts can stat it instead of reinstalling (§4.5:
// "Environment creation is one-shot and cached").
const markerFile = ".supervisor-env-ready"

// InterpreterPath returns the executable a child using venv is launched
// with: venv/bin/blade-supervisor if that file exists, otherwise the
// process's own executable. The supervisor itself re-execs as the child (it is the blade binary), so
// this is used only to decide whether an isolated environment's own copy of
// the supervisor binary should be preferred; see InterpreterFor.
func InterpreterPath(venv string) (string, error) {
	candidate := filepath.Join(venv, "bin", "blade-supervisor")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	// No binary copy staged inside the venv: fall back to the process's own
	// executable, which is always capable of morphing into any blade.
	return os.Executable()
}

// EnsureEnv materializes the isolated execution environment at node.Venv if
// it does not already exist, installing the pinned base dependencies from a
// co-located requirements manifest. Creation is one-shot: a prior successful
// run is detected via markerFile and skipped. If the manifest is absent,
// EnsureEnv proceeds with a bare environment and logs a warning.
//
// jsonMode (no progress bar) and an unattached stdout both suppress the
// progressbar/v3 bar, mirroring the teacher's own --json-auto-enables-quiet
// interplay between internal/ui and the progress reporting in
// cmd/cie/index.go.
func EnsureEnv(ctx context.Context, node topology.Node, jsonMode bool, logger *logging.Logger) error {
	venv := node.Venv
	if venv == "" {
		return nil
	}

	marker := filepath.Join(venv, markerFile)
	if _, err := os.Stat(marker); err == nil {
		logger.Debug("supervisor: env for %s already materialized at %s", node.Name, venv)
		return nil
	}

	if err := os.MkdirAll(venv, 0o755); err != nil {
		return fmt.Errorf("create venv dir %s: %w", venv, err)
	}

	if err := createVirtualenv(ctx, venv, logger); err != nil {
		return fmt.Errorf("create virtualenv at %s: %w", venv, err)
	}

	manifest := filepath.Join(filepath.Dir(venv), requirementsFile)
	if _, err := os.Stat(manifest); err != nil {
		logger.Warn("supervisor: no requirements manifest for %s at %s, proceeding with bare environment", node.Name, manifest)
	} else if err := installRequirements(ctx, venv, manifest, jsonMode, logger); err != nil {
		return fmt.Errorf("install requirements for %s: %w", node.Name, err)
	}

	if err := os.WriteFile(marker, []byte("ok\n"), 0o644); err != nil {
		return fmt.Errorf("write env marker for %s: %w", node.Name, err)
	}

	if _, err := os.Stat(manifest); err == nil {
		go watchManifest(ctx, manifest, node.Name, logger)
	}
	return nil
}

func createVirtualenv(ctx context.Context, venv string, logger *logging.Logger) error {
	cmd := exec.CommandContext(ctx, "python3", "-m", "venv", venv)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(out))
	}
	logger.Info("supervisor: created virtualenv at %s", venv)
	return nil
}

func installRequirements(ctx context.Context, venv, manifest string, jsonMode bool, logger *logging.Logger) error {
	pip := filepath.Join(venv, "bin", "pip")

	var bar *progressbar.ProgressBar
	showBar := !jsonMode && ui.IsTerminal(os.Stdout)
	if showBar {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("installing pinned dependencies"),
			progressbar.OptionSpinnerType(14),
		)
	}

	cmd := exec.CommandContext(ctx, pip, "install", "-r", manifest)
	if showBar {
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(100 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					_ = bar.Add(1)
				}
			}
		}()
	}

	out, err := cmd.CombinedOutput()
	if showBar {
		_ = bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(out))
	}
	logger.Info("supervisor: installed pinned dependencies from %s", manifest)
	return nil
}

// watchManifest is the fsnotify-backed stale-dependency warning of §4.5: the
// one-shot environment cache is never invalidated automatically, but an
// operator who edits a manifest after install gets a cheap WARN instead of
// silent drift.
func watchManifest(ctx context.Context, manifest, nodeName string, logger *logging.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("supervisor: cannot watch manifest %s for %s: %v", manifest, nodeName, err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(manifest); err != nil {
		logger.Warn("supervisor: cannot watch manifest %s for %s: %v", manifest, nodeName, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.Warn("supervisor: requirements manifest %s changed after env install for %s; the installed environment is not refreshed automatically", manifest, nodeName)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("supervisor: manifest watch error for %s: %v", nodeName, werr)
		}
	}
}
