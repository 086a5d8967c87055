package notification

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

//go:embed send_message.applescript
var sendScript []byte

// runner executes a command and returns its combined output.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// AppleScriptNotifier sends texts through the desktop Messages app by UI
// automation. Arguments are passed to osascript directly, never through a
// shell.
type AppleScriptNotifier struct {
	scriptPath string
	run        runner

	once    sync.Once
	initErr error
}

// NewAppleScriptNotifier builds a notifier that keeps its script under dir.
func NewAppleScriptNotifier(dir string) *AppleScriptNotifier {
	return &AppleScriptNotifier{scriptPath: filepath.Join(dir, "send_message.applescript"), run: execRunner}
}

// ScriptPath returns where the automation script is written.
func (n *AppleScriptNotifier) ScriptPath() string {
	return n.scriptPath
}

func (n *AppleScriptNotifier) ensureScript() error {
	n.once.Do(func() {
		if existing, err := os.ReadFile(n.scriptPath); err == nil && bytes.Equal(existing, sendScript) {
			return
		}
		if err := os.MkdirAll(filepath.Dir(n.scriptPath), 0o755); err != nil {
			n.initErr = fmt.Errorf("create script dir: %w", err)
			return
		}
		if err := os.WriteFile(n.scriptPath, sendScript, 0o644); err != nil {
			n.initErr = fmt.Errorf("write script: %w", err)
		}
	})
	return n.initErr
}

// Send runs the automation script for one message.
func (n *AppleScriptNotifier) Send(ctx context.Context, message Message) error {
	if err := n.ensureScript(); err != nil {
		return err
	}
	out, err := n.run(ctx, "osascript", n.scriptPath, message.Destination, message.Body)
	if err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
