package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/safetext/internal/logging"
)

func TestLoggerNotifierWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(logging.NewWithWriter(&buf, "info"))

	if err := n.Send(context.Background(), Message{Kind: KindReply, Destination: "+1555", Body: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), `"destination":"+1555"`) {
		t.Fatalf("expected destination in log, got %s", buf.String())
	}

	var nilNotifier *LoggerNotifier
	if err := nilNotifier.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("nil notifier should be a no-op: %v", err)
	}
}

func TestAppleScriptNotifierPassesArgumentsVerbatim(t *testing.T) {
	dir := t.TempDir()
	n := NewAppleScriptNotifier(dir)

	var gotName string
	var gotArgs []string
	n.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("sent"), nil
	}

	body := `Balance "5" USDC; $(rm -rf /)`
	if err := n.Send(context.Background(), Message{Destination: "+15551234", Body: body}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotName != "osascript" {
		t.Fatalf("expected osascript, got %s", gotName)
	}
	if len(gotArgs) != 3 || gotArgs[0] != n.ScriptPath() || gotArgs[1] != "+15551234" || gotArgs[2] != body {
		t.Fatalf("unexpected args %q", gotArgs)
	}

	script, err := os.ReadFile(filepath.Join(dir, "send_message.applescript"))
	if err != nil {
		t.Fatalf("script not written: %v", err)
	}
	if !bytes.Equal(script, sendScript) {
		t.Fatal("script content mismatch")
	}
}

func TestAppleScriptNotifierReportsFailure(t *testing.T) {
	n := NewAppleScriptNotifier(t.TempDir())
	n.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("execution error: not authorized\n"), errors.New("exit status 1")
	}

	err := n.Send(context.Background(), Message{Destination: "+1", Body: "x"})
	if err == nil || !strings.Contains(err.Error(), "not authorized") {
		t.Fatalf("expected osascript output in error, got %v", err)
	}
}

func TestQueueNotifierPushesJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n := NewQueueNotifier(client, "outbound:v1")
	n.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	if err := n.Send(context.Background(), Message{Kind: KindReply, Destination: "+1555", Body: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	items, err := mr.List("outbound:v1")
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one queued item, got %v (%v)", items, err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(items[0]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["destination"] != "+1555" || decoded["body"] != "hello" || decoded["kind"] != KindReply {
		t.Fatalf("unexpected payload %v", decoded)
	}
	if decoded["queued_at"] != "2023-11-14T22:13:20Z" {
		t.Fatalf("unexpected queued_at %v", decoded["queued_at"])
	}
}
