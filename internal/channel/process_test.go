package channel

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/inercia/tether/internal/message"
)

func TestProcessEcho(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	// The engine announces readiness, then answers every command with
	// a messageUpdated envelope carrying a say/text message.
	script := `echo '{"type":"ready"}'
while read line; do
  echo '{"type":"messageUpdated","message":{"ts":1,"type":"say","say":"text","text":"pong"}}'
done
`
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	p, err := StartProcess(context.Background(), ProcessConfig{
		Command: "sh " + path,
		Stderr:  io.Discard,
	})
	if err != nil {
		t.Fatalf("StartProcess() error = %v", err)
	}
	defer p.Close()

	waitClosed(t, p.Ready(), "ready")
	if err := p.Send(context.Background(), message.NewTask("ping")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	env := nextEnvelope(t, p.Inbound())
	if env.Message == nil || env.Message.Text != "pong" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestStartProcessInvalidCommand(t *testing.T) {
	if _, err := StartProcess(context.Background(), ProcessConfig{Command: ""}); err == nil {
		t.Error("StartProcess(\"\") error = nil")
	}
}
