package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"finai/internal/config"
	"finai/internal/core"
	"finai/internal/log"
	"finai/internal/oracle"
)

var testNow = time.Date(2025, 4, 10, 15, 30, 0, 0, time.UTC)

func padaria(context.Context, *config.Config, *log.Logger) (oracle.Classifier, error) {
	return oracle.Func(func(_ context.Context, req oracle.Request) (oracle.Result, error) {
		return oracle.Result{
			Type:        oracle.PointTransaction,
			IntentLabel: "Gasto",
			Transaction: &oracle.Payload{Amount: 45.9, Merchant: "Padaria"},
			Response:    "Anotado.",
		}, nil
	}), nil
}

// setupEnv points the CLI at a fresh SQLite file with every optional
// integration switched off.
func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FINAI_CONFIG", "")
	t.Setenv("FINAI_DATA_BACKEND", "sqlite")
	t.Setenv("FINAI_SQLITE_DB_PATH", filepath.Join(t.TempDir(), "finai.db"))
	t.Setenv("FINAI_AMQP_URL", "")
	t.Setenv("FINAI_RECEIPTS_BUCKET", "")
	t.Setenv("FINAI_GOOGLE_SPREADSHEET_ID", "")
	t.Setenv("FINAI_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{newClassifier: padaria, now: func() time.Time { return testNow }}
	cmd := newRootCommand(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestChatAndReport(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "chat", "--user", "u1", "--confirm", "paguei", "45,90", "na", "padaria")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	var chat chatOutput
	if err := json.Unmarshal([]byte(out), &chat); err != nil {
		t.Fatalf("decode chat output %q: %v", out, err)
	}
	if chat.Reply.Type != oracle.PointTransaction || chat.Reply.Transaction == nil {
		t.Fatalf("reply = %+v", chat.Reply)
	}
	if chat.Confirmation == nil || chat.Confirmation.Transaction.Status != core.StatusConfirmed {
		t.Fatalf("confirmation = %+v", chat.Confirmation)
	}

	// A second process sees what the first one saved.
	out, err = run(t, "report", "--user", "u1", "--months", "6")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	var rep report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if rep.Summary.Outflow != 4590 {
		t.Errorf("outflow = %d, want 4590", rep.Summary.Outflow)
	}
	if len(rep.Projection.Months) != 6 {
		t.Errorf("projection months = %d, want 6", len(rep.Projection.Months))
	}
	if !rep.Sync.Loaded || rep.Sync.Warning != "" {
		t.Errorf("sync = %+v", rep.Sync)
	}
}

func TestChatWithoutConfirmLeavesPending(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "chat", "--user", "u2", "padaria", "45,90")
	if err != nil {
		t.Fatal(err)
	}
	var chat chatOutput
	if err := json.Unmarshal([]byte(out), &chat); err != nil {
		t.Fatal(err)
	}
	if chat.Confirmation != nil {
		t.Error("nothing should be confirmed")
	}
	if chat.Reply.Transaction == nil || chat.Reply.Transaction.Status == core.StatusConfirmed {
		t.Errorf("transaction = %+v", chat.Reply.Transaction)
	}
}

func TestRecurringOnEmptyLedger(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "recurring", "--user", "u3")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got["posted"] != 0 {
		t.Errorf("posted = %d, want 0", got["posted"])
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want error
	}{
		{
			name: "worker without broker",
			args: []string{"worker"},
			want: errNoBroker,
		},
		{
			name: "report needs a user",
			args: []string{"report"},
		},
		{
			name: "invalid configuration",
			env:  map[string]string{"FINAI_SAVE_DELAY": "0s"},
			args: []string{"report", "--user", "u1"},
		},
		{
			name: "image that is not an image",
			args: []string{"chat", "--user", "u1", "--image", "commands_test.go", "oi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := run(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGeminiClassifierWithoutKeyFallsBack(t *testing.T) {
	cfg := &config.Config{GeminiTimeout: time.Second}
	c, err := geminiClassifier(context.Background(), cfg, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Classify(context.Background(), oracle.Request{Text: "oi"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != oracle.Clarification {
		t.Errorf("type = %s, want clarification", res.Type)
	}
}
