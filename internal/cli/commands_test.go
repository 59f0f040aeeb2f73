package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quorum/internal/store"
)

// runCLI executes one quorum invocation against db and returns stdout.
func runCLI(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	if db != "" {
		args = append([]string{"--db", db}, args...)
	}
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// mustRun is runCLI that fails the test on error.
func mustRun(t *testing.T, db string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, db, args...)
	require.NoError(t, err, "quorum %v\n%s", args, out)
	return out
}

// createTestDB initialises a three-owner, threshold-two event log.
func createTestDB(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "quorum.db")
	mustRun(t, db, "init", "--owners", "alice,bob,carol", "--threshold", "2")
	return db
}

func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := runCLI(t, "", "--format", "xml", "owners")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{
		"init", "deposit", "submit", "confirm", "revoke", "execute",
		"show", "list", "owners", "trace", "replay", "validate", "test",
	} {
		assert.Contains(t, names, want)
	}
}

func TestInit_RecordsRegistry(t *testing.T) {
	db := createTestDB(t)

	out := mustRun(t, db, "owners")
	assert.Contains(t, out, "owners:    alice, bob, carol")
	assert.Contains(t, out, "threshold: 2 of 3")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	reg, err := st.LoadRegistry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Threshold())
}

func TestInit_Idempotent(t *testing.T) {
	db := createTestDB(t)
	mustRun(t, db, "init", "--owners", "alice,bob,carol", "--threshold", "2")
}

func TestInit_DifferentRegistryRejected(t *testing.T) {
	db := createTestDB(t)

	out, err := runCLI(t, db, "init", "--owners", "alice,bob", "--threshold", "1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))
	assert.ErrorIs(t, err, store.ErrRegistryMismatch)
	assert.Contains(t, out, "Error [ERROR]")
}

func TestInit_InvalidRegistry(t *testing.T) {
	db := filepath.Join(t.TempDir(), "quorum.db")

	out, err := runCLI(t, db, "--format", "json", "init", "--owners", "alice,bob", "--threshold", "3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "INVALID_CONFIGURATION")
}

func TestInit_FromConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "vault.db")
	cfg := filepath.Join(dir, "quorum.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("owners: [ann, ben]\nthreshold: 1\n"), 0644))

	mustRun(t, db, "--config", cfg, "init")

	out := mustRun(t, db, "owners")
	assert.Contains(t, out, "ann, ben")
	assert.Contains(t, out, "threshold: 1 of 2")
}

func TestCommands_NotInitialised(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	_, err := runCLI(t, db, "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "not initialised")
	assert.ErrorIs(t, err, store.ErrNoRegistry)
}

func TestCommands_ThresholdFlow(t *testing.T) {
	db := createTestDB(t)

	assert.Equal(t, "balance: 100\n", mustRun(t, db, "deposit", "ops", "100"))

	out := mustRun(t, db, "submit", "--owner", "alice", "--target", "vendor", "--amount", "30", "--payload", "inv-7")
	assert.Contains(t, out, "submitted action 0")
	assert.Contains(t, out, "action 0: below_threshold")

	out = mustRun(t, db, "confirm", "0", "--owner", "bob")
	assert.Contains(t, out, "action 0: executed")
	assert.Contains(t, out, "balance: 70")

	// Later confirmations are recorded but never execute again.
	out = mustRun(t, db, "confirm", "0", "--owner", "carol")
	assert.Contains(t, out, "action 0: already_executed")
	assert.Contains(t, out, "balance: 70")

	out = mustRun(t, db, "show", "0")
	assert.Contains(t, out, "action 0 (executed)")
	assert.Contains(t, out, "confirmations: 3/2 (alice, bob, carol)")
	assert.Contains(t, out, "payload:       696e762d37")

	out = mustRun(t, db, "trace", "0")
	assert.Contains(t, out, "2 Submitted action=0 owner=alice target=vendor amount=30 payload=696e762d37")
	assert.Contains(t, out, "5 Executed action=0 target=vendor amount=30")
	assert.NotContains(t, out, "Deposited")

	out = mustRun(t, db, "trace")
	assert.Contains(t, out, "1 Deposited sender=ops amount=100")

	out = mustRun(t, db, "replay")
	assert.Contains(t, out, "events:   6 (last seq 6)")
	assert.Contains(t, out, "actions:  1 (1 executed, 0 pending)")
	assert.Contains(t, out, "balance:  70")
	assert.Contains(t, out, "replay:   deterministic")
}

func TestCommands_FailedExecutionRetries(t *testing.T) {
	db := createTestDB(t)

	mustRun(t, db, "submit", "--owner", "alice", "--target", "vendor", "--amount", "50")

	// A failed attempt is an outcome, not a command error.
	out := mustRun(t, db, "confirm", "0", "--owner", "bob")
	assert.Contains(t, out, "action 0: failed (insufficient funds: balance 0, requested 50)")

	out = mustRun(t, db, "list", "--pending")
	assert.Contains(t, out, "proposed")
	assert.Contains(t, out, "2/2")

	mustRun(t, db, "deposit", "ops", "80")

	out = mustRun(t, db, "execute", "0")
	assert.Contains(t, out, "action 0: executed")
	assert.Contains(t, out, "balance: 30")

	out = mustRun(t, db, "list", "--pending")
	assert.Contains(t, out, "No actions.")

	out = mustRun(t, db, "trace", "0")
	assert.Contains(t, out, `ExecutionFailed action=0 target=vendor amount=50 reason="insufficient funds: balance 0, requested 50"`)
	assert.Contains(t, out, "Executed action=0 target=vendor amount=50")
}

func TestCommands_Revoke(t *testing.T) {
	db := createTestDB(t)

	mustRun(t, db, "submit", "--owner", "alice", "--target", "vendor", "--amount", "0")

	out := mustRun(t, db, "revoke", "0", "--owner", "alice")
	assert.Contains(t, out, "action 0: below_threshold")

	_, err := runCLI(t, db, "revoke", "0", "--owner", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var view ActionView
	decodeData(t, mustRun(t, db, "--format", "json", "show", "0"), &view)
	assert.Equal(t, 0, view.Confirmations)
	assert.Empty(t, view.ConfirmedBy)
	assert.False(t, view.Executed)
}

func TestCommands_EngineRejectionJSON(t *testing.T) {
	db := createTestDB(t)
	mustRun(t, db, "submit", "--owner", "alice", "--target", "vendor")

	out, err := runCLI(t, db, "--format", "json", "confirm", "0", "--owner", "mallory")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, IsReported(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
	require.NotNil(t, resp.Error.ActionID)
	assert.Equal(t, int64(0), *resp.Error.ActionID)

	_, err = runCLI(t, db, "show", "9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = runCLI(t, db, "deposit", "--", "ops", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestCommands_ArgumentErrors(t *testing.T) {
	db := createTestDB(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad action id", []string{"confirm", "zero", "--owner", "bob"}},
		{"bad amount", []string{"submit", "--owner", "alice", "--target", "v", "--amount", "lots"}},
		{"bad payload hex", []string{"submit", "--owner", "alice", "--target", "v", "--payload-hex", "zz"}},
		{"bad deposit amount", []string{"deposit", "ops", "ten"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, db, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestCommands_JSONOutcome(t *testing.T) {
	db := createTestDB(t)
	mustRun(t, db, "deposit", "ops", "10")

	var sub SubmitView
	decodeData(t, mustRun(t, db, "--format", "json", "submit", "--owner", "bob", "--target", "v", "--amount", "4", "--payload-hex", "cafe"), &sub)
	assert.Equal(t, int64(0), sub.ActionID)
	assert.Equal(t, "below_threshold", sub.Status)

	var out OutcomeView
	decodeData(t, mustRun(t, db, "--format", "json", "confirm", "0", "--owner", "carol"), &out)
	assert.Equal(t, "executed", out.Status)
	assert.Equal(t, "6", out.Balance)
	assert.Empty(t, out.Reason)

	var list ListView
	decodeData(t, mustRun(t, db, "--format", "json", "list"), &list)
	require.Len(t, list.Actions, 1)
	assert.Equal(t, "cafe", list.Actions[0].Payload)
	assert.Equal(t, "6", list.Balance)

	var trace TraceView
	decodeData(t, mustRun(t, db, "--format", "json", "trace"), &trace)
	assert.Len(t, trace.Events, 5)
}

func TestReplay_EmptyLog(t *testing.T) {
	db := createTestDB(t)

	var r ReplayResult
	decodeData(t, mustRun(t, db, "--format", "json", "replay"), &r)
	assert.Equal(t, 0, r.Events)
	assert.True(t, r.Deterministic)
	assert.Equal(t, "0", r.Balance)
}

func TestValidate_Config(t *testing.T) {
	out := mustRun(t, "", "validate", "../config/testdata/valid.yaml")
	assert.Contains(t, out, "3 owners (alice, bob, carol), threshold 2, database vault.db")

	out, err := runCLI(t, "", "validate", "../config/testdata/threshold_too_high.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "INVALID_CONFIGURATION")

	_, err = runCLI(t, "", "validate", "../config/testdata/unknown_field.cue")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
