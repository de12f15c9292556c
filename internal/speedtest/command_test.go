package speedtest

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubCommandOutput(t *testing.T, fn func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	t.Helper()
	orig := runCombinedOutput
	runCombinedOutput = fn
	t.Cleanup(func() { runCombinedOutput = orig })
}

func TestCommandRunReturnsOutput(t *testing.T) {
	var gotName string
	var gotArgs []string
	stubCommandOutput(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("Ping: 1 ms\n"), nil
	})

	out, err := Command{Path: "speedtest-cli", Args: DefaultArgs}.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ping: 1 ms\n", out)
	assert.Equal(t, "speedtest-cli", gotName)
	assert.Equal(t, []string{"--simple"}, gotArgs)
}

func TestCommandRunStartFailure(t *testing.T) {
	startErr := errors.New("exec: \"speedtest-cli\": executable file not found in $PATH")
	stubCommandOutput(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, startErr
	})

	_, err := Command{Path: "speedtest-cli", Args: DefaultArgs}.Run(context.Background())
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, -1, cmdErr.ExitCode)
	assert.Equal(t, "speedtest-cli --simple", cmdErr.Command)
	assert.ErrorIs(t, err, startErr)
}

func TestCommandRunAppliesTimeout(t *testing.T) {
	stubCommandOutput(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return []byte("ok"), nil
	})

	_, err := Command{Path: "speedtest-cli", Timeout: time.Minute}.Run(context.Background())
	require.NoError(t, err)
}

func TestCommandRunExitCode(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	cmd := Command{Path: "sh", Args: []string{"-c", "echo 'Cannot retrieve speedtest configuration'; echo oops >&2; exit 3"}}
	out, err := cmd.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, out)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Output, "Cannot retrieve speedtest configuration")
	assert.Contains(t, cmdErr.Output, "oops")
	assert.Contains(t, cmdErr.Error(), "exit code 3")
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "/opt/speedtest-cli/speedtest_cli.py --simple",
		Command{Path: "/opt/speedtest-cli/speedtest_cli.py", Args: DefaultArgs}.String())
	assert.Equal(t, "speedtest-cli", Command{Path: "speedtest-cli"}.String())
}
