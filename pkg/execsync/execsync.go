// Package execsync is a Synchronizer plugin that shells out to a
// configured command to perform a resource's synchronize or test step,
// the exec-based plugin every ResourceSynchronizer type in the original
// was meant to allow third parties to supply.
//
// Grounded on pkg/health/exec.go's ExecChecker: same
// os/exec.CommandContext + stdout/stderr capture + timeout-context
// shape, repurposed from a boolean health Result into a
// model.ResourceSynchronizationResult.
package execsync

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/appcluster/pkg/model"
	"github.com/cuemby/appcluster/pkg/status"
)

// Synchronizer runs an external command for synchronize or test passes.
// The command runs with exactly its configured arguments; nothing is
// appended to them. The local/remote node IDs are passed as
// APPCLUSTER_LOCAL_NODE / APPCLUSTER_REMOTE_NODE environment variables.
type Synchronizer struct {
	// SynchronizeCommand is run for a ModeSynchronize pass.
	SynchronizeCommand []string
	// TestCommand is run for a ModeTestOnly pass. If empty,
	// SynchronizeCommand is reused.
	TestCommand []string
}

// New returns a Synchronizer invoking synchronizeCommand for synchronize
// passes and testCommand for test passes.
func New(synchronizeCommand, testCommand []string) *Synchronizer {
	return &Synchronizer{SynchronizeCommand: synchronizeCommand, TestCommand: testCommand}
}

func (s *Synchronizer) commandFor(mode status.SynchronizationMode) []string {
	if mode == status.ModeTestOnly && len(s.TestCommand) > 0 {
		return s.TestCommand
	}
	return s.SynchronizeCommand
}

// CanSynchronize reports whether a command is configured for mode. The
// original plugin API consulted local/remote DNS results too (e.g. to
// refuse synchronizing onto an inconsistent remote); this implementation
// leaves that decision to the scheduler's own isInconsistent gate and only
// checks that a command exists.
func (s *Synchronizer) CanSynchronize(mode status.SynchronizationMode, localDns, remoteDns *model.ResourceDnsResult) bool {
	return len(s.commandFor(mode)) > 0
}

// Synchronize runs the configured command and turns its outcome into a
// single-step ResourceSynchronizationResult.
func (s *Synchronizer) Synchronize(ctx context.Context, mode status.SynchronizationMode, localDns, remoteDns *model.ResourceDnsResult) model.ResourceSynchronizationResult {
	start := time.Now()
	command := s.commandFor(mode)

	var local, remote model.ResourceNode
	if localDns != nil && len(localDns.NodeResults) > 0 {
		local = localDns.NodeResults[0].ResourceNode
	}
	if remoteDns != nil && len(remoteDns.NodeResults) > 0 {
		remote = remoteDns.NodeResults[0].ResourceNode
	}

	if len(command) == 0 {
		return model.NewResourceSynchronizationResult(local, remote, mode, []model.Step{
			{StartTime: start, EndTime: time.Now(), ResourceStatus: status.Error, Description: "exec", Errors: []string{"no command configured"}},
		})
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Env = append(os.Environ(),
		"APPCLUSTER_LOCAL_NODE="+local.Node.ID,
		"APPCLUSTER_REMOTE_NODE="+remote.Node.ID,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	end := time.Now()

	step := model.Step{
		StartTime:   start,
		EndTime:     end,
		Description: strings.Join(command, " "),
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		step.Outputs = []string{out}
	}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		step.ResourceStatus = status.Error
		step.Errors = []string{"command timed out"}
	case err != nil:
		step.ResourceStatus = status.Error
		errMsg := err.Error()
		if errText := strings.TrimSpace(stderr.String()); errText != "" {
			errMsg = errMsg + ": " + errText
		}
		step.Errors = []string{errMsg}
	default:
		step.ResourceStatus = status.Healthy
	}

	return model.NewResourceSynchronizationResult(local, remote, mode, []model.Step{step})
}
