// Package listener defines the observer interfaces notified of published
// DNS and synchronization results, plus a structured-logging
// implementation of both.
//
// Grounded on original_source's ResourceListener/LoggerResourceListener
// (com.aoindustries.appcluster), reworked from per-field diff logging
// against java.util.logging into zerolog events gated by severity.
package listener

import (
	"github.com/rs/zerolog"

	"github.com/cuemby/appcluster/pkg/log"
	"github.com/cuemby/appcluster/pkg/model"
	"github.com/cuemby/appcluster/pkg/status"
)

// DnsListener is notified every time a ResourceDnsMonitor publishes a pass.
// old is nil only for the initial result a monitor publishes when it
// starts; every pass after that has a non-nil old.
type DnsListener interface {
	OnResourceDnsResult(old, new *model.ResourceDnsResult)
}

// SynchronizationListener is notified every time a scheduler completes a
// synchronize or test run. old is nil on the first run.
type SynchronizationListener interface {
	OnResourceSynchronizationResult(old, new *model.ResourceSynchronizationResult)
}

func logLevel(s status.ResourceStatus) zerolog.Level {
	switch s {
	case status.Error, status.Inconsistent:
		return zerolog.ErrorLevel
	case status.Warning:
		return zerolog.WarnLevel
	case status.Unknown, status.Disabled, status.Stopped:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger logs every change of resource DNS and synchronization state.
// Continual changes to timestamps alone are not logged.
type Logger struct {
	log zerolog.Logger
}

// NewLogger returns a Logger that writes through the package logger.
func NewLogger() *Logger {
	return &Logger{log: log.WithComponent("resource-listener")}
}

func sortedEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OnResourceDnsResult logs master and node status/address transitions.
func (l *Logger) OnResourceDnsResult(old, new *model.ResourceDnsResult) {
	if new == nil {
		return
	}
	resourceLog := l.log.With().Str("resource", new.Resource.ID).Logger()

	masterLevel := logLevel(new.MasterStatus.ResourceStatus())
	if old == nil || new.MasterStatus != old.MasterStatus {
		oldStatus := status.MasterUnknown
		if old != nil {
			oldStatus = old.MasterStatus
		}
		resourceLog.WithLevel(masterLevel).
			Str("old_status", oldStatus.String()).
			Str("new_status", new.MasterStatus.String()).
			Msg("master status changed")
	}
	for _, msg := range new.MasterStatusMessages {
		if old != nil && sortedEqual(new.MasterStatusMessages, old.MasterStatusMessages) {
			break
		}
		resourceLog.WithLevel(masterLevel).Str("message", msg).Msg("master status message")
	}

	var oldNodes map[string]model.ResourceNodeDnsResult
	if old != nil {
		oldNodes = make(map[string]model.ResourceNodeDnsResult, len(old.NodeResults))
		for _, nr := range old.NodeResults {
			oldNodes[nr.ResourceNode.Node.ID] = nr
		}
	}
	for _, nr := range new.NodeResults {
		nodeLog := resourceLog.With().Str("node", nr.ResourceNode.Node.ID).Logger()
		level := logLevel(nr.NodeStatus.ResourceStatus())
		oldNode, hadOld := oldNodes[nr.ResourceNode.Node.ID]
		if !hadOld || nr.NodeStatus != oldNode.NodeStatus {
			oldStatus := status.NodeUnknown
			if hadOld {
				oldStatus = oldNode.NodeStatus
			}
			nodeLog.WithLevel(level).
				Str("old_status", oldStatus.String()).
				Str("new_status", nr.NodeStatus.String()).
				Msg("node status changed")
		}
		for _, msg := range nr.NodeStatusMessages {
			if hadOld && sortedEqual(nr.NodeStatusMessages, oldNode.NodeStatusMessages) {
				break
			}
			nodeLog.WithLevel(level).Str("message", msg).Msg("node status message")
		}
	}
}

// OnResourceSynchronizationResult logs the steps of a synchronize/test run
// when its outcome differs from the prior run.
func (l *Logger) OnResourceSynchronizationResult(old, new *model.ResourceSynchronizationResult) {
	if new == nil {
		return
	}
	resourceLog := l.log.With().
		Str("resource", new.LocalResourceNode.Node.ID).
		Str("remote_node", new.RemoteResourceNode.Node.ID).
		Str("mode", new.Mode.String()).
		Logger()

	st := new.ResourceStatus()
	level := logLevel(st)
	if matches(old, new) {
		return
	}
	for i, step := range new.Steps {
		stepLog := resourceLog.With().Int("step", i+1).Logger()
		stepLog.WithLevel(level).
			Str("description", step.Description).
			Str("status", step.ResourceStatus.String()).
			Msg("synchronization step")
		for _, out := range step.Outputs {
			stepLog.WithLevel(level).Str("output", out).Msg("synchronization step output")
		}
		for _, errMsg := range step.Errors {
			stepLog.WithLevel(level).Str("error", errMsg).Msg("synchronization step error")
		}
	}
}

// matches reports whether old and new carry the same per-step status,
// outputs, and errors, ignoring mode, description, and times -- the same
// rule the teacher's source uses so that a repeated test pass that finds
// nothing new does not spam the log.
func matches(old, new *model.ResourceSynchronizationResult) bool {
	if old == nil {
		return new == nil
	}
	if new == nil {
		return false
	}
	if len(old.Steps) != len(new.Steps) {
		return false
	}
	for i := range new.Steps {
		o, n := old.Steps[i], new.Steps[i]
		if o.ResourceStatus != n.ResourceStatus {
			return false
		}
		if !sortedEqual(o.Outputs, n.Outputs) {
			return false
		}
		if !sortedEqual(o.Errors, n.Errors) {
			return false
		}
	}
	return true
}
