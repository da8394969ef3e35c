// Package config defines the ConfigurationSource external interface
// (spec §6) and a YAML file-backed implementation with fsnotify
// hot-reload, replacing the original's properties-file loader and
// polling watcher.
//
// Grounded on cmd/warren/apply.go's yaml.v3 unmarshal pattern, generalized
// from a one-shot "apply" into a long-lived, watched configuration
// source.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/appcluster/pkg/log"
)

// NodeConfiguration is one configured Node (spec §6).
type NodeConfiguration struct {
	ID          string
	Enabled     bool
	Display     string
	Hostname    string
	Username    string
	Nameservers map[string]bool // hostname -> strictTtl
}

// ResourceNodeConfiguration is one configured ResourceNode (spec §6).
type ResourceNodeConfiguration struct {
	NodeID      string
	NodeRecords []string
}

// ResourceConfiguration is one configured Resource, including the
// cron-scheduled synchronizer fields (spec §6).
type ResourceConfiguration struct {
	ID                         string
	Enabled                    bool
	Display                    string
	Type                       string
	MasterRecords              []string
	MasterRecordsTTL           int
	AllowMultiMaster           bool
	ResourceNodeConfigurations []ResourceNodeConfiguration
	SynchronizeTimeoutSeconds  int
	TestTimeoutSeconds         int
	SynchronizeSchedule        string
	TestSchedule               string
}

// Listener is notified when the configuration has changed on disk.
type Listener interface {
	OnConfigurationChanged()
}

// Source is the collaborator Cluster consumes (spec §6).
type Source interface {
	Enabled() bool
	Display() string
	NodeConfigurations() []NodeConfiguration
	ResourceConfigurations() []ResourceConfiguration
	Start() error
	Stop() error
	AddListener(Listener)
	RemoveListener(Listener)
}

// ConfigurationError reports an invalid cluster configuration -- a
// duplicate display name or hostname, a resource node record colliding
// with a master record, an unknown node reference. It is the Go analog
// of the original's AppClusterConfigurationException. Cluster startup can
// also fail with other, plain wrapped errors (a schedule parse error, a bad
// hostname lookup); callers distinguish this type from those with
// errors.As.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// NewConfigurationError builds a ConfigurationError with a formatted
// message, mirroring fmt.Errorf without the %w wrapping a configuration
// error has no cause to wrap.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

type fileDoc struct {
	Enabled   bool          `yaml:"enabled"`
	Display   string        `yaml:"display"`
	Nodes     []nodeDoc     `yaml:"nodes"`
	Resources []resourceDoc `yaml:"resources"`
}

type nodeDoc struct {
	ID          string          `yaml:"id"`
	Enabled     bool            `yaml:"enabled"`
	Display     string          `yaml:"display"`
	Hostname    string          `yaml:"hostname"`
	Username    string          `yaml:"username"`
	Nameservers map[string]bool `yaml:"nameservers"`
}

type resourceNodeDoc struct {
	NodeID      string   `yaml:"nodeId"`
	NodeRecords []string `yaml:"nodeRecords"`
}

type resourceDoc struct {
	ID                        string            `yaml:"id"`
	Enabled                   bool              `yaml:"enabled"`
	Display                   string            `yaml:"display"`
	Type                      string            `yaml:"type"`
	MasterRecords             []string          `yaml:"masterRecords"`
	MasterRecordsTTL          int               `yaml:"masterRecordsTtl"`
	AllowMultiMaster          bool              `yaml:"allowMultiMaster"`
	SynchronizeTimeoutSeconds int               `yaml:"synchronizeTimeoutSeconds"`
	TestTimeoutSeconds        int               `yaml:"testTimeoutSeconds"`
	SynchronizeSchedule       string            `yaml:"synchronizeSchedule"`
	TestSchedule              string            `yaml:"testSchedule"`
	Nodes                     []resourceNodeDoc `yaml:"nodes"`
}

// FileSource loads a YAML document from disk and re-parses it whenever
// fsnotify reports a write, firing every registered Listener.
type FileSource struct {
	path string

	mu        sync.RWMutex
	doc       fileDoc
	listeners map[Listener]bool

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewFileSource returns a FileSource reading from path. Call Start to load
// it and begin watching.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, listeners: make(map[Listener]bool)}
}

func (f *FileSource) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", f.path, err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse %s: %w", f.path, err)
	}
	f.mu.Lock()
	f.doc = doc
	f.mu.Unlock()
	return nil
}

// Start performs the initial load and begins watching the file for
// changes.
func (f *FileSource) Start() error {
	if err := f.load(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(f.path); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", f.path, err)
	}
	f.watcher = watcher
	f.stopCh = make(chan struct{})

	go f.watch()
	return nil
}

// Stop closes the watcher.
func (f *FileSource) Stop() error {
	if f.stopCh != nil {
		close(f.stopCh)
	}
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

func (f *FileSource) watch() {
	logger := log.WithComponent("config")
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.load(); err != nil {
				logger.Error().Err(err).Msg("failed to reload configuration")
				continue
			}
			logger.Info().Msg("configuration reloaded")
			f.fireChanged()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("config watcher error")
		case <-f.stopCh:
			return
		}
	}
}

func (f *FileSource) fireChanged() {
	f.mu.RLock()
	listeners := make([]Listener, 0, len(f.listeners))
	for l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.RUnlock()
	for _, l := range listeners {
		l.OnConfigurationChanged()
	}
}

func (f *FileSource) Enabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.doc.Enabled
}

func (f *FileSource) Display() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.doc.Display
}

func (f *FileSource) NodeConfigurations() []NodeConfiguration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]NodeConfiguration, 0, len(f.doc.Nodes))
	for _, n := range f.doc.Nodes {
		out = append(out, NodeConfiguration{
			ID:          n.ID,
			Enabled:     n.Enabled,
			Display:     n.Display,
			Hostname:    n.Hostname,
			Username:    n.Username,
			Nameservers: n.Nameservers,
		})
	}
	return out
}

func (f *FileSource) ResourceConfigurations() []ResourceConfiguration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ResourceConfiguration, 0, len(f.doc.Resources))
	for _, r := range f.doc.Resources {
		rnCfgs := make([]ResourceNodeConfiguration, 0, len(r.Nodes))
		for _, rn := range r.Nodes {
			rnCfgs = append(rnCfgs, ResourceNodeConfiguration{NodeID: rn.NodeID, NodeRecords: rn.NodeRecords})
		}
		out = append(out, ResourceConfiguration{
			ID:                         r.ID,
			Enabled:                    r.Enabled,
			Display:                    r.Display,
			Type:                       r.Type,
			MasterRecords:              r.MasterRecords,
			MasterRecordsTTL:           r.MasterRecordsTTL,
			AllowMultiMaster:           r.AllowMultiMaster,
			ResourceNodeConfigurations: rnCfgs,
			SynchronizeTimeoutSeconds:  r.SynchronizeTimeoutSeconds,
			TestTimeoutSeconds:         r.TestTimeoutSeconds,
			SynchronizeSchedule:        r.SynchronizeSchedule,
			TestSchedule:               r.TestSchedule,
		})
	}
	return out
}

func (f *FileSource) AddListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[l] = true
}

func (f *FileSource) RemoveListener(l Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.listeners, l)
}
