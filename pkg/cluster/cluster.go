// Package cluster implements the top-level coordinator: it loads
// configuration, identifies which configured node this process is,
// builds Resources and their ResourceDnsMonitors and SynchronizerSchedulers,
// and fans published results out to registered listeners.
//
// Grounded on pkg/manager/manager.go's Start/Stop lifecycle shape (a
// mutex-guarded running flag, ordered start/stop of owned components)
// generalized away from its raft/FSM machinery, and on
// original_source/.../AppCluster.java for the exact
// checkConfiguration/startUp/shutdown algorithm this package ports.
package cluster

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuemby/appcluster/pkg/config"
	"github.com/cuemby/appcluster/pkg/cron"
	"github.com/cuemby/appcluster/pkg/dnslookup"
	"github.com/cuemby/appcluster/pkg/dnsmonitor"
	"github.com/cuemby/appcluster/pkg/listener"
	"github.com/cuemby/appcluster/pkg/log"
	"github.com/cuemby/appcluster/pkg/metrics"
	"github.com/cuemby/appcluster/pkg/model"
	"github.com/cuemby/appcluster/pkg/notify"
	"github.com/cuemby/appcluster/pkg/scheduler"
	"github.com/cuemby/appcluster/pkg/status"
)

const (
	// WarningSeconds is the freshness threshold past which a resource's
	// last DNS pass is considered stale but not yet failed (spec §4.4).
	WarningSeconds = 100
	// ErrorSeconds is the freshness threshold past which a resource's
	// last DNS pass is considered failed (spec §4.4).
	ErrorSeconds = 130

	defaultSynchronizeTimeout = 60 * time.Second
	defaultTestTimeout        = 60 * time.Second
)

// SynchronizerFactory builds the Synchronizer plugin for one
// (resource, local, remote) pair. Returning nil means the pair has no
// synchronizer, e.g. because the resource type does not apply to it.
type SynchronizerFactory func(resource model.Resource, local, remote model.ResourceNode) scheduler.Synchronizer

type dnsEvent struct {
	old, new *model.ResourceDnsResult
}

type syncEvent struct {
	old, new *model.ResourceSynchronizationResult
}

type resourceRuntime struct {
	resource   model.Resource
	monitor    *dnsmonitor.Monitor
	schedulers []*scheduler.Scheduler
}

// nodeResultSource adapts one shared *dnsmonitor.Monitor into a
// scheduler.DnsResultSource that always reports nodeID's
// ResourceNodeDnsResult at NodeResults[0], the Go shape of the original's
// nodeResultMap.get(...) per-node extraction before calling
// canSynchronize/synchronize (original_source/.../CronResourceSynchronizer.java
// ~97-120, ~256-350). The rest of the result -- MasterStatus and every
// other node's result -- is passed through untouched so the scheduler's
// whole-resource consistency check still sees the full picture.
type nodeResultSource struct {
	src    scheduler.DnsResultSource
	nodeID string
}

func (n nodeResultSource) LastResult() *model.ResourceDnsResult {
	r := n.src.LastResult()
	if r == nil {
		return nil
	}
	for i, nr := range r.NodeResults {
		if nr.ResourceNode.Node.ID != n.nodeID {
			continue
		}
		if i == 0 {
			return r
		}
		others := make([]model.ResourceNodeDnsResult, 0, len(r.NodeResults)-1)
		others = append(others, r.NodeResults[:i]...)
		others = append(others, r.NodeResults[i+1:]...)
		reordered := *r
		reordered.NodeResults = append([]model.ResourceNodeDnsResult{nr}, others...)
		return &reordered
	}
	return r
}

// Cluster is the coordinator. It is not running until Start is called.
type Cluster struct {
	config              config.Source
	newSynchronizer     SynchronizerFactory
	synchronizeTimeout  time.Duration
	testTimeout         time.Duration

	mu          sync.Mutex
	started     bool
	startedTime time.Time
	enabled     bool
	display     string
	nodes       []model.Node
	localNode   *model.Node
	resources   []*resourceRuntime
	daemon      *cron.Daemon

	listenerMu    sync.Mutex
	dnsListeners  []listener.DnsListener
	syncListeners []listener.SynchronizationListener

	dnsBroker  *notify.Broker[dnsEvent]
	syncBroker *notify.Broker[syncEvent]
	dnsSub     chan dnsEvent
	syncSub    chan syncEvent
}

// New returns a stopped Cluster. synchronizerFactory supplies the
// Synchronizer plugin for each (resource, local, remote) pair this
// process's node participates in.
func New(source config.Source, synchronizerFactory SynchronizerFactory) *Cluster {
	return &Cluster{
		config:             source,
		newSynchronizer:    synchronizerFactory,
		synchronizeTimeout: defaultSynchronizeTimeout,
		testTimeout:        defaultTestTimeout,
	}
}

// IsRunning reports whether the cluster has been started.
func (c *Cluster) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// IsEnabled reports the cluster's own enabled flag. A stopped cluster is
// considered disabled.
func (c *Cluster) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && c.enabled
}

// AddDnsListener registers l to be notified of every published
// ResourceDnsResult, in the order monitors publish them.
func (c *Cluster) AddDnsListener(l listener.DnsListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.dnsListeners = append(c.dnsListeners, l)
}

// AddSynchronizationListener registers l to be notified of every completed
// synchronize/test run, in the order schedulers publish them.
func (c *Cluster) AddSynchronizationListener(l listener.SynchronizationListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.syncListeners = append(c.syncListeners, l)
}

// OnConfigurationChanged implements config.Listener: a running cluster
// restarts to pick up the new configuration.
func (c *Cluster) OnConfigurationChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	log.Info("configuration changed, restarting cluster")
	c.shutdownLocked()
	if err := c.startUpLocked(); err != nil {
		log.Errorf("failed to restart cluster after configuration change", err)
	}
}

// Start loads configuration, checks it for consistency, and starts every
// resource's monitor and schedulers.
func (c *Cluster) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if err := c.config.Start(); err != nil {
		return fmt.Errorf("cluster: start configuration source: %w", err)
	}
	c.config.AddListener(c)
	c.started = true
	c.startedTime = time.Now()
	if err := c.startUpLocked(); err != nil {
		c.started = false
		c.config.RemoveListener(c)
		_ = c.config.Stop()
		return err
	}
	log.Info(fmt.Sprintf("cluster %q started", c.display))
	return nil
}

// Stop stops every resource's monitor and schedulers and the
// configuration source.
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	log.Info(fmt.Sprintf("cluster %q stopping", c.display))
	c.shutdownLocked()
	c.started = false
	c.startedTime = time.Time{}
	c.config.RemoveListener(c)
	_ = c.config.Stop()
}

func (c *Cluster) startUpLocked() error {
	hostname, err := localCanonicalHostname()
	if err != nil {
		return fmt.Errorf("cluster: determine local hostname: %w", err)
	}
	username, err := localUsername()
	if err != nil {
		return fmt.Errorf("cluster: determine local username: %w", err)
	}

	c.enabled = c.config.Enabled()
	c.display = c.config.Display()
	nodeConfigs := c.config.NodeConfigurations()
	resourceConfigs := c.config.ResourceConfigurations()

	if err := checkConfiguration(nodeConfigs, resourceConfigs); err != nil {
		return err
	}

	nodesByID := make(map[string]model.Node, len(nodeConfigs))
	nodes := make([]model.Node, 0, len(nodeConfigs))
	for _, nc := range nodeConfigs {
		n := model.Node{
			ID:       nc.ID,
			Enabled:  nc.Enabled,
			Display:  nc.Display,
			Hostname: nc.Hostname,
			Username: nc.Username,
		}
		for ns, strict := range nc.Nameservers {
			n.Nameservers = append(n.Nameservers, model.Nameserver{Hostname: ns, StrictTTL: strict})
		}
		sort.Slice(n.Nameservers, func(i, j int) bool { return n.Nameservers[i].Hostname < n.Nameservers[j].Hostname })
		nodesByID[nc.ID] = n
		nodes = append(nodes, n)
	}
	c.nodes = nodes

	c.localNode = nil
	for i := range c.nodes {
		if c.nodes[i].IsLocal(hostname, username) {
			c.localNode = &c.nodes[i]
			break
		}
	}

	c.daemon = cron.NewDaemon()
	c.daemon.Start()
	c.dnsBroker = notify.NewBroker[dnsEvent]()
	c.dnsBroker.Start()
	c.dnsSub = c.dnsBroker.Subscribe()
	c.syncBroker = notify.NewBroker[syncEvent]()
	c.syncBroker.Start()
	c.syncSub = c.syncBroker.Subscribe()
	go c.dispatchDns(c.dnsSub)
	go c.dispatchSync(c.syncSub)

	runtimes := make([]*resourceRuntime, 0, len(resourceConfigs))
	for _, rc := range resourceConfigs {
		resourceNodes := make([]model.ResourceNode, 0, len(rc.ResourceNodeConfigurations))
		for _, rnc := range rc.ResourceNodeConfigurations {
			node, ok := nodesByID[rnc.NodeID]
			if !ok {
				return config.NewConfigurationError("cluster: resource %q references unknown node %q", rc.ID, rnc.NodeID)
			}
			resourceNodes = append(resourceNodes, model.ResourceNode{Node: node, NodeRecords: rnc.NodeRecords})
		}
		resource := model.Resource{
			ID:               rc.ID,
			Enabled:          rc.Enabled,
			Display:          rc.Display,
			Type:             rc.Type,
			MasterRecords:    rc.MasterRecords,
			MasterRecordsTTL: rc.MasterRecordsTTL,
			AllowMultiMaster: rc.AllowMultiMaster,
			ResourceNodes:    resourceNodes,
		}

		rt, err := c.startResource(resource, rc)
		if err != nil {
			return err
		}
		runtimes = append(runtimes, rt)
	}
	c.resources = runtimes
	return nil
}

func (c *Cluster) startResource(resource model.Resource, rc config.ResourceConfiguration) (*resourceRuntime, error) {
	lookup := dnslookup.New()
	monitor := dnsmonitor.New(resource, lookup, func(old, new *model.ResourceDnsResult) {
		c.dnsBroker.Publish(dnsEvent{old: old, new: new})
	})
	rt := &resourceRuntime{resource: resource, monitor: monitor}

	var localResourceNode *model.ResourceNode
	for i := range resource.ResourceNodes {
		if c.localNode != nil && resource.ResourceNodes[i].Node.ID == c.localNode.ID {
			localResourceNode = &resource.ResourceNodes[i]
			break
		}
	}

	syncSchedule, err := cron.Parse(rc.SynchronizeSchedule)
	if err != nil {
		return nil, fmt.Errorf("cluster: resource %q: parse synchronize schedule: %w", rc.ID, err)
	}
	testSchedule, err := cron.Parse(rc.TestSchedule)
	if err != nil {
		return nil, fmt.Errorf("cluster: resource %q: parse test schedule: %w", rc.ID, err)
	}

	if localResourceNode != nil && c.newSynchronizer != nil {
		for i := range resource.ResourceNodes {
			remote := resource.ResourceNodes[i]
			if remote.Node.ID == localResourceNode.Node.ID {
				continue
			}
			synchronizer := c.newSynchronizer(resource, *localResourceNode, remote)
			if synchronizer == nil {
				continue
			}
			s := scheduler.New(scheduler.Config{
				Resource:            resource,
				Local:               *localResourceNode,
				Remote:              remote,
				Synchronizer:        synchronizer,
				SynchronizeSchedule: syncSchedule,
				TestSchedule:        testSchedule,
				SynchronizeTimeout:  secondsOrDefault(rc.SynchronizeTimeoutSeconds, c.synchronizeTimeout),
				TestTimeout:         secondsOrDefault(rc.TestTimeoutSeconds, c.testTimeout),
				Daemon:              c.daemon,
				LocalDnsSource:      nodeResultSource{src: monitor, nodeID: localResourceNode.Node.ID},
				RemoteDnsSource:     nodeResultSource{src: monitor, nodeID: remote.Node.ID},
				Notify: func(old, new *model.ResourceSynchronizationResult) {
					c.syncBroker.Publish(syncEvent{old: old, new: new})
				},
			})
			rt.schedulers = append(rt.schedulers, s)
		}
	}

	monitor.Start(c.enabled)
	for _, s := range rt.schedulers {
		s.Start(c.enabled)
	}
	return rt, nil
}

func secondsOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func (c *Cluster) shutdownLocked() {
	for _, rt := range c.resources {
		for _, s := range rt.schedulers {
			s.Stop()
		}
		rt.monitor.Stop()
	}
	c.resources = nil
	if c.dnsBroker != nil {
		c.dnsBroker.Unsubscribe(c.dnsSub)
		c.dnsBroker.Stop()
		c.dnsBroker = nil
		c.dnsSub = nil
	}
	if c.syncBroker != nil {
		c.syncBroker.Unsubscribe(c.syncSub)
		c.syncBroker.Stop()
		c.syncBroker = nil
		c.syncSub = nil
	}
	if c.daemon != nil {
		c.daemon.Stop()
		c.daemon = nil
	}
	c.nodes = nil
	c.localNode = nil
	c.enabled = false
	c.display = ""
}

func (c *Cluster) dispatchDns(sub chan dnsEvent) {
	for ev := range sub {
		c.listenerMu.Lock()
		listeners := append([]listener.DnsListener{}, c.dnsListeners...)
		c.listenerMu.Unlock()
		for _, l := range listeners {
			l.OnResourceDnsResult(ev.old, ev.new)
		}
		if ev.new != nil {
			recordDnsMetrics(ev.new)
		}
		c.recordClusterStatusMetric()
	}
}

func (c *Cluster) dispatchSync(sub chan syncEvent) {
	for ev := range sub {
		c.listenerMu.Lock()
		listeners := append([]listener.SynchronizationListener{}, c.syncListeners...)
		c.listenerMu.Unlock()
		for _, l := range listeners {
			l.OnResourceSynchronizationResult(ev.old, ev.new)
		}
		if ev.new != nil {
			metrics.SynchronizationsTotal.WithLabelValues(ev.new.Mode.String(), ev.new.ResourceStatus().String()).Inc()
		}
		c.recordClusterStatusMetric()
		c.recordSchedulerStateMetrics()
	}
}

var allResourceStatuses = []string{
	status.Unknown.String(), status.Disabled.String(), status.Stopped.String(),
	status.Healthy.String(), status.Starting.String(), status.Warning.String(),
	status.Error.String(), status.Inconsistent.String(),
}

var allSchedulerStates = []string{
	status.SchedulerUnknown.String(), status.SchedulerStopped.String(), status.SchedulerDisabled.String(),
	status.SchedulerSleeping.String(), status.SchedulerSynchronizing.String(), status.SchedulerTesting.String(),
}

func (c *Cluster) recordClusterStatusMetric() {
	metrics.SetStatusGauge(metrics.ClusterStatus, prometheus.Labels{}, c.Status().String(), allResourceStatuses)
}

func (c *Cluster) recordSchedulerStateMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rt := range c.resources {
		for _, s := range rt.schedulers {
			state, _ := s.State()
			last := s.LastResult()
			if last == nil {
				continue
			}
			metrics.SetEnumGauge(metrics.SchedulerState, prometheus.Labels{
				"resource":    rt.resource.ID,
				"local_node":  last.LocalResourceNode.Node.ID,
				"remote_node": last.RemoteResourceNode.Node.ID,
			}, "state", state.String(), allSchedulerStates)
		}
	}
}

func recordDnsMetrics(r *model.ResourceDnsResult) {
	secondsStatus := r.SecondsSinceStatus(time.Now(), true, r.Resource.Enabled, WarningSeconds, ErrorSeconds)
	aggregate := r.ResourceStatus(secondsStatus)
	metrics.SetStatusGauge(metrics.ResourceStatus, prometheus.Labels{"resource": r.Resource.ID}, aggregate.String(), allResourceStatuses)
	for _, nr := range r.NodeResults {
		metrics.SetStatusGauge(metrics.NodeDnsStatus,
			prometheus.Labels{"resource": r.Resource.ID, "node": nr.ResourceNode.Node.ID},
			nr.NodeStatus.ResourceStatus().String(), allResourceStatuses)
	}
}

// Status aggregates the cluster's own started/enabled flags with every
// resource's status, per spec §4.4 / AppCluster.getStatus.
func (c *Cluster) Status() status.ResourceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := status.Unknown
	if !c.started {
		result = status.Max(result, status.Stopped)
	}
	if !c.enabled {
		result = status.Max(result, status.Disabled)
	}
	now := time.Now()
	for _, rt := range c.resources {
		last := rt.monitor.LastResult()
		var resourceStatus status.ResourceStatus
		if last == nil {
			resourceStatus = status.Unknown
		} else {
			secondsStatus := last.SecondsSinceStatus(now, c.started, rt.resource.Enabled, WarningSeconds, ErrorSeconds)
			resourceStatus = last.ResourceStatus(secondsStatus)
		}
		for _, s := range rt.schedulers {
			state, _ := s.State()
			resourceStatus = status.Max(resourceStatus, status.Max(state.ResourceStatus(), s.ResultStatus()))
		}
		result = status.Max(result, resourceStatus)
	}
	return result
}

// NameserverStatuses reports, for every nameserver used by any resource,
// the worst status any lookup against it produced in that resource's most
// recent pass -- the Go analog of Nameserver.getStatus() in the original,
// which is per-resource there but aggregated across resources here since
// a Nameserver has no cluster-wide identity of its own in this model.
func (c *Cluster) NameserverStatuses() map[string]status.ResourceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make(map[string]status.ResourceStatus)
	for _, rt := range c.resources {
		last := rt.monitor.LastResult()
		if last == nil {
			continue
		}
		for _, ns := range rt.resource.EnabledNameservers() {
			worst := status.Unknown
			worst = status.Max(worst, nameserverLookupStatus(last.MasterRecordLookups, ns))
			for _, nr := range last.NodeResults {
				worst = status.Max(worst, nameserverLookupStatus(nr.NodeRecordLookups, ns))
			}
			if existing, ok := result[ns.Hostname]; ok {
				worst = status.Max(worst, existing)
			}
			result[ns.Hostname] = worst
		}
	}
	return result
}

func nameserverLookupStatus(lookups *model.RecordLookups, ns model.Nameserver) status.ResourceStatus {
	if lookups == nil {
		return status.Unknown
	}
	worst := status.Unknown
	for _, rec := range lookups.Records() {
		nl, _ := lookups.Get(rec)
		if lookup, ok := nl.Get(ns); ok {
			worst = status.Max(worst, lookup.Status.ResourceStatus())
		}
	}
	return worst
}

// Resources returns the IDs of every resource this cluster is currently
// running, in configuration order.
func (c *Cluster) Resources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.resources))
	for _, rt := range c.resources {
		ids = append(ids, rt.resource.ID)
	}
	return ids
}

// ResourceStatus returns the aggregate status and per-node DNS status of
// one resource, identified by ID.
func (c *Cluster) ResourceStatus(id string) (status.ResourceStatus, map[string]status.NodeDnsStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rt := range c.resources {
		if rt.resource.ID != id {
			continue
		}
		last := rt.monitor.LastResult()
		nodeStatuses := make(map[string]status.NodeDnsStatus)
		var resourceStatus status.ResourceStatus
		if last == nil {
			resourceStatus = status.Unknown
		} else {
			secondsStatus := last.SecondsSinceStatus(time.Now(), c.started, rt.resource.Enabled, WarningSeconds, ErrorSeconds)
			resourceStatus = last.ResourceStatus(secondsStatus)
			for _, nr := range last.NodeResults {
				nodeStatuses[nr.ResourceNode.Node.ID] = nr.NodeStatus
			}
		}
		for _, s := range rt.schedulers {
			state, _ := s.State()
			resourceStatus = status.Max(resourceStatus, status.Max(state.ResourceStatus(), s.ResultStatus()))
		}
		return resourceStatus, nodeStatuses, true
	}
	return status.Unknown, nil, false
}

// SchedulerInfo describes one (local,remote) scheduler's current state for
// a resource, including whether a synchronize or test run could start now
// (see Scheduler.CanSynchronizeNow) -- surfaced by the status CLI and HTTP
// endpoint.
type SchedulerInfo struct {
	RemoteNode        string
	State             status.ResourceSynchronizerState
	StateMessage      string
	CanSynchronizeNow bool
	CanTestNow        bool
}

// SchedulerStatuses returns one SchedulerInfo per scheduler registered for
// the resource identified by id, in configuration order.
func (c *Cluster) SchedulerStatuses(id string) ([]SchedulerInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rt := range c.resources {
		if rt.resource.ID != id {
			continue
		}
		infos := make([]SchedulerInfo, 0, len(rt.schedulers))
		for _, s := range rt.schedulers {
			state, msg := s.State()
			infos = append(infos, SchedulerInfo{
				RemoteNode:        s.RemoteNodeID(),
				State:             state,
				StateMessage:      msg,
				CanSynchronizeNow: s.CanSynchronizeNow(),
				CanTestNow:        s.CanTestNow(),
			})
		}
		return infos, true
	}
	return nil, false
}

// checkConfiguration validates nodeConfigs/resourceConfigs per spec §6 and
// returns a *config.ConfigurationError on the first violation, so
// configuration failures are distinguishable via errors.As from the other
// errors startUp can return (hostname/username lookup, schedule parsing),
// which are wrapped plain errors.
func checkConfiguration(nodeConfigs []config.NodeConfiguration, resourceConfigs []config.ResourceConfiguration) error {
	displays := make(map[string]bool, len(nodeConfigs))
	for _, nc := range nodeConfigs {
		if displays[nc.Display] {
			return config.NewConfigurationError("cluster: duplicate node display %q", nc.Display)
		}
		displays[nc.Display] = true
	}

	hostnames := make(map[string]bool, len(nodeConfigs))
	for _, nc := range nodeConfigs {
		if hostnames[nc.Hostname] {
			return config.NewConfigurationError("cluster: duplicate node hostname %q", nc.Hostname)
		}
		hostnames[nc.Hostname] = true
	}

	resourceDisplays := make(map[string]bool, len(resourceConfigs))
	for _, rc := range resourceConfigs {
		if resourceDisplays[rc.Display] {
			return config.NewConfigurationError("cluster: duplicate resource display %q", rc.Display)
		}
		resourceDisplays[rc.Display] = true
	}

	for _, rc := range resourceConfigs {
		master := make(map[string]bool, len(rc.MasterRecords))
		for _, m := range rc.MasterRecords {
			master[m] = true
		}
		seenNodeRecords := make(map[string]bool)
		for _, rnc := range rc.ResourceNodeConfigurations {
			for _, rec := range rnc.NodeRecords {
				if master[rec] {
					return config.NewConfigurationError("cluster: resource %q: node record %q matches a master record", rc.ID, rec)
				}
				if seenNodeRecords[rec] {
					return config.NewConfigurationError("cluster: resource %q: node record %q used by more than one resource node", rc.ID, rec)
				}
				seenNodeRecords[rec] = true
			}
		}
	}
	return nil
}

func localCanonicalHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	addrs, err := net.LookupHost(hostname)
	if err != nil || len(addrs) == 0 {
		return hostname, nil
	}
	names, err := net.LookupAddr(addrs[0])
	if err != nil || len(names) == 0 {
		return hostname, nil
	}
	return trimTrailingDot(names[0]), nil
}

func trimTrailingDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

func localUsername() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	return u.Username, nil
}
