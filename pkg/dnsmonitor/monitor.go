// Package dnsmonitor implements ResourceDnsMonitor: the per-resource
// worker that periodically fans out DNS lookups across every declared
// record and enabled nameserver, aggregates them into a master/slave role
// view, and publishes a ResourceDnsResult to listeners.
//
// The concurrency shape is grounded on the teacher's container health
// monitor: one cancellable goroutine per monitor, started via
// context.WithCancel and stopped by canceling that context rather than by
// comparing a captured thread reference (the Go translation of the
// "am I still the active thread" check in the original).
package dnsmonitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/appcluster/pkg/log"
	"github.com/cuemby/appcluster/pkg/model"
	"github.com/cuemby/appcluster/pkg/status"
)

// CheckInterval is the time between passes while running.
const CheckInterval = 30 * time.Second

// Listener is notified after every published pass. old is nil only for the
// very first notification (the synchronous initial result Start
// publishes); every pass after that has a non-nil old.
type Listener interface {
	OnResourceDnsResult(old, new *model.ResourceDnsResult)
}

// Querier performs one (hostname, nameserver) lookup. *dnslookup.Lookup
// satisfies this; tests substitute a fake to avoid real DNS traffic.
type Querier interface {
	Query(ctx context.Context, hostname string, nameserver model.Nameserver, isMasterRecord bool, masterRecordsTTL int) model.DnsLookupResult
}

// Monitor owns one worker goroutine for one Resource.
type Monitor struct {
	resource model.Resource
	lookup   Querier
	notify   func(old, new *model.ResourceDnsResult)

	mu         sync.Mutex
	lastResult *model.ResourceDnsResult
	state      status.ResourceStatus

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor for resource. notify is invoked after each
// publish, typically wiring into the cluster's single-threaded DNS
// listener queue.
func New(resource model.Resource, lookup Querier, notify func(old, new *model.ResourceDnsResult)) *Monitor {
	return &Monitor{
		resource: resource,
		lookup:   lookup,
		notify:   notify,
		state:    status.Stopped,
	}
}

// Start synchronously publishes an initial DISABLED or STARTING result --
// so LastResult is never nil and the first background pass always has a
// non-nil "old" to notify against, per spec §4.2/§6 -- then, if enabled,
// launches the worker loop. clusterEnabled gates whether the monitor runs
// at all (DISABLED) or begins polling (STARTING).
func (m *Monitor) Start(clusterEnabled bool) {
	enabled := clusterEnabled && m.resource.Enabled

	m.mu.Lock()
	if enabled {
		m.state = status.Starting
	} else {
		m.state = status.Disabled
	}
	initial := buildInitialResult(m.resource, enabled)
	m.lastResult = &initial
	m.mu.Unlock()

	if m.notify != nil {
		m.notify(nil, &initial)
	}

	if !enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
}

// buildInitialResult builds the synchronous result Start publishes before
// the background loop begins, grounded on the original Java monitor's
// constructor/start() building a STOPPED/DISABLED/STARTING result with a
// STARTING or DISABLED entry per resourceNode ahead of spawning its
// polling thread.
func buildInitialResult(r model.Resource, enabled bool) model.ResourceDnsResult {
	now := time.Now()
	masterStatus := status.MasterDisabled
	message := "resource disabled"
	if enabled {
		masterStatus = status.MasterStarting
		message = "starting"
	}

	nodeResults := make([]model.ResourceNodeDnsResult, len(r.ResourceNodes))
	for i, rn := range r.ResourceNodes {
		if !rn.Node.Enabled {
			nodeResults[i] = model.ResourceNodeDnsResult{ResourceNode: rn, NodeStatus: status.NodeDisabled, NodeStatusMessages: []string{"node disabled"}}
			continue
		}
		nodeStatus := status.NodeDisabled
		if enabled {
			nodeStatus = status.NodeStarting
		}
		nodeResults[i] = model.ResourceNodeDnsResult{ResourceNode: rn, NodeStatus: nodeStatus, NodeStatusMessages: []string{message}}
	}

	return model.ResourceDnsResult{
		Resource:             r,
		StartTime:            now,
		EndTime:              now,
		MasterStatus:         masterStatus,
		MasterStatusMessages: []string{message},
		NodeResults:          nodeResults,
	}
}

// Stop cancels the worker and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.state = status.Stopped
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// LastResult returns the most recently published result, or nil before
// Start has ever been called.
func (m *Monitor) LastResult() *model.ResourceDnsResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastResult
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	logger := log.WithResource(m.resource.ID).With().Str("component", "dnsmonitor").Logger()
	logger.Info().Msg("starting")

	for {
		result := m.pass(ctx)

		m.mu.Lock()
		old := m.lastResult
		m.lastResult = &result
		m.mu.Unlock()

		if m.notify != nil {
			m.notify(old, &result)
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("stopped")
			return
		case <-time.After(CheckInterval):
		}
	}
}

// pass runs one full fan-out + aggregation cycle.
func (m *Monitor) pass(ctx context.Context) model.ResourceDnsResult {
	start := time.Now()
	nameservers := m.resource.EnabledNameservers()

	lookups := m.fanOut(ctx, nameservers)

	masterStatus, masterMessages, masterLookups, firstMasterAddresses := aggregateMaster(m.resource, lookups, nameservers)
	nodeResults, allNodeAddresses, firstNodeAddressesByNode := aggregateNodes(m.resource, lookups, nameservers)

	nodeResults = applyPromotion(nodeResults, masterStatus, firstMasterAddresses, firstNodeAddressesByNode)
	masterStatus, masterMessages = finalMasterCheck(masterStatus, masterMessages, m.resource, masterLookups, allNodeAddresses)

	return model.ResourceDnsResult{
		Resource:             m.resource,
		StartTime:            start,
		EndTime:              time.Now(),
		MasterRecordLookups:  masterLookups,
		MasterStatus:         masterStatus,
		MasterStatusMessages: masterMessages,
		NodeResults:          nodeResults,
	}
}

// fanOut issues every (hostname, nameserver) lookup concurrently and
// returns them keyed by hostname then nameserver hostname.
func (m *Monitor) fanOut(ctx context.Context, nameservers []model.Nameserver) map[string]map[string]model.DnsLookupResult {
	hostnames := m.resource.HostNames()
	masterSet := make(map[string]bool, len(m.resource.MasterRecords))
	for _, h := range m.resource.MasterRecords {
		masterSet[h] = true
	}

	type task struct {
		hostname string
		ns       model.Nameserver
	}
	var tasks []task
	for _, h := range hostnames {
		for _, ns := range nameservers {
			tasks = append(tasks, task{hostname: h, ns: ns})
		}
	}

	results := make(map[string]map[string]model.DnsLookupResult, len(hostnames))
	for _, h := range hostnames {
		results[h] = make(map[string]model.DnsLookupResult, len(nameservers))
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, tsk := range tasks {
		wg.Add(1)
		go func(tsk task) {
			defer wg.Done()
			r := m.lookup.Query(ctx, tsk.hostname, tsk.ns, masterSet[tsk.hostname], m.resource.MasterRecordsTTL)
			mu.Lock()
			results[tsk.hostname][tsk.ns.Hostname] = r
			mu.Unlock()
		}(tsk)
	}
	wg.Wait()
	return results
}

// aggregateMaster implements the master-aggregation algorithm of spec §4.2.
func aggregateMaster(r model.Resource, lookups map[string]map[string]model.DnsLookupResult, nameservers []model.Nameserver) (status.MasterDnsStatus, []string, *model.RecordLookups, []string) {
	masterStatus := status.MasterConsistent
	var messages []string
	recordLookups := model.NewRecordLookups()
	var firstMasterAddresses []string
	firstSet := false

	for _, m := range r.MasterRecords {
		sawSuccess := false
		for _, ns := range nameservers {
			lr := lookups[m][ns.Hostname]
			recordLookups.Put(m, ns, lr)

			if lr.Status != status.LookupSuccessful && lr.Status != status.LookupWarning {
				continue
			}
			sawSuccess = true
			if lr.Status == status.LookupWarning {
				masterStatus = model.EscalateMaster(masterStatus, status.MasterWarning)
				for _, msg := range lr.StatusMessages {
					messages = model.AppendSorted(messages, fmt.Sprintf("%s (nameserver %s)", msg, ns.Hostname))
				}
			}
			if len(lr.Addresses) > 1 && !r.AllowMultiMaster {
				masterStatus = model.EscalateMaster(masterStatus, status.MasterInconsistent)
				messages = model.AppendSorted(messages, fmt.Sprintf("multi-master not allowed on nameserver %s: %v", ns.Hostname, lr.Addresses))
			}
			if !firstSet {
				firstMasterAddresses = append([]string{}, lr.Addresses...)
				firstSet = true
			} else if !sameAddresses(firstMasterAddresses, lr.Addresses) {
				masterStatus = model.EscalateMaster(masterStatus, status.MasterInconsistent)
				messages = model.AppendSorted(messages, fmt.Sprintf("master address mismatch: first=%v nameserver=%s record=%s addresses=%v", firstMasterAddresses, ns.Hostname, m, lr.Addresses))
			}
		}
		if !sawSuccess {
			masterStatus = model.EscalateMaster(masterStatus, status.MasterInconsistent)
			messages = model.AppendSorted(messages, fmt.Sprintf("masterRecord missing: %s", m))
		}
	}

	return masterStatus, messages, recordLookups, firstMasterAddresses
}

// aggregateNodes implements the node-aggregation algorithm of spec §4.2,
// including the in-place rewrite of a node result built earlier in the same
// pass when a later node's address collides with it.
func aggregateNodes(r model.Resource, lookups map[string]map[string]model.DnsLookupResult, nameservers []model.Nameserver) ([]model.ResourceNodeDnsResult, map[string]bool, map[string][]string) {
	results := make([]model.ResourceNodeDnsResult, len(r.ResourceNodes))
	allNodeAddresses := make(map[string]bool)
	firstNodeAddressesByNode := make(map[string][]string)

	// addressOwner tracks, for every address seen so far, the index into
	// results of the node that first claimed it -- needed to rewrite that
	// earlier entry in place on a later collision.
	addressOwner := make(map[string]int)

	for i, rn := range r.ResourceNodes {
		if !rn.Node.Enabled {
			results[i] = model.ResourceNodeDnsResult{ResourceNode: rn, NodeStatus: status.NodeDisabled}
			continue
		}

		nodeStatus := status.NodeSlave
		var messages []string
		recordLookups := model.NewRecordLookups()
		var firstAddrs []string
		firstSet := false

		for _, rec := range rn.NodeRecords {
			sawSuccess := false
			for _, ns := range nameservers {
				lr := lookups[rec][ns.Hostname]
				recordLookups.Put(rec, ns, lr)

				if lr.Status != status.LookupSuccessful && lr.Status != status.LookupWarning {
					continue
				}
				sawSuccess = true
				for _, a := range lr.Addresses {
					allNodeAddresses[a] = true
				}

				if len(lr.Addresses) > 1 {
					nodeStatus = escalate(nodeStatus, status.NodeInconsistent)
					messages = model.AppendSorted(messages, fmt.Sprintf("only one A allowed for %s on %s: %v", rec, ns.Hostname, lr.Addresses))
				} else {
					addr := lr.Addresses[0]
					if ownerIdx, exists := addressOwner[addr]; exists && ownerIdx != i {
						nodeStatus = escalate(nodeStatus, status.NodeInconsistent)
						messages = model.AppendSorted(messages, fmt.Sprintf("duplicate A %s also claimed by %s", addr, results[ownerIdx].ResourceNode.Node.ID))
						results[ownerIdx] = results[ownerIdx].WithEscalation(status.NodeInconsistent, fmt.Sprintf("duplicate A %s also claimed by %s", addr, rn.Node.ID))
					} else {
						addressOwner[addr] = i
					}
				}

				if !firstSet {
					firstAddrs = append([]string{}, lr.Addresses...)
					firstSet = true
				} else if !sameAddresses(firstAddrs, lr.Addresses) {
					nodeStatus = escalate(nodeStatus, status.NodeInconsistent)
					messages = model.AppendSorted(messages, fmt.Sprintf("node address mismatch for %s on %s: %v", rec, ns.Hostname, lr.Addresses))
				}
			}
			if !sawSuccess {
				nodeStatus = escalate(nodeStatus, status.NodeInconsistent)
				messages = model.AppendSorted(messages, fmt.Sprintf("nodeRecord missing: %s", rec))
			}
		}

		firstNodeAddressesByNode[rn.Node.ID] = firstAddrs
		results[i] = model.ResourceNodeDnsResult{
			ResourceNode:       rn,
			NodeRecordLookups:  recordLookups,
			NodeStatus:         nodeStatus,
			NodeStatusMessages: messages,
		}
	}

	return results, allNodeAddresses, firstNodeAddressesByNode
}

// applyPromotion implements spec §4.2's promotion rule.
func applyPromotion(results []model.ResourceNodeDnsResult, masterStatus status.MasterDnsStatus, firstMasterAddresses []string, firstNodeAddressesByNode map[string][]string) []model.ResourceNodeDnsResult {
	if masterStatus != status.MasterConsistent && masterStatus != status.MasterWarning {
		return results
	}
	for i, nr := range results {
		if nr.NodeStatus != status.NodeSlave {
			continue
		}
		firstNode := firstNodeAddressesByNode[nr.ResourceNode.Node.ID]
		if subsetOf(firstNode, firstMasterAddresses) {
			nr.NodeStatus = status.NodeMaster
			results[i] = nr
		}
	}
	return results
}

// finalMasterCheck implements spec §4.2's final check: every master A
// record address must appear in allNodeAddresses.
func finalMasterCheck(masterStatus status.MasterDnsStatus, messages []string, r model.Resource, masterLookups *model.RecordLookups, allNodeAddresses map[string]bool) (status.MasterDnsStatus, []string) {
	if masterLookups == nil {
		return masterStatus, messages
	}
	for _, m := range r.MasterRecords {
		nl, ok := masterLookups.Get(m)
		if !ok {
			continue
		}
		for _, lr := range nl.InOrder() {
			for _, addr := range lr.Addresses {
				if !allNodeAddresses[addr] {
					masterStatus = model.EscalateMaster(masterStatus, status.MasterInconsistent)
					messages = model.AppendSorted(messages, fmt.Sprintf("master A does not match any node: (%s, %s)", m, addr))
				}
			}
		}
	}
	return masterStatus, messages
}

func escalate(current, candidate status.NodeDnsStatus) status.NodeDnsStatus {
	if candidate.ResourceStatus() > current.ResourceStatus() {
		return candidate
	}
	return current
}

func sameAddresses(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string{}, a...)
	sb := append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func subsetOf(sub, super []string) bool {
	set := make(map[string]bool, len(super))
	for _, s := range super {
		set[s] = true
	}
	for _, s := range sub {
		if !set[s] {
			return false
		}
	}
	return true
}
