// Package model holds the immutable value types and domain entities shared
// across the coordinator: nodes, nameservers, resources, and the DNS/
// synchronization result types they produce. Results are constructed once
// and never mutated after being handed to a listener; callers that need to
// "rewrite" a published result (the duplicate-address case in
// ResourceDnsMonitor) build a new value and swap it in before publication,
// never after.
package model

import (
	"sort"
	"time"

	"github.com/cuemby/appcluster/pkg/status"
)

// Nameserver is hashed and compared by hostname only.
type Nameserver struct {
	Hostname  string
	StrictTTL bool
}

// Node is a machine participating in the cluster.
type Node struct {
	ID         string
	Enabled    bool
	Display    string
	Hostname   string
	Username   string
	Nameservers []Nameserver
}

// IsLocal reports whether this node matches the process's own canonical
// hostname and current user.
func (n Node) IsLocal(hostname, username string) bool {
	return n.Hostname == hostname && n.Username == username
}

// ResourceNode binds a Node into a Resource, carrying the DNS names that
// should resolve to that node when it is the resource's master.
type ResourceNode struct {
	Node        Node
	NodeRecords []string
}

// Resource is a replicated service whose master is advertised over DNS.
type Resource struct {
	ID               string
	Enabled          bool
	Display          string
	Type             string
	MasterRecords    []string
	MasterRecordsTTL int
	AllowMultiMaster bool
	ResourceNodes    []ResourceNode
}

// EnabledNameservers is the union of the nameservers of every enabled node
// participating in the resource, in first-seen order.
func (r Resource) EnabledNameservers() []Nameserver {
	seen := make(map[string]bool)
	var out []Nameserver
	for _, rn := range r.ResourceNodes {
		if !rn.Node.Enabled {
			continue
		}
		for _, ns := range rn.Node.Nameservers {
			if seen[ns.Hostname] {
				continue
			}
			seen[ns.Hostname] = true
			out = append(out, ns)
		}
	}
	return out
}

// HostNames is the set H = masterRecords ∪ (nodeRecords of enabled
// resourceNodes), in the deterministic order required by spec §5's
// ordering guarantee: master records first (insertion order), then each
// enabled resourceNode's records in resourceNode order.
func (r Resource) HostNames() []string {
	out := append([]string{}, r.MasterRecords...)
	for _, rn := range r.ResourceNodes {
		if !rn.Node.Enabled {
			continue
		}
		out = append(out, rn.NodeRecords...)
	}
	return out
}

// DnsLookupResult is the outcome of one (hostname, nameserver) A-record
// query.
type DnsLookupResult struct {
	Name          string
	Status        status.DnsLookupStatus
	StatusMessages []string
	Addresses     []string
}

// NewDnsLookupResult builds a DnsLookupResult, sorting messages and
// addresses and enforcing the addresses-iff-successful invariant.
func NewDnsLookupResult(name string, st status.DnsLookupStatus, messages, addresses []string) DnsLookupResult {
	msgs := append([]string{}, messages...)
	sort.Strings(msgs)
	addrs := append([]string{}, addresses...)
	sort.Strings(addrs)
	successLike := st == status.LookupSuccessful || st == status.LookupWarning
	if successLike && len(addrs) == 0 {
		panic("model: DnsLookupResult: successful/warning status requires at least one address")
	}
	if !successLike && len(addrs) != 0 {
		panic("model: DnsLookupResult: non-successful status must have no addresses")
	}
	return DnsLookupResult{Name: name, Status: st, StatusMessages: msgs, Addresses: addrs}
}

// NameserverLookups maps a Nameserver hostname to the lookup performed
// against it, in enabled-nameserver iteration order.
type NameserverLookups struct {
	order []string
	byNS  map[string]DnsLookupResult
}

// NewNameserverLookups builds a NameserverLookups preserving the order the
// entries are appended in.
func NewNameserverLookups() *NameserverLookups {
	return &NameserverLookups{byNS: make(map[string]DnsLookupResult)}
}

func (l *NameserverLookups) Put(ns Nameserver, r DnsLookupResult) {
	if _, exists := l.byNS[ns.Hostname]; !exists {
		l.order = append(l.order, ns.Hostname)
	}
	l.byNS[ns.Hostname] = r
}

func (l *NameserverLookups) Get(ns Nameserver) (DnsLookupResult, bool) {
	r, ok := l.byNS[ns.Hostname]
	return r, ok
}

// InOrder returns the lookups in the order nameservers were first put.
func (l *NameserverLookups) InOrder() []DnsLookupResult {
	out := make([]DnsLookupResult, 0, len(l.order))
	for _, ns := range l.order {
		out = append(out, l.byNS[ns])
	}
	return out
}

func (l *NameserverLookups) Len() int { return len(l.order) }

// RecordLookups maps a declared DNS record name to its per-nameserver
// lookups, in record-declaration order.
type RecordLookups struct {
	order []string
	byRec map[string]*NameserverLookups
}

func NewRecordLookups() *RecordLookups {
	return &RecordLookups{byRec: make(map[string]*NameserverLookups)}
}

func (r *RecordLookups) Put(record string, ns Nameserver, lookup DnsLookupResult) {
	nl, ok := r.byRec[record]
	if !ok {
		nl = NewNameserverLookups()
		r.byRec[record] = nl
		r.order = append(r.order, record)
	}
	nl.Put(ns, lookup)
}

func (r *RecordLookups) Get(record string) (*NameserverLookups, bool) {
	nl, ok := r.byRec[record]
	return nl, ok
}

func (r *RecordLookups) Records() []string { return r.order }

// ResourceNodeDnsResult is one resourceNode's contribution to a pass.
type ResourceNodeDnsResult struct {
	ResourceNode       ResourceNode
	NodeRecordLookups  *RecordLookups // nil when the node is disabled
	NodeStatus         status.NodeDnsStatus
	NodeStatusMessages []string
}

// WithEscalation returns a copy of r with its NodeStatus escalated to the
// more severe of its current status and st, appending message when one is
// given. It never lowers NodeStatus.
func (r ResourceNodeDnsResult) WithEscalation(st status.NodeDnsStatus, message string) ResourceNodeDnsResult {
	r.NodeStatus = escalateNodeStatus(r.NodeStatus, st)
	if message != "" {
		r.NodeStatusMessages = AppendSorted(r.NodeStatusMessages, message)
	}
	return r
}

func escalateNodeStatus(current, candidate status.NodeDnsStatus) status.NodeDnsStatus {
	if candidate.ResourceStatus() > current.ResourceStatus() {
		return candidate
	}
	return current
}

// AppendSorted appends msg to msgs and returns the result sorted, without
// mutating the input.
func AppendSorted(msgs []string, msg string) []string {
	out := append(append([]string{}, msgs...), msg)
	sort.Strings(out)
	return out
}

// EscalateMaster returns the more severe of current and candidate.
func EscalateMaster(current, candidate status.MasterDnsStatus) status.MasterDnsStatus {
	if candidate.ResourceStatus() > current.ResourceStatus() {
		return candidate
	}
	return current
}

// ResourceDnsResult is one published pass of a ResourceDnsMonitor.
type ResourceDnsResult struct {
	Resource             Resource
	StartTime            time.Time
	EndTime              time.Time
	MasterRecordLookups  *RecordLookups // nil when not yet run / disabled
	MasterStatus         status.MasterDnsStatus
	MasterStatusMessages []string
	NodeResults          []ResourceNodeDnsResult // one entry per resourceNode, in resource order
}

// SecondsSince returns now minus StartTime in seconds, as a signed value.
func (r ResourceDnsResult) SecondsSince(now time.Time) float64 {
	return now.Sub(r.StartTime).Seconds()
}

// SecondsSinceStatus classifies freshness per spec §4.4. clusterRunning and
// resourceEnabled gate STOPPED/DISABLED ahead of any time comparison.
func (r ResourceDnsResult) SecondsSinceStatus(now time.Time, clusterRunning, resourceEnabled bool, warningSeconds, errorSeconds float64) status.ResourceStatus {
	if !clusterRunning {
		return status.Stopped
	}
	if !resourceEnabled {
		return status.Disabled
	}
	if r.StartTime.IsZero() {
		return status.Unknown
	}
	d := r.SecondsSince(now)
	if d < 0 {
		d = -d
	}
	switch {
	case d > errorSeconds:
		return status.Error
	case d > warningSeconds:
		return status.Warning
	default:
		return status.Healthy
	}
}

// ResourceStatus aggregates this result's severity: secondsSinceStatus (if
// not already Healthy it is folded in), masterStatus, every master lookup's
// status, and every node's nodeStatus plus its own lookups' statuses.
func (r ResourceDnsResult) ResourceStatus(secondsSinceStatus status.ResourceStatus) status.ResourceStatus {
	result := secondsSinceStatus
	result = status.Max(result, r.MasterStatus.ResourceStatus())
	if r.MasterRecordLookups != nil {
		for _, rec := range r.MasterRecordLookups.Records() {
			nl, _ := r.MasterRecordLookups.Get(rec)
			for _, lookup := range nl.InOrder() {
				result = status.Max(result, lookup.Status.ResourceStatus())
			}
		}
	}
	for _, nr := range r.NodeResults {
		result = status.Max(result, nr.NodeStatus.ResourceStatus())
		if nr.NodeRecordLookups == nil {
			continue
		}
		for _, rec := range nr.NodeRecordLookups.Records() {
			nl, _ := nr.NodeRecordLookups.Get(rec)
			for _, lookup := range nl.InOrder() {
				result = status.Max(result, lookup.Status.ResourceStatus())
			}
		}
	}
	return result
}

// Step is one unit of work within a synchronization/test run.
type Step struct {
	StartTime      time.Time
	EndTime        time.Time
	ResourceStatus status.ResourceStatus
	Description    string
	Outputs        []string
	Warnings       []string
	Errors         []string
}

// ResourceSynchronizationResult is the outcome of one scheduler work
// submission.
type ResourceSynchronizationResult struct {
	LocalResourceNode  ResourceNode
	RemoteResourceNode ResourceNode
	Mode               status.SynchronizationMode
	Steps              []Step
}

// NewResourceSynchronizationResult aggregates Start/End/Status from a
// non-empty step list, per spec §3.
func NewResourceSynchronizationResult(local, remote ResourceNode, mode status.SynchronizationMode, steps []Step) ResourceSynchronizationResult {
	if len(steps) == 0 {
		panic("model: ResourceSynchronizationResult requires at least one step")
	}
	return ResourceSynchronizationResult{
		LocalResourceNode:  local,
		RemoteResourceNode: remote,
		Mode:               mode,
		Steps:              append([]Step{}, steps...),
	}
}

func (r ResourceSynchronizationResult) StartTime() time.Time {
	start := r.Steps[0].StartTime
	for _, s := range r.Steps[1:] {
		if s.StartTime.Before(start) {
			start = s.StartTime
		}
	}
	return start
}

func (r ResourceSynchronizationResult) EndTime() time.Time {
	end := r.Steps[0].EndTime
	for _, s := range r.Steps[1:] {
		if s.EndTime.After(end) {
			end = s.EndTime
		}
	}
	return end
}

func (r ResourceSynchronizationResult) ResourceStatus() status.ResourceStatus {
	result := r.Steps[0].ResourceStatus
	for _, s := range r.Steps[1:] {
		result = status.Max(result, s.ResourceStatus)
	}
	return result
}
