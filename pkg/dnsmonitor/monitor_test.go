package dnsmonitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/appcluster/pkg/model"
	"github.com/cuemby/appcluster/pkg/status"
)

// fakeQuerier answers from a canned table keyed by (hostname, nameserver).
type fakeQuerier struct {
	answers map[string]map[string][]string // hostname -> nameserver -> addresses
	ttl     map[string]uint32
}

func (f *fakeQuerier) Query(_ context.Context, hostname string, ns model.Nameserver, isMaster bool, masterTTL int) model.DnsLookupResult {
	addrs, ok := f.answers[hostname][ns.Hostname]
	if !ok || len(addrs) == 0 {
		return model.NewDnsLookupResult(hostname, status.LookupError, []string{"host not found"}, nil)
	}
	if isMaster {
		ttl := masterTTL
		if t, ok := f.ttl[hostname]; ok {
			ttl = int(t)
		}
		if ns.StrictTTL && ttl != masterTTL {
			return model.NewDnsLookupResult(hostname, status.LookupWarning, []string{"ttl mismatch"}, addrs)
		}
	}
	return model.NewDnsLookupResult(hostname, status.LookupSuccessful, nil, addrs)
}

func nodeA() model.Node {
	return model.Node{ID: "A", Enabled: true, Nameservers: []model.Nameserver{{Hostname: "n1"}, {Hostname: "n2"}}}
}

func nodeB() model.Node {
	return model.Node{ID: "B", Enabled: true, Nameservers: []model.Nameserver{{Hostname: "n1"}, {Hostname: "n2"}}}
}

func baseResource() model.Resource {
	return model.Resource{
		ID:               "res1",
		Enabled:          true,
		MasterRecords:    []string{"m.x"},
		MasterRecordsTTL: 300,
		AllowMultiMaster: false,
		ResourceNodes: []model.ResourceNode{
			{Node: nodeA(), NodeRecords: []string{"a.x"}},
			{Node: nodeB(), NodeRecords: []string{"b.x"}},
		},
	}
}

func TestCleanMasterAndSlave(t *testing.T) {
	r := baseResource()
	q := &fakeQuerier{answers: map[string]map[string][]string{
		"m.x": {"n1": {"10.0.0.1"}, "n2": {"10.0.0.1"}},
		"a.x": {"n1": {"10.0.0.1"}, "n2": {"10.0.0.1"}},
		"b.x": {"n1": {"10.0.0.2"}, "n2": {"10.0.0.2"}},
	}}
	m := New(r, q, nil)

	result := m.pass(context.Background())

	assert.Equal(t, status.MasterConsistent, result.MasterStatus)
	require.Len(t, result.NodeResults, 2)
	assert.Equal(t, status.NodeMaster, result.NodeResults[0].NodeStatus)
	assert.Equal(t, status.NodeSlave, result.NodeResults[1].NodeStatus)
	assert.Empty(t, result.MasterStatusMessages)
}

func TestMasterTTLWarningStrict(t *testing.T) {
	r := baseResource()
	r.ResourceNodes[0].Node.Nameservers = []model.Nameserver{{Hostname: "n1", StrictTTL: true}, {Hostname: "n2"}}
	r.ResourceNodes[1].Node.Nameservers = []model.Nameserver{{Hostname: "n1", StrictTTL: true}, {Hostname: "n2"}}

	q := &fakeQuerier{
		answers: map[string]map[string][]string{
			"m.x": {"n1": {"10.0.0.1"}, "n2": {"10.0.0.1"}},
			"a.x": {"n1": {"10.0.0.1"}, "n2": {"10.0.0.1"}},
			"b.x": {"n1": {"10.0.0.2"}, "n2": {"10.0.0.2"}},
		},
		ttl: map[string]uint32{"m.x": 299},
	}
	m := New(r, q, nil)

	result := m.pass(context.Background())

	assert.Equal(t, status.MasterWarning, result.MasterStatus)
	assert.Len(t, result.MasterStatusMessages, 1)
	assert.Equal(t, status.NodeMaster, result.NodeResults[0].NodeStatus)
}

func TestMultiMasterForbidden(t *testing.T) {
	r := baseResource()
	q := &fakeQuerier{answers: map[string]map[string][]string{
		"m.x": {"n1": {"10.0.0.1", "10.0.0.2"}, "n2": {"10.0.0.1", "10.0.0.2"}},
		"a.x": {"n1": {"10.0.0.1"}, "n2": {"10.0.0.1"}},
		"b.x": {"n1": {"10.0.0.2"}, "n2": {"10.0.0.2"}},
	}}
	m := New(r, q, nil)

	result := m.pass(context.Background())

	assert.Equal(t, status.MasterInconsistent, result.MasterStatus)
	found := false
	for _, msg := range result.MasterStatusMessages {
		if contains(msg, "multi-master not allowed") {
			found = true
		}
	}
	assert.True(t, found)
	for _, nr := range result.NodeResults {
		assert.NotEqual(t, status.NodeMaster, nr.NodeStatus)
	}
}

func TestNodeDuplicateAddress(t *testing.T) {
	r := baseResource()
	q := &fakeQuerier{answers: map[string]map[string][]string{
		"m.x": {"n1": {"10.0.0.1"}, "n2": {"10.0.0.1"}},
		"a.x": {"n1": {"10.0.0.1"}, "n2": {"10.0.0.1"}},
		"b.x": {"n1": {"10.0.0.1"}, "n2": {"10.0.0.1"}},
	}}
	m := New(r, q, nil)

	result := m.pass(context.Background())

	assert.Equal(t, status.NodeInconsistent, result.NodeResults[0].NodeStatus)
	assert.Equal(t, status.NodeInconsistent, result.NodeResults[1].NodeStatus)
}

func TestMasterAddressNotInAnyNode(t *testing.T) {
	r := baseResource()
	q := &fakeQuerier{answers: map[string]map[string][]string{
		"m.x": {"n1": {"10.0.0.9"}, "n2": {"10.0.0.9"}},
		"a.x": {"n1": {"10.0.0.1"}, "n2": {"10.0.0.1"}},
		"b.x": {"n1": {"10.0.0.2"}, "n2": {"10.0.0.2"}},
	}}
	m := New(r, q, nil)

	result := m.pass(context.Background())

	assert.Equal(t, status.MasterInconsistent, result.MasterStatus)
	found := false
	for _, msg := range result.MasterStatusMessages {
		if contains(msg, "10.0.0.9") {
			found = true
		}
	}
	assert.True(t, found)
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

func TestBuildInitialResultStarting(t *testing.T) {
	r := baseResource()

	initial := buildInitialResult(r, true)

	assert.Equal(t, status.MasterStarting, initial.MasterStatus)
	require.Len(t, initial.NodeResults, 2)
	for _, nr := range initial.NodeResults {
		assert.Equal(t, status.NodeStarting, nr.NodeStatus)
	}
}

func TestStartNotifiesNilOldBeforeAnyPass(t *testing.T) {
	r := baseResource()
	notifyCh := make(chan *model.ResourceDnsResult, 8)
	m := New(r, &fakeQuerier{}, func(old, new *model.ResourceDnsResult) {
		if old == nil {
			notifyCh <- new
		}
	})

	m.Start(true)
	defer m.Stop()

	select {
	case first := <-notifyCh:
		assert.Equal(t, status.MasterStarting, first.MasterStatus)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the initial STARTING notification")
	}
}

func TestStartPublishesInitialDisabledResultWhenResourceDisabled(t *testing.T) {
	r := baseResource()
	r.Enabled = false
	m := New(r, &fakeQuerier{}, nil)

	m.Start(true)
	defer m.Stop()

	require.NotNil(t, m.LastResult())
	assert.Equal(t, status.MasterDisabled, m.LastResult().MasterStatus)
	for _, nr := range m.LastResult().NodeResults {
		assert.Equal(t, status.NodeDisabled, nr.NodeStatus)
	}
}
