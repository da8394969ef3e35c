package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initialDoc = `
enabled: true
display: example cluster
nodes:
  - id: node1
    enabled: true
    display: Node One
    hostname: node1.example.com
    username: appcluster
    nameservers:
      ns1.example.com: true
resources:
  - id: db
    enabled: true
    display: Database
    type: mysql
    masterRecords: [db-master.example.com]
    masterRecordsTtl: 300
    allowMultiMaster: false
    synchronizeTimeoutSeconds: 60
    testTimeoutSeconds: 30
    synchronizeSchedule: "*/5 * * * *"
    testSchedule: "* * * * *"
    nodes:
      - nodeId: node1
        nodeRecords: [db-node1.example.com]
`

const updatedDoc = `
enabled: true
display: example cluster renamed
nodes: []
resources: []
`

type recordingListener struct {
	ch chan struct{}
}

func (l *recordingListener) OnConfigurationChanged() {
	l.ch <- struct{}{}
}

func writeTemp(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "appcluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestFileSourceParsesNodesAndResources(t *testing.T) {
	path := writeTemp(t, initialDoc)
	src := NewFileSource(path)
	require.NoError(t, src.Start())
	defer src.Stop()

	assert.True(t, src.Enabled())
	assert.Equal(t, "example cluster", src.Display())

	nodes := src.NodeConfigurations()
	require.Len(t, nodes, 1)
	assert.Equal(t, "node1", nodes[0].ID)
	assert.Equal(t, "node1.example.com", nodes[0].Hostname)
	assert.True(t, nodes[0].Nameservers["ns1.example.com"])

	resources := src.ResourceConfigurations()
	require.Len(t, resources, 1)
	assert.Equal(t, "db", resources[0].ID)
	assert.Equal(t, []string{"db-master.example.com"}, resources[0].MasterRecords)
	assert.Equal(t, 300, resources[0].MasterRecordsTTL)
	require.Len(t, resources[0].ResourceNodeConfigurations, 1)
	assert.Equal(t, "node1", resources[0].ResourceNodeConfigurations[0].NodeID)
}

func TestFileSourceFiresListenerOnReload(t *testing.T) {
	path := writeTemp(t, initialDoc)
	src := NewFileSource(path)
	require.NoError(t, src.Start())
	defer src.Stop()

	listener := &recordingListener{ch: make(chan struct{}, 1)}
	src.AddListener(listener)

	require.NoError(t, os.WriteFile(path, []byte(updatedDoc), 0o644))

	select {
	case <-listener.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not notified of configuration change")
	}

	assert.Equal(t, "example cluster renamed", src.Display())
	assert.Empty(t, src.NodeConfigurations())
}

func TestFileSourceRemoveListenerStopsNotifications(t *testing.T) {
	path := writeTemp(t, initialDoc)
	src := NewFileSource(path)
	require.NoError(t, src.Start())
	defer src.Stop()

	listener := &recordingListener{ch: make(chan struct{}, 1)}
	src.AddListener(listener)
	src.RemoveListener(listener)

	require.NoError(t, os.WriteFile(path, []byte(updatedDoc), 0o644))

	select {
	case <-listener.ch:
		t.Fatal("removed listener should not have been notified")
	case <-time.After(300 * time.Millisecond):
	}
}
