package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/appcluster/pkg/cluster"
	"github.com/cuemby/appcluster/pkg/config"
)

var statusSettleDelay time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the aggregate cluster, resource, and node status table",
	RunE: func(cmd *cobra.Command, args []string) error {
		source := config.NewFileSource(configPath)
		c := cluster.New(source, nil)
		if err := c.Start(); err != nil {
			return fmt.Errorf("start cluster: %w", err)
		}
		defer c.Stop()

		time.Sleep(statusSettleDelay)
		printStatusTable(c)
		return nil
	},
}

func init() {
	statusCmd.Flags().DurationVar(&statusSettleDelay, "wait", 2*time.Second, "time to wait for an initial DNS pass before printing")
}

func printStatusTable(c *cluster.Cluster) {
	fmt.Printf("cluster status: %s\n\n", c.Status())

	for _, id := range c.Resources() {
		resourceStatus, nodeStatuses, ok := c.ResourceStatus(id)
		if !ok {
			continue
		}
		fmt.Printf("resource %s: %s\n", id, resourceStatus)
		for nodeID, nodeStatus := range nodeStatuses {
			fmt.Printf("  node %s: %s\n", nodeID, nodeStatus)
		}
		if schedulers, ok := c.SchedulerStatuses(id); ok {
			for _, sch := range schedulers {
				fmt.Printf("  scheduler -> %s: %s (can synchronize now: %t, can test now: %t)\n",
					sch.RemoteNode, sch.State, sch.CanSynchronizeNow, sch.CanTestNow)
			}
		}
	}

	nsStatuses := c.NameserverStatuses()
	if len(nsStatuses) > 0 {
		fmt.Println("\nnameservers:")
		for ns, st := range nsStatuses {
			fmt.Printf("  %s: %s\n", ns, st)
		}
	}
}

type statusResponse struct {
	Cluster   string                       `json:"cluster"`
	Resources map[string]resourceStatusDoc `json:"resources"`
}

type resourceStatusDoc struct {
	Status     string             `json:"status"`
	Nodes      map[string]string  `json:"nodes"`
	Schedulers []schedulerInfoDoc `json:"schedulers,omitempty"`
}

type schedulerInfoDoc struct {
	RemoteNode        string `json:"remoteNode"`
	State             string `json:"state"`
	CanSynchronizeNow bool   `json:"canSynchronizeNow"`
	CanTestNow        bool   `json:"canTestNow"`
}

func statusHandler(c *cluster.Cluster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Cluster:   c.Status().String(),
			Resources: make(map[string]resourceStatusDoc),
		}
		for _, id := range c.Resources() {
			resourceStatus, nodeStatuses, ok := c.ResourceStatus(id)
			if !ok {
				continue
			}
			doc := resourceStatusDoc{Status: resourceStatus.String(), Nodes: make(map[string]string)}
			for nodeID, nodeStatus := range nodeStatuses {
				doc.Nodes[nodeID] = nodeStatus.String()
			}
			if schedulers, ok := c.SchedulerStatuses(id); ok {
				for _, sch := range schedulers {
					doc.Schedulers = append(doc.Schedulers, schedulerInfoDoc{
						RemoteNode:        sch.RemoteNode,
						State:             sch.State.String(),
						CanSynchronizeNow: sch.CanSynchronizeNow,
						CanTestNow:        sch.CanTestNow,
					})
				}
			}
			resp.Resources[id] = doc
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
