package health

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nodepool-project/nodepool/cmd/util"
	"github.com/nodepool-project/nodepool/pkg/models"
	"github.com/nodepool-project/nodepool/pkg/selection"
)

func NewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every configured endpoint and show which one selection would pick",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	endpoints := viper.GetStringSlice(util.KeyEndpoints)
	selector, err := util.NewSelector()
	if err != nil {
		return err
	}

	prober := util.NewProber()
	healths := make([]models.EndpointHealth, len(endpoints))
	var wg sync.WaitGroup
	for i, endpoint := range endpoints {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			healths[i] = prober.Probe(ctx, endpoint)
		}(i, endpoint)
	}
	wg.Wait()

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Endpoint", "Reachable", "Version", "Blocks Behind", "Slots Behind"})
	for _, health := range healths {
		tw.AppendRow(table.Row{
			health.Endpoint,
			health.Reachable,
			orDash(health.Report.Version),
			lagCell(health.Report.BlocksBehind()),
			lagCell(health.Report.SlotsBehindPlays()),
		})
	}
	tw.Render()

	selected, err := selector.Select(ctx)
	if err != nil {
		var noHealthy selection.ErrNoHealthyEndpoints
		if errors.As(err, &noHealthy) {
			cmd.Println("selection: no healthy endpoints")
			return nil
		}
		return err
	}
	cmd.Printf("selection: %s\n", selected)
	return nil
}

func lagCell(lag *int64) string {
	if lag == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *lag)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
