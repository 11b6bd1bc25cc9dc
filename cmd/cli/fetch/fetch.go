package fetch

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nodepool-project/nodepool/cmd/util"
	"github.com/nodepool-project/nodepool/pkg/requests"
)

type fetchOptions struct {
	method  string
	params  []string
	timeout time.Duration
}

func NewCmd() *cobra.Command {
	opts := &fetchOptions{}

	fetchCmd := &cobra.Command{
		Use:   "fetch [path]",
		Short: "Fetch a path through endpoint selection and retry handling",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, args[0])
		},
	}

	fetchCmd.Flags().StringVar(&opts.method, "method", "GET", "HTTP method for the request")
	fetchCmd.Flags().StringArrayVar(&opts.params, "param", nil, "Query parameter as key=value, repeatable")
	fetchCmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Per-request timeout overriding the default")
	return fetchCmd
}

func runFetch(cmd *cobra.Command, opts *fetchOptions, path string) error {
	orch, err := util.NewOrchestrator()
	if err != nil {
		return err
	}

	params := url.Values{}
	for _, pair := range opts.params {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return errors.Errorf("invalid --param %q, expected key=value", pair)
		}
		params.Add(key, value)
	}

	data, err := orch.Fetch(cmd.Context(), requests.Descriptor{
		Path:    path,
		Method:  opts.method,
		Params:  params,
		Timeout: opts.timeout,
	})
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("no data available for %s", path)
	}

	cmd.Println(string(data))
	return nil
}
