package util

import (
	"time"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nodepool-project/nodepool/pkg/lib/backoff"
	"github.com/nodepool-project/nodepool/pkg/orchestrator"
	"github.com/nodepool-project/nodepool/pkg/probe"
	"github.com/nodepool-project/nodepool/pkg/requests"
	"github.com/nodepool-project/nodepool/pkg/selection"
)

// Keys for the fleet configuration shared by all subcommands. Values come
// from flags, overridable through NODEPOOL_* environment variables.
const (
	KeyEndpoints          = "endpoints"
	KeyAllowlist          = "allowlist"
	KeyDenylist           = "denylist"
	KeyProbeTimeout       = "probe-timeout"
	KeyRequestTimeout     = "request-timeout"
	KeyReselectTimeout    = "reselect-timeout"
	KeyUnhealthyBlockDiff = "unhealthy-block-diff"
	KeySlotDiffPlays      = "unhealthy-slot-diff-plays"
	KeyMinVersion         = "min-version"
	KeyRetries            = "retries"
	KeyMax404s            = "max-true-404s"
	KeyUserID             = "user-id"
	KeyBackoff            = "retry-backoff"
)

// AddFleetFlags registers the shared flags on the root command and binds them
// into viper.
func AddFleetFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringSlice(KeyEndpoints, nil, "Candidate discovery node base URLs")
	flags.StringSlice(KeyAllowlist, nil, "Restrict candidates to these endpoints")
	flags.StringSlice(KeyDenylist, nil, "Exclude these endpoints from selection")
	flags.Duration(KeyProbeTimeout, probe.DefaultProbeTimeout, "Timeout for each health probe")
	flags.Duration(KeyRequestTimeout, requests.DefaultRequestTimeout, "Default timeout for application requests")
	flags.Duration(KeyReselectTimeout, selection.DefaultReselectTimeout, "How long a selected endpoint is reused")
	flags.Int64(KeyUnhealthyBlockDiff, selection.DefaultUnhealthyBlockDiff, "Maximum tolerated block indexing lag")
	flags.Int64(KeySlotDiffPlays, -1, "Maximum tolerated plays slot lag, negative disables the check")
	flags.String(KeyMinVersion, "", "Minimum acceptable node version, empty disables the filter")
	flags.Int(KeyRetries, orchestrator.DefaultSelectionRequestRetries, "Per-endpoint retry budget")
	flags.Int(KeyMax404s, orchestrator.DefaultMaxRequestsForTrue404, "Not-found responses tolerated before believing a 404")
	flags.String(KeyUserID, "", "Optional user ID sent as the identity header")
	flags.Duration(KeyBackoff, 500*time.Millisecond, "Base backoff between retry attempts, 0 disables")

	for _, key := range []string{
		KeyEndpoints, KeyAllowlist, KeyDenylist,
		KeyProbeTimeout, KeyRequestTimeout, KeyReselectTimeout,
		KeyUnhealthyBlockDiff, KeySlotDiffPlays, KeyMinVersion,
		KeyRetries, KeyMax404s, KeyUserID, KeyBackoff,
	} {
		_ = viper.BindPFlag(key, flags.Lookup(key))
	}
}

// NewProber builds the health prober from the bound configuration.
func NewProber() *probe.HTTPProber {
	return probe.NewHTTPProber(probe.HTTPProberParams{
		Timeout: viper.GetDuration(KeyProbeTimeout),
	})
}

// NewSelector builds the endpoint selector from the bound configuration.
func NewSelector() (*selection.Selector, error) {
	endpoints := viper.GetStringSlice(KeyEndpoints)
	if len(endpoints) == 0 {
		return nil, errors.New("no endpoints configured, pass --endpoints or set NODEPOOL_ENDPOINTS")
	}

	var minVersion *semver.Version
	if raw := viper.GetString(KeyMinVersion); raw != "" {
		parsed, err := semver.NewVersion(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", KeyMinVersion)
		}
		minVersion = parsed
	}

	var slotDiffPlays *int64
	if diff := viper.GetInt64(KeySlotDiffPlays); diff >= 0 {
		slotDiffPlays = &diff
	}

	return selection.NewSelector(selection.SelectorParams{
		Endpoints:              endpoints,
		Allowlist:              viper.GetStringSlice(KeyAllowlist),
		Denylist:               viper.GetStringSlice(KeyDenylist),
		Prober:                 NewProber(),
		MinVersion:             minVersion,
		ReselectTimeout:        viper.GetDuration(KeyReselectTimeout),
		UnhealthyBlockDiff:     viper.GetInt64(KeyUnhealthyBlockDiff),
		UnhealthySlotDiffPlays: slotDiffPlays,
	}), nil
}

// NewOrchestrator builds the full request orchestrator from the bound
// configuration.
func NewOrchestrator() (*orchestrator.Orchestrator, error) {
	selector, err := NewSelector()
	if err != nil {
		return nil, err
	}

	client := requests.NewClient(requests.ClientParams{
		Timeout:  viper.GetDuration(KeyRequestTimeout),
		Identity: staticIdentity(viper.GetString(KeyUserID)),
	})

	var bo backoff.Backoff = backoff.NewNoop()
	if base := viper.GetDuration(KeyBackoff); base > 0 {
		bo = backoff.NewExponential(base, 10*base)
	}

	return orchestrator.New(orchestrator.Params{
		Selector:                selector,
		Client:                  client,
		Backoff:                 bo,
		SelectionRequestRetries: viper.GetInt(KeyRetries),
		MaxRequestsForTrue404:   viper.GetInt(KeyMax404s),
	}), nil
}

type staticIdentity string

func (s staticIdentity) CurrentUserID() string {
	return string(s)
}
