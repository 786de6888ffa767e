package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"daoup/internal/campaign"
	"daoup/internal/chain"
	"daoup/internal/model"
)

func newCampaignsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "List campaigns",
		RunE:  runCampaigns,
	}
	cmd.Flags().String("filter", "", `filter text, e.g. "status:open garden"`)
	cmd.Flags().Bool("include-hidden", false, "include hidden campaigns")
	cmd.Flags().Bool("include-pending", true, "include pending campaigns")
	cmd.Flags().Int("page", 1, "page number (1-based)")
	cmd.Flags().Int("size", 0, "page size, 0 lists everything")
	return cmd
}

func runCampaigns(cmd *cobra.Command, _ []string) error {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	filter, _ := cmd.Flags().GetString("filter")
	includeHidden, _ := cmd.Flags().GetBool("include-hidden")
	includePending, _ := cmd.Flags().GetBool("include-pending")
	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("size")

	addresses, registryErr := a.registry.Addresses(ctx)
	if registryErr != nil {
		return fmt.Errorf("load campaigns: %s", campaign.ErrorMessage(registryErr))
	}
	responses := campaign.FetchAll(ctx, a.fetcher, addresses, a.cfg.Concurrency)
	for _, r := range responses {
		if r.Err != nil {
			a.logger.Warn("campaign load failed", zap.String("campaign", r.Address), zap.Error(r.Err))
		}
	}

	campaigns := campaign.FilterCampaigns(campaign.FromResponses(responses, includeHidden, includePending), filter)
	if size > 0 {
		campaigns = campaign.Page(campaigns, page, size)
	}
	if err := campaign.FirstError(nil, nil, responses); err != nil {
		fmt.Fprintln(os.Stderr, campaign.ErrorMessage(err))
	}
	return printJSON(cmd.OutOrStdout(), campaigns)
}

func newCampaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign <address>",
		Short: "Show one campaign with its contribution history",
		Args:  cobra.ExactArgs(1),
		RunE:  runCampaign,
	}
	cmd.Flags().Bool("actions", true, "include fund and refund history")
	return cmd
}

type campaignDetail struct {
	Campaign      model.Campaign  `json:"campaign"`
	PercentFunded float64         `json:"percent_funded"`
	Actions       []model.Action  `json:"actions,omitempty"`
	Cumulative    []float64       `json:"cumulative,omitempty"`
	Stats         *campaign.Stats `json:"stats,omitempty"`
}

func runCampaign(cmd *cobra.Command, args []string) error {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	address := strings.TrimSpace(args[0])
	if err := chain.ValidateAddress(address, a.cfg.Bech32Prefix); err != nil {
		return fmt.Errorf("%s", chain.Message(err, nil))
	}

	c, err := a.fetcher.Campaign(ctx, address)
	if err != nil {
		return fmt.Errorf("load campaign: %s", campaign.ErrorMessage(err))
	}

	detail := campaignDetail{Campaign: c, PercentFunded: c.PercentFunded()}
	if withActions, _ := cmd.Flags().GetBool("actions"); withActions {
		actions, err := a.history.Actions(ctx, address)
		if err != nil {
			return fmt.Errorf("load actions: %s", chain.Message(err, nil))
		}
		stats := campaign.Summarize(actions)
		detail.Actions = actions
		detail.Cumulative = model.CumulativeTotals(actions)
		detail.Stats = &stats
	}
	return printJSON(cmd.OutOrStdout(), detail)
}

func newMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me [wallet]",
		Short: "List campaigns created or backed by a wallet (defaults to the key file account)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMe,
	}
}

func runMe(cmd *cobra.Command, args []string) error {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var address string
	if len(args) == 1 {
		address = strings.TrimSpace(args[0])
		if err := chain.ValidateAddress(address, a.cfg.Bech32Prefix); err != nil {
			return fmt.Errorf("%s", chain.Message(err, nil))
		}
	} else {
		session, _, err := a.session(ctx)
		if err != nil {
			return err
		}
		address, _ = session.Address()
	}

	addresses, err := a.registry.Addresses(ctx)
	if err != nil {
		return fmt.Errorf("load campaigns: %s", campaign.ErrorMessage(err))
	}
	responses := campaign.FetchAll(ctx, a.fetcher, addresses, a.cfg.Concurrency)
	campaigns := campaign.FromResponses(responses, true, true)
	return printJSON(cmd.OutOrStdout(), campaign.ForWallet(ctx, a.fetcher, campaigns, address, a.cfg.Concurrency, a.logger))
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Filter campaigns interactively; each input line replaces the filter",
		RunE:  runSearch,
	}
	cmd.Flags().Bool("include-hidden", false, "include hidden campaigns")
	cmd.Flags().Bool("include-pending", true, "include pending campaigns")
	cmd.Flags().Duration("filter-debounce", campaign.DefaultFilterDebounce, "delay before refiltering")
	return cmd
}

func runSearch(cmd *cobra.Command, _ []string) error {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	includeHidden, _ := cmd.Flags().GetBool("include-hidden")
	includePending, _ := cmd.Flags().GetBool("include-pending")
	list := campaign.NewListService(a.registry, a.fetcher,
		campaign.ListOptions{IncludeHidden: includeHidden, IncludePending: includePending},
		campaign.ListConfig{Debounce: a.cfg.FilterDebounce, Concurrency: a.cfg.Concurrency},
		a.logger)
	defer list.Close()

	results, unsubscribe := list.Subscribe()
	defer unsubscribe()
	go printResults(ctx, cmd.OutOrStdout(), results)

	if err := list.Load(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), campaign.ErrorMessage(err))
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		list.SetFilter(scanner.Text())
	}
	return scanner.Err()
}

func printResults(ctx context.Context, out io.Writer, results <-chan campaign.ListResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			if result.Filtering {
				continue
			}
			printResult(out, result)
		}
	}
}

func printResult(out io.Writer, result campaign.ListResult) {
	if result.Error != "" {
		fmt.Fprintf(out, "error: %s\n", result.Error)
	}
	for _, c := range result.Campaigns {
		fmt.Fprintf(out, "%-9s %5.1f%%  %s  %s\n", c.Status.Title(), c.PercentFunded(), c.Name, c.Address)
	}
	fmt.Fprintf(out, "-- %d campaigns\n", len(result.Campaigns))
}
