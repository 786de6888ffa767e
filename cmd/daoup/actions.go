package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"daoup/internal/campaign"
	"daoup/internal/chain"
	"daoup/internal/model"
)

type actionEnv struct {
	app     *app
	ctx     context.Context
	actions *campaign.Actions
	cleanup func()
}

// newActionEnv connects the wallet. A failed connection is not fatal: the hooks
// report the missing signing client themselves.
func newActionEnv(cmd *cobra.Command) (*actionEnv, error) {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return nil, err
	}
	session, _, err := a.session(ctx)
	if err != nil {
		a.logger.Debug("wallet not connected", zap.Error(err))
	}
	return &actionEnv{app: a, ctx: ctx, actions: a.actions(session), cleanup: cleanup}, nil
}

// loadCampaign returns nil when the campaign cannot be loaded; the hook then fails
// with its own precondition message.
func (e *actionEnv) loadCampaign(address string) *model.Campaign {
	address = strings.TrimSpace(address)
	if err := chain.ValidateAddress(address, e.app.cfg.Bech32Prefix); err != nil {
		return nil
	}
	c, err := e.app.fetcher.Campaign(e.ctx, address)
	if err != nil {
		e.app.logger.Warn("campaign not loaded", zap.String("campaign", address), zap.Error(err))
		return nil
	}
	return &c
}

type hookResult interface {
	Err() string
}

func hookError(h hookResult) error {
	return errors.New(h.Err())
}

func amountArg(input string) (float64, error) {
	amount, err := model.ParseAmount(input)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	return amount, nil
}

func newContributeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contribute <campaign> <amount>",
		Short: "Fund an open campaign in the pay token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := amountArg(args[1])
			if err != nil {
				return err
			}
			env, err := newActionEnv(cmd)
			if err != nil {
				return err
			}
			defer env.cleanup()

			hook := env.actions.Contribute()
			if !hook.Run(env.ctx, env.loadCampaign(args[0]), amount) {
				return hookError(hook)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "contributed %s\n", model.FormatAmount(amount))
			return nil
		},
	}
}

func newRefundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refund <campaign> <amount>",
		Short: "Return funding tokens for a refund while the campaign is open",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := amountArg(args[1])
			if err != nil {
				return err
			}
			env, err := newActionEnv(cmd)
			if err != nil {
				return err
			}
			defer env.cleanup()

			hook := env.actions.Refund()
			if !hook.Run(env.ctx, env.loadCampaign(args[0]), amount) {
				return hookError(hook)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refunded %s\n", model.FormatAmount(amount))
			return nil
		},
	}
}

func newProposeFundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "propose-fund <campaign> <amount>",
		Short: "Create a DAO proposal funding the campaign from the treasury",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := amountArg(args[1])
			if err != nil {
				return err
			}
			env, err := newActionEnv(cmd)
			if err != nil {
				return err
			}
			defer env.cleanup()

			hook := env.actions.ProposeFund()
			proposalID, ok := hook.Run(env.ctx, env.loadCampaign(args[0]), amount)
			if !ok {
				return hookError(hook)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "proposal %s\n", proposalID)
			return nil
		},
	}
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <campaign>",
		Short: "Propose new campaign metadata through the DAO",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}
	cmd.Flags().String("name", "", "campaign name")
	cmd.Flags().String("description", "", "campaign description")
	cmd.Flags().Bool("hidden", false, "hide the campaign from public lists")
	cmd.Flags().String("website", "", "website URL")
	cmd.Flags().String("twitter", "", "twitter handle")
	cmd.Flags().String("discord", "", "discord invite")
	cmd.Flags().String("profile-image-url", "", "profile image URL")
	cmd.Flags().StringSlice("description-image-urls", nil, "description image URLs")
	return cmd
}

func runUpdate(cmd *cobra.Command, args []string) error {
	env, err := newActionEnv(cmd)
	if err != nil {
		return err
	}
	defer env.cleanup()

	c := env.loadCampaign(args[0])
	var info campaign.UpdateInfo
	if c != nil {
		info = campaign.UpdateInfoFrom(*c)
	}

	flags := cmd.Flags()
	strFlags := map[string]*string{
		"name":              &info.Name,
		"description":       &info.Description,
		"website":           &info.Website,
		"twitter":           &info.Twitter,
		"discord":           &info.Discord,
		"profile-image-url": &info.ProfileImageURL,
	}
	for name, target := range strFlags {
		if flags.Changed(name) {
			*target, _ = flags.GetString(name)
		}
	}
	if flags.Changed("hidden") {
		info.Hidden, _ = flags.GetBool("hidden")
	}
	if flags.Changed("description-image-urls") {
		info.DescriptionImageURLs, _ = flags.GetStringSlice("description-image-urls")
	}

	hook := env.actions.Update()
	proposalID, ok := hook.Run(env.ctx, c, info)
	if !ok {
		return hookError(hook)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "proposal %s\n", proposalID)
	return nil
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign for a DAO",
		RunE:  runCreate,
	}
	cmd.Flags().String("dao", "", "DAO core contract address")
	cmd.Flags().String("name", "", "campaign name")
	cmd.Flags().String("description", "", "campaign description")
	cmd.Flags().String("goal", "", "funding goal in the pay token")
	cmd.Flags().String("token-name", "", "funding token name")
	cmd.Flags().String("token-symbol", "", "funding token symbol")
	cmd.Flags().Bool("hidden", false, "hide the campaign from public lists")
	cmd.Flags().String("image-url", "", "profile image URL")
	cmd.Flags().String("website", "", "website URL")
	cmd.Flags().String("twitter", "", "twitter handle")
	cmd.Flags().String("discord", "", "discord invite")
	for _, name := range []string{"dao", "name", "goal", "token-name", "token-symbol"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runCreate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	goalInput, _ := flags.GetString("goal")
	goal, err := amountArg(goalInput)
	if err != nil {
		return err
	}

	var n campaign.NewCampaign
	n.Goal = goal
	n.DAOAddress, _ = flags.GetString("dao")
	n.Name, _ = flags.GetString("name")
	n.Description, _ = flags.GetString("description")
	n.TokenName, _ = flags.GetString("token-name")
	n.TokenSymbol, _ = flags.GetString("token-symbol")
	n.Hidden, _ = flags.GetBool("hidden")
	n.ImageURL, _ = flags.GetString("image-url")
	n.Website, _ = flags.GetString("website")
	n.Twitter, _ = flags.GetString("twitter")
	n.Discord, _ = flags.GetString("discord")

	env, err := newActionEnv(cmd)
	if err != nil {
		return err
	}
	defer env.cleanup()

	hook := env.actions.Create()
	address, ok := hook.Run(env.ctx, n)
	if !ok {
		return hookError(hook)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s%s\n", env.app.cfg.BaseURL, "/campaign/"+address)
	return nil
}
