package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Inspect the key file wallet",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "connect",
		Short: "Connect the wallet and print its state",
		RunE:  runWalletConnect,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "address",
		Short: "Print the wallet address",
		RunE:  runWalletAddress,
	})
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Reconnect whenever the key file changes",
		RunE:  runWalletWatch,
	}
	watch.Flags().String("suggest-token", "", "cw20 token to register with the keystore after each connect")
	cmd.AddCommand(watch)
	return cmd
}

type walletStatus struct {
	State      string `json:"state"`
	KeystoreID int64  `json:"keystore_id"`
	Address    string `json:"address,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func runWalletConnect(cmd *cobra.Command, _ []string) error {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	session, _, connectErr := a.session(ctx)
	address, _ := session.Address()
	if err := printJSON(cmd.OutOrStdout(), walletStatus{
		State:      session.State().String(),
		KeystoreID: session.KeystoreID(),
		Address:    address,
		Reason:     session.Reason(),
	}); err != nil {
		return err
	}
	return connectErr
}

func runWalletAddress(cmd *cobra.Command, _ []string) error {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	session, _, err := a.session(ctx)
	if err != nil {
		return err
	}
	address, _ := session.Address()
	fmt.Fprintln(cmd.OutOrStdout(), address)
	return nil
}

func runWalletWatch(cmd *cobra.Command, _ []string) error {
	a, ctx, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	token, _ := cmd.Flags().GetString("suggest-token")
	session, keystore, err := a.session(ctx)
	if err != nil {
		a.logger.Warn("initial connect failed", zap.Error(err))
	}

	ids, unsubscribe := session.Subscribe()
	defer unsubscribe()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return keystore.Watch(ctx)
	})
	g.Go(func() error {
		session.Watch(ctx)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case id := <-ids:
				address, _ := session.Address()
				a.logger.Info("wallet changed",
					zap.Int64("keystore_id", id),
					zap.String("state", session.State().String()),
					zap.String("wallet", address),
					zap.String("reason", session.Reason()),
				)
				if token != "" && id >= 0 {
					if err := session.SuggestToken(ctx, token); err != nil {
						a.logger.Warn("suggest token failed", zap.String("token", token), zap.Error(err))
					}
				}
			}
		}
	})
	return g.Wait()
}
