// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/musictopeople/ocm-go/claim"
	"github.com/musictopeople/ocm-go/config"
	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/node"
	"github.com/musictopeople/ocm-go/store"
)

func init() {
	cobra.EnablePrefixMatching = true
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ocmd: %v\n", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ocmd",
		Short: "ocmd runs an OCM peer-to-peer memory federation node",
	}
	root.AddCommand(runCommand())
	root.AddCommand(claimStatsCommand())
	return root
}

func runCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the node and block until signaled to stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to an OCM config file (TOML/YAML/JSON)")
	return cmd
}

func runNode(configFile string) error {
	v, err := config.NewViper(configFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	identity, err := node.LoadOrCreateIdentity(cfg.DataDir)
	if err != nil {
		return err
	}

	n, err := node.New(cfg, identity)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := n.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	n.Stop()
	<-n.Done()
	return nil
}

func claimStatsCommand() *cobra.Command {
	var configFile, orgDID string

	cmd := &cobra.Command{
		Use:   "claim-stats",
		Short: "Report proxy-and-claim activity for an organization DID",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printClaimStatistics(configFile, orgDID)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to an OCM config file (TOML/YAML/JSON)")
	cmd.Flags().StringVar(&orgDID, "org", "", "organization DID to report statistics for")
	cmd.MarkFlagRequired("org")
	return cmd
}

func printClaimStatistics(configFile, orgDID string) error {
	v, err := config.NewViper(configFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	s, err := store.OpenPebbleStore(filepath.Join(cfg.DataDir, "store"))
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := claim.NewEngine(s).Statistics(ids.DID(orgDID))
	if err != nil {
		return err
	}

	fmt.Printf("organization:         %s\n", orgDID)
	fmt.Printf("proxy records:        %d\n", stats.TotalProxyRecords)
	fmt.Printf("tokens created:       %d\n", stats.TotalTokensCreated)
	fmt.Printf("tokens claimed:       %d\n", stats.TokensClaimed)
	fmt.Printf("tokens expired:       %d\n", stats.TokensExpired)
	fmt.Printf("tokens active:        %d\n", stats.TokensActive)
	fmt.Printf("claim rate:           %.1f%%\n", stats.ClaimRate())
	return nil
}
