// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/RecordFabric/pkg/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "fabric",
		Short: "A cli to run the RecordFabric investigation services",
		Long: `RecordFabric is a fabric of small services for property-fraud
				investigations: an API gateway, record analysis, scraping,
				validation, vector search, GIS conversion, ACRIS search,
				firm storage, and Drive document management.`,
	}

	serveCmd = &cobra.Command{
		Use:       "serve [service]",
		Short:     "Run one service in the foreground",
		Args:      cobra.ExactArgs(1),
		ValidArgs: append([]string{"gateway"}, config.ServiceNames...),
		Run:       runServe, // Defined in run.go
	}

	serveAllCmd = &cobra.Command{
		Use:   "serve-all",
		Short: "Run the gateway and every service in one process",
		Run:   runServeAll, // Defined in run.go
	}

	servicesCmd = &cobra.Command{
		Use:   "services",
		Short: "List service names and their default ports",
		Run:   runListServices,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to fabric.yaml (default: search ., ./configs, ~/.recordfabric, /etc/recordfabric)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(serveAllCmd)
	rootCmd.AddCommand(servicesCmd)
}

func runListServices(cmd *cobra.Command, args []string) {
	fmt.Printf("%-14s %d\n", "gateway", config.ServicePort("gateway"))
	for _, name := range config.ServiceNames {
		fmt.Printf("%-14s %d\n", name, config.ServicePort(name))
	}
}
