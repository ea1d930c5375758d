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
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/RecordFabric/pkg/config"
	"github.com/AleutianAI/RecordFabric/pkg/logging"
)

var (
	configPath string
	appConfig  *config.Config
	appLogger  *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
	if appLogger != nil {
		appLogger.Close()
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
		appConfig = cfg

		service := "fabric"
		if len(args) > 0 {
			service = args[0]
		}
		appLogger = logging.Setup(logging.Config{
			Level:   logging.ParseLevel(cfg.Log.Level),
			Service: service,
			LogDir:  cfg.Log.Dir,
			JSON:    cfg.Log.JSON,
		})
	}
}
