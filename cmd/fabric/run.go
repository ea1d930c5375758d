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
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/RecordFabric/pkg/config"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
	"github.com/AleutianAI/RecordFabric/services/acris"
	"github.com/AleutianAI/RecordFabric/services/analysis"
	"github.com/AleutianAI/RecordFabric/services/data"
	"github.com/AleutianAI/RecordFabric/services/drive"
	"github.com/AleutianAI/RecordFabric/services/gateway"
	"github.com/AleutianAI/RecordFabric/services/gis"
	"github.com/AleutianAI/RecordFabric/services/scraping"
	"github.com/AleutianAI/RecordFabric/services/validation"
	"github.com/AleutianAI/RecordFabric/services/vectors"
	"github.com/AleutianAI/RecordFabric/services/vectors/embed"
	"github.com/AleutianAI/RecordFabric/services/vectors/store"
	"github.com/AleutianAI/RecordFabric/services/vectors/store/memory"
	"github.com/AleutianAI/RecordFabric/services/vectors/store/weaviatestore"
)

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runService(ctx, args[0]); err != nil {
		log.Fatalf("Error running %s: %v", args[0], err)
	}
}

func runServeAll(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	names := append([]string{"gateway"}, config.ServiceNames...)
	slog.Info("starting all fabric services", "count", len(names))

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			if err := runService(ctx, name); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Error running fabric: %v", err)
	}
}

// newManager builds the shared redundancy state from configuration.
func newManager(cfg *config.Config) *redundancy.Manager {
	return redundancy.NewManager(redundancy.ManagerConfig{
		FailureThreshold: cfg.Redundancy.FailureThreshold,
		RecoveryInterval: cfg.RecoveryInterval(),
		CacheTTL:         cfg.CacheTTL(),
		CacheMaxEntries:  cfg.Redundancy.CacheMaxEntries,
		DefaultTimeout:   cfg.Timeout(),
		DefaultRetry: redundancy.RetryPolicy{
			MaxAttempts:    cfg.Redundancy.MaxAttempts,
			BaseDelay:      cfg.BaseDelay(),
			MaxDelay:       cfg.MaxDelay(),
			JitterFraction: cfg.Redundancy.JitterFraction,
		},
	})
}

// runService builds and runs one service by name, blocking until it exits.
func runService(ctx context.Context, name string) error {
	cfg := appConfig

	switch name {
	case "gateway":
		svc, err := gateway.New(gateway.Config{
			Host:            cfg.Gateway.Host,
			Port:            cfg.Gateway.Port,
			Descriptors:     gateway.DescriptorsFromConfig(cfg),
			Manager:         newManager(cfg),
			RateLimit:       cfg.Gateway.RateLimit,
			Burst:           cfg.Gateway.Burst,
			HealthInterval:  cfg.HealthInterval(),
			TracingEndpoint: cfg.Tracing.Endpoint,
		})
		if err != nil {
			return err
		}
		return svc.Run(ctx)

	case "analysis":
		svc, err := analysis.New(analysis.Config{
			Port:           config.ServicePort(name),
			DataServiceURL: cfg.Services["data"].URL,
			Manager:        newManager(cfg),
		})
		if err != nil {
			return err
		}
		return svc.Run()

	case "scraping":
		svc, err := scraping.New(scraping.Config{
			Port:    config.ServicePort(name),
			Manager: newManager(cfg),
		})
		if err != nil {
			return err
		}
		return svc.Run(ctx)

	case "validation":
		svc, err := validation.New(validation.Config{Port: config.ServicePort(name)})
		if err != nil {
			return err
		}
		return svc.Run()

	case "vector":
		vectorStore, err := newVectorStore(cfg)
		if err != nil {
			return err
		}
		svc, err := vectors.New(vectors.Config{
			Port: config.ServicePort(name),
			Engine: embed.NewFeatureHashEngine(embed.Options{
				Dimension: cfg.Vector.Dimension,
				Workers:   cfg.Vector.EmbedWorkers,
			}),
			Store: vectorStore,
		})
		if err != nil {
			return err
		}
		return svc.Run()

	case "gis":
		svc, err := gis.New(gis.Config{Port: config.ServicePort(name)})
		if err != nil {
			return err
		}
		return svc.Run()

	case "acris":
		svc, err := acris.New(acris.Config{
			Port:    config.ServicePort(name),
			Manager: newManager(cfg),
		})
		if err != nil {
			return err
		}
		return svc.Run()

	case "data":
		svc, err := data.New(data.Config{
			Port: config.ServicePort(name),
			Dir:  cfg.Data.Dir,
		})
		if err != nil {
			return err
		}
		defer svc.Close()
		return svc.Run()

	case "google-drive":
		svc, err := drive.New(drive.Config{
			Port:            config.ServicePort(name),
			CredentialsFile: cfg.Drive.CredentialsFile,
			Manager:         newManager(cfg),
		})
		if err != nil {
			return err
		}
		return svc.Run()

	default:
		return fmt.Errorf("unknown service %q", name)
	}
}

// newVectorStore selects the vector backend from configuration.
func newVectorStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Vector.Backend {
	case "", "memory":
		return memory.New(), nil
	case "weaviate":
		return weaviatestore.New(weaviatestore.Config{
			Host:   cfg.Vector.Host,
			Scheme: cfg.Vector.Scheme,
			APIKey: cfg.Vector.APIKey,
		})
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}
