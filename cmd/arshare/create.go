package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"arshare/api/internal/app"
	"arshare/api/internal/config"
	"arshare/api/internal/grant"
	"arshare/api/internal/logging"
	"arshare/api/internal/search"
	"arshare/api/internal/store"
)

// backend is what create writes to. index is nil when Meilisearch is not
// configured.
type backend struct {
	store app.Store
	index search.Index
	close func()
}

var openBackend = func(ctx context.Context, cfg config.Config, logger zerolog.Logger) (backend, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return backend{}, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(db); err != nil {
		db.Close()
		return backend{}, fmt.Errorf("migrations failed: %w", err)
	}

	b := backend{store: store.NewPostgresStore(db), close: func() { db.Close() }}
	if cfg.MeiliURL != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		b.index = meiliClient
		b.close = func() {
			meiliClient.Close()
			db.Close()
		}
	}
	return b, nil
}

// syncIndexer indexes in the foreground. The CLI exits right after create, so
// a background write would be lost.
type syncIndexer struct {
	*search.Service
	err error
}

func (s *syncIndexer) IndexProject(record search.ProjectRecord) {
	s.err = s.IndexProjectSync(record)
}

func newCreateCmd() *cobra.Command {
	var input app.CreateProjectInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a share link for a product model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.PublicBaseURL = baseURL
			cfg.PreviewPath = previewPath
			logger := logging.New(os.Stderr, cfg.LogLevel)
			ctx := context.Background()

			b, err := openBackend(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.close()

			indexer := &syncIndexer{Service: search.NewService(b.index, b.store, logger)}
			service := app.New(cfg, b.store, grant.NewMemoryDevices(), indexer, logger)

			created, err := service.CreateProject(ctx, input)
			if err != nil {
				return err
			}
			if indexer.err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: search index not updated: %v\n", indexer.err)
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(created)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s (%s)\n", created.Project.ShareLinkID, created.Project.ProductName)
			fmt.Fprintf(out, "  Preview:     %s\n", created.PreviewURL)
			if created.AccessCode != "" {
				fmt.Fprintf(out, "  Access code: %s\n", created.AccessCode)
			} else {
				fmt.Fprintln(out, "  Access code: none (public)")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input.ProductName, "name", "", "product name (required)")
	cmd.Flags().StringVar(&input.GLBURL, "glb", "", "GLB model URL (required)")
	cmd.Flags().StringVar(&input.USDZURL, "usdz", "", "USDZ model URL for iOS Quick Look")
	cmd.Flags().StringVar(&input.ThumbnailURL, "thumbnail", "", "thumbnail image URL (required)")
	cmd.Flags().StringVar(&input.Notes, "notes", "", "notes shown to the client")
	cmd.Flags().StringVar(&input.Status, "status", "", "Pending, Approved or Needs Revision")
	cmd.Flags().StringVar(&input.AccessCode, "code", "", "access code (generated when omitted)")
	cmd.Flags().BoolVar(&input.Public, "public", false, "create the share without an access code")
	return cmd
}
