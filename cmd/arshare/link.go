package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"arshare/api/internal/qr"
)

func newURLCmd() *cobra.Command {
	var grant string
	cmd := &cobra.Command{
		Use:   "url <share-link-id>",
		Short: "Print the preview URL for a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := qr.NewGenerator(baseURL, previewPath).TargetURL(args[0], grant)
			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"url": target})
			}
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		},
	}
	cmd.Flags().StringVar(&grant, "grant", "", "access code to embed as a bypass token")
	return cmd
}

func newQRCmd() *cobra.Command {
	var (
		grant  string
		output string
		size   int
		level  string
	)
	cmd := &cobra.Command{
		Use:   "qr <share-link-id>",
		Short: "Render the QR code PNG for a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := qr.NewGenerator(baseURL, previewPath)
			gen.Options.PixelSize = size
			gen.Options.Level = level

			target, data, err := gen.PNG(context.Background(), args[0], grant)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes) for %s\n", output, len(data), target)
			return nil
		},
	}
	defaults := qr.DefaultOptions()
	cmd.Flags().StringVar(&grant, "grant", "", "access code to embed as a bypass token")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().IntVar(&size, "size", defaults.PixelSize, "image width in pixels")
	cmd.Flags().StringVar(&level, "level", defaults.Level, "error correction level (L, M, Q, H)")
	return cmd
}
