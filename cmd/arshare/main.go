package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	baseURL     string
	previewPath string
	jsonOutput  bool
)

func defaultBaseURL() string {
	if s := os.Getenv("ARSHARE_PUBLIC_BASE_URL"); s != "" {
		return s
	}
	return "http://localhost:5173"
}

func defaultPreviewPath() string {
	if s := os.Getenv("ARSHARE_PREVIEW_PATH"); s != "" {
		return s
	}
	return "/ar-client-preview"
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "arshare <command>",
		Short:         "Producer tooling for AR share links",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&baseURL, "base", defaultBaseURL(), "public base URL of the preview app")
	root.PersistentFlags().StringVar(&previewPath, "path", defaultPreviewPath(), "preview route path")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	root.AddCommand(newCreateCmd())
	root.AddCommand(newURLCmd())
	root.AddCommand(newQRCmd())
	root.AddCommand(newHashTokenCmd())
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
