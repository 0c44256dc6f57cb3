package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/campus-genai/campusrag/pkg/chunker"
	"github.com/campus-genai/campusrag/pkg/ingest"
	"github.com/campus-genai/campusrag/pkg/rbac"
	"github.com/campus-genai/campusrag/pkg/rolemap"
)

func newIngestCmd() *cobra.Command {
	var dir, rolemapPath string
	var resetFirst bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index role-tagged documents into the vector store",
		Long: "Reads every document listed in the role map from the documents directory,\n" +
			"chunks and embeds it and writes the chunks to the vector index. Documents\n" +
			"absent from the role map are skipped, never indexed without roles.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			if dir == "" {
				dir = cfg.Ingest.DocsDir
			}
			if rolemapPath == "" {
				rolemapPath = cfg.Ingest.RoleMapPath
			}
			ctx := cmd.Context()

			roles, err := rolemap.Load(rolemapPath)
			if err != nil {
				return err
			}
			color.Blue("Role map: %d documents listed", roles.Len())

			idx, err := openIndex(ctx, cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			if resetFirst {
				if err := idx.Reset(ctx); err != nil {
					return err
				}
				color.Yellow("Index cleared")
			}

			embedder, err := newEmbedder(cfg)
			if err != nil {
				return err
			}

			ch, err := chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
			if err != nil {
				return err
			}

			pipeline := ingest.New(idx, embedder, roles, ch, ingest.Config{
				BatchSize: cfg.Embedding.BatchSize,
				Rate:      cfg.Embedding.RateLimit,
			}, log)

			bar := getProgressBar(countAdmitted(dir, roles), "Indexing documents...")
			pipeline.Progress = func(source string) {
				bar.Describe(color.BlueString("Indexing %s", source))
				bar.Add(1)
			}

			report, err := pipeline.Run(ctx, dir)
			bar.Finish()
			fmt.Println()
			if err != nil {
				return err
			}

			color.Green("✓ Indexed %d documents into %d chunks", len(report.Processed), report.ChunksWritten)
			for _, source := range report.Skipped {
				color.Yellow("  skipped %s", source)
			}
			for _, failure := range report.Failures {
				color.Red("  failed %s: %s", failure.Source, failure.Reason)
			}

			if len(report.ByRole) > 0 {
				color.Cyan("\nIndexed chunks by role:")
				for _, role := range rbac.Roles() {
					if n, ok := report.ByRole[role]; ok {
						fmt.Printf("  %-10s %d\n", role, n)
					}
				}
			}

			if len(report.Failures) > 0 {
				return fmt.Errorf("%d documents failed", len(report.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Documents directory (default from config)")
	cmd.Flags().StringVar(&rolemapPath, "rolemap", "", "Role map YAML file (default from config)")
	cmd.Flags().BoolVar(&resetFirst, "reset-first", false, "Wipe the index before ingesting")
	return cmd
}

// countAdmitted sizes the progress bar; the pipeline re-walks the
// directory itself.
func countAdmitted(dir string, roles *rolemap.Map) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return -1
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := roles.Lookup(entry.Name()); ok {
			n++
		}
	}
	return n
}
