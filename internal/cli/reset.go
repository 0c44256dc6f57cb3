package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Destroy all indexed content",
		Long: "Deletes every indexed chunk and the recorded embedding model. Run ingest\n" +
			"afterwards to rebuild the index, for example after changing the embedding\n" +
			"model or the chunking geometry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			ctx := cmd.Context()

			idx, err := openIndex(ctx, cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			count, err := idx.Count(ctx)
			if err != nil {
				return err
			}
			if count == 0 {
				color.Yellow("Index is already empty")
				return nil
			}

			if !yes {
				color.Red("This will delete %d indexed chunks from %q.", count, cfg.Database.TableName)
				fmt.Print("Type 'yes' to continue: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return err
				}
				if strings.TrimSpace(line) != "yes" {
					color.Yellow("Aborted")
					return nil
				}
			}

			if err := idx.Reset(ctx); err != nil {
				return err
			}
			color.Green("✓ Index cleared (%d chunks removed)", count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	return cmd
}
