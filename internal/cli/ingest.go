package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func IngestCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Load documents from JSON files into the store",
		Long: `Load documents into the store. Each file holds a JSON array of documents
or an object with a "documents" array. Use "-" to read standard input.
Documents with an id already in the store replace the stored copy.

Examples:
  ideasynth ingest papers.json
  cat export.json | ideasynth ingest -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			total := 0
			for _, path := range args {
				var r io.Reader = cmd.InOrStdin()
				if path != "-" {
					f, err := os.Open(path)
					if err != nil {
						return fmt.Errorf("open %s: %w", path, err)
					}
					defer f.Close()
					r = f
				}
				n, err := s.ImportJSON(cmd.Context(), r)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				e.log.Info("documents ingested", zap.String("source", path), zap.Int("count", n))
				total += n
			}
			count, err := s.CountDocuments(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d documents (%d in store)\n", total, count)
			return nil
		},
	}
}
