package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/rag"
)

type uploader interface {
	Upload(ctx context.Context, req document.UploadRequest) (*rag.IngestSummary, error)
}

type asker interface {
	Ask(ctx context.Context, req rag.AskRequest) (*rag.Answer, error)
}

type services struct {
	docs  uploader
	asker asker
	close func()
}

type loader func(ctx context.Context) (*services, error)

func newRootCommand(load loader) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:           "docqa",
		Short:         "Ingest documents and ask questions about them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline activity to stderr")
	cmd.AddCommand(newIngestCommand(load))
	cmd.AddCommand(newAskCommand(load))
	return cmd
}

func newIngestCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract, chunk, embed and store PDF, DOCX or TXT files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			return runIngest(cmd.Context(), cmd.OutOrStdout(), svc.docs, args)
		},
	}
}

// runIngest ingests every path and keeps going past failures.
func runIngest(ctx context.Context, out io.Writer, docs uploader, paths []string) error {
	var errs []error
	for _, path := range paths {
		summary, err := ingestFile(ctx, docs, path)
		if err != nil {
			fmt.Fprintf(out, "%s: failed: %v\n", path, err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		switch {
		case summary.DocumentSkipped:
			fmt.Fprintf(out, "%s: already processed (%d chunks)\n", path, summary.Total)
		default:
			fmt.Fprintf(out, "%s: %d chunks, %d stored, %d skipped, %d failed\n",
				path, summary.Total, summary.Stored, summary.Skipped, summary.Failed)
		}
		if summary.Failed > 0 {
			errs = append(errs, fmt.Errorf("%s: %d chunks failed: %w", path, summary.Failed, summary.FirstFailure()))
		}
	}
	return errors.Join(errs...)
}

func ingestFile(ctx context.Context, docs uploader, path string) (*rag.IngestSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return docs.Upload(ctx, document.UploadRequest{
		Filename: filepath.Base(path),
		Size:     info.Size(),
		Data:     f,
	})
}

func newAskCommand(load loader) *cobra.Command {
	var (
		topK   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()
			return runAsk(cmd.Context(), cmd.OutOrStdout(), svc.asker, strings.Join(args, " "), topK, asJSON)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (0 uses RETRIEVAL_TOP_K)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer as JSON")
	return cmd
}

func runAsk(ctx context.Context, out io.Writer, a asker, question string, topK int, asJSON bool) error {
	ans, err := a.Ask(ctx, rag.AskRequest{Question: question, TopK: topK})
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}

	fmt.Fprintln(out, ans.Text)
	if len(ans.Sources) == 0 {
		fmt.Fprintf(out, "\n(%s)\n", rag.NoContextMessage)
		return nil
	}
	fmt.Fprintln(out, "\nSources:")
	for i, s := range ans.Sources {
		fmt.Fprintf(out, "[%d] %s #%d (score: %.3f) %s\n", i+1, s.Filename, s.Ordinal, s.Score, preview(s.Text, 80))
	}
	return nil
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
