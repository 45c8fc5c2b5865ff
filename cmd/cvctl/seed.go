package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/candidate-rag/internal/bootstrap"
	"github.com/kirillkom/candidate-rag/internal/config"
	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/candidate-rag/internal/observability/logging"
)

type seedOptions struct {
	sessionID    string
	candidate    string
	chunkSize    int
	chunkOverlap int
}

func newSeedCommand() *cobra.Command {
	opts := seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed <file>...",
		Short: "Load résumé fixtures into the configured indexes",
		Long: `Loads pre-chunked JSONL fixtures (one chunk object per line) or plain-text
résumés (.txt, .md) into Qdrant and, when LEXICAL_BACKEND=sqlite, the SQLite FTS index.
Plain-text résumés are split by section headers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			splitter := chunking.NewSplitter(opts.chunkSize, opts.chunkOverlap)
			var chunks []domain.Chunk
			for _, path := range args {
				loaded, err := readFixture(path, opts.candidate, splitter)
				if err != nil {
					return err
				}
				chunks = append(chunks, loaded...)
			}

			cfg := config.Load()
			logger := logging.New(cmd.ErrOrStderr(), "cvctl", logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			loader, closeFn, err := bootstrap.NewLoader(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := loader.Load(cmd.Context(), domain.Scope{SessionID: opts.sessionID}, chunks)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d chunks from %d files\n", n, len(args))
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "session id stamped on every chunk")
	cmd.Flags().StringVar(&opts.candidate, "candidate", "", "candidate name for plain-text résumés (default: file name)")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 900, "rune window for plain-text résumés")
	cmd.Flags().IntVar(&opts.chunkOverlap, "chunk-overlap", 100, "window overlap for plain-text résumés")
	return cmd
}

func readFixture(path, candidate string, splitter *chunking.Splitter) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return decodeJSONL(f, path)
	case ".txt", ".md":
		raw, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if candidate == "" {
			candidate = strings.ReplaceAll(base, "_", " ")
		}
		return splitter.SplitResume(base, string(raw), map[string]any{
			domain.MetaCandidateName: candidate,
		})
	default:
		return nil, fmt.Errorf("unsupported fixture %s: want .jsonl, .txt or .md", path)
	}
}

func decodeJSONL(r io.Reader, name string) ([]domain.Chunk, error) {
	var out []domain.Chunk
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c domain.Chunk
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		if c.ID == "" || c.DocumentID == "" {
			return nil, fmt.Errorf("%s:%d: id and document_id are required", name, line)
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return out, nil
}
