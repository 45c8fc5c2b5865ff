package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

type askOptions struct {
	apiURL      string
	sessionID   string
	documentIDs []string
	topK        int
	structure   string
	xlsxPath    string
	rawJSON     bool
	timeout     time.Duration
}

func newAskCommand() *cobra.Command {
	opts := askOptions{}
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the API a question and render the structured answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.QueryRequest{
				Text: strings.Join(args, " "),
				Scope: domain.Scope{
					SessionID:   opts.sessionID,
					DocumentIDs: opts.documentIDs,
				},
				TopK:      opts.topK,
				Structure: opts.structure,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			client := &apiClient{baseURL: strings.TrimRight(opts.apiURL, "/"), http: http.DefaultClient}
			result, err := client.query(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.rawJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			if err := renderResult(out, result); err != nil {
				return err
			}
			if opts.xlsxPath != "" {
				if err := exportXLSX(opts.xlsxPath, result); err != nil {
					return err
				}
				fmt.Fprintf(out, "\nexported %s\n", opts.xlsxPath)
			}
			return nil
		},
	}

	defaultURL := os.Getenv("CVRAG_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	cmd.Flags().StringVar(&opts.apiURL, "api", defaultURL, "API base URL (env CVRAG_API_URL)")
	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "session whose résumés are searched")
	cmd.Flags().StringSliceVarP(&opts.documentIDs, "doc", "d", nil, "restrict to these document ids")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "evidence chunks to use (server default when 0)")
	cmd.Flags().StringVar(&opts.structure, "structure", "", "force an output structure, e.g. risk_view")
	cmd.Flags().StringVar(&opts.xlsxPath, "xlsx", "", "also export structured modules to this .xlsx file")
	cmd.Flags().BoolVar(&opts.rawJSON, "json", false, "print the raw API response")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "request timeout")
	return cmd
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func (c *apiClient) query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call api: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("api returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("api returned %d", resp.StatusCode)
	}

	var result domain.QueryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}
