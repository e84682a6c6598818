package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/finsight/finsight/internal/api"
	"github.com/finsight/finsight/internal/extract"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index a document into the knowledge base",
	Long: `Index a document into the knowledge base.

Examples:
  finsight ingest --text "Revenue grew 12% year over year"
  finsight ingest --file ./report.pdf
  finsight ingest --file ./notes.md --async`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		async, _ := cmd.Flags().GetBool("async")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		req := api.DocumentRequest{Content: text}
		if file != "" {
			doc, err := extract.File(file)
			if err != nil {
				return err
			}
			req.Content = doc.Text
			req.Metadata = doc.Metadata
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/documents"
		if async {
			path = "/documents/async"
		}
		resp, err := client.post(cmd.Context(), path, req)
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if async {
			printSuccess("Queued ingestion task %v", result["task_id"])
			printStatus("Poll with", "finsight task %v", result["task_id"])
		} else {
			printSuccess("Indexed %v chunks", result["chunks_added"])
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "text content to index")
	ingestCmd.Flags().String("file", "", "file to extract and index (pdf, html, txt, md)")
	ingestCmd.Flags().Bool("async", false, "run ingestion in the background")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := args[0]
		topK, _ := cmd.Flags().GetInt("top-k")
		showSources, _ := cmd.Flags().GetBool("sources")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/questions", api.QuestionRequest{
			Question: question,
			TopK:     topK,
		})
		if err != nil {
			return err
		}

		var result api.QuestionResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)
		printStatus("Confidence", "%.2f", result.Confidence)
		if showSources {
			for _, s := range result.Sources {
				printStatus(s.ChunkID, "%.2f  %s", s.Similarity, s.DocumentID)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Int("top-k", 0, "number of chunks to retrieve (0 = server default)")
	askCmd.Flags().Bool("sources", false, "list the source chunks with similarities")
}

// --- stats / clear ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/stats")
		if err != nil {
			return err
		}

		var stats struct {
			TotalChunks    int `json:"total_chunks"`
			Dimensionality int `json:"dimensionality"`
		}
		if err := decodeJSON(resp, &stats); err != nil {
			return err
		}

		printStatus("Chunks", "%d", stats.TotalChunks)
		printStatus("Dimensionality", "%d", stats.Dimensionality)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all indexed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the entire knowledge base. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/knowledge-base")
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Knowledge base cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm deletion")
}

// --- save / load ---

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Persist the knowledge base to disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		return persistAction(cmd.Context(), "/knowledge-base/save")
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Restore the knowledge base from disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		return persistAction(cmd.Context(), "/knowledge-base/load")
	},
}

func persistAction(ctx context.Context, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.post(ctx, path, nil)
	if err != nil {
		return err
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	printSuccess("%s: %s", result["status"], result["path"])
	return nil
}

// --- task ---

var taskCmd = &cobra.Command{
	Use:   "task <id>",
	Short: "Show the status of a background task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cancel, _ := cmd.Flags().GetBool("cancel")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if cancel {
			resp, err := client.delete(cmd.Context(), "/tasks/"+args[0])
			if err != nil {
				return err
			}
			var result map[string]string
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Cancellation requested for task %s", args[0])
			return nil
		}

		resp, err := client.get(cmd.Context(), "/tasks/"+args[0])
		if err != nil {
			return err
		}

		var snap any
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	taskCmd.Flags().Bool("cancel", false, "request cooperative cancellation")
}
