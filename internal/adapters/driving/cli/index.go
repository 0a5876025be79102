package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

var errServiceNotConfigured = errors.New("mahuta service not configured")

var (
	createIndexMapping string

	indexDocumentID  string
	indexContentType string
	indexText        string
	indexCID         string
	indexFields      []string
	indexContent     bool
	indexJSON        bool
)

var createIndexCmd = &cobra.Command{
	Use:   "create-index [name]",
	Short: "Create an index",
	Long: `Creates an index if it does not exist. An optional mapping file is
passed to the index backend as its schema.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateIndex,
}

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List indexes",
	Args:  cobra.NoArgs,
	RunE:  runIndexes,
}

var indexCmd = &cobra.Command{
	Use:   "index [index] [file]",
	Short: "Store, pin and index content",
	Long: `Stores content in the content-addressed store, pins it and indexes its
metadata. Content is read from a file, given with --text, or referenced by
an existing content id with --cid.

Fields are given as key=value pairs. Values are typed: null, true, false,
numbers and dates (2024-01-31 or RFC 3339) are recognised; wrap a value in
double quotes to keep it a string.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runIndex,
}

var deindexCmd = &cobra.Command{
	Use:   "deindex [index] [id]",
	Short: "Remove a document from an index",
	Long:  `Removes a document from an index. Its content stays pinned; use unpin to release it.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runDeindex,
}

func init() {
	createIndexCmd.Flags().StringVar(&createIndexMapping, "mapping", "", "mapping file")

	indexCmd.Flags().StringVar(&indexDocumentID, "id", "", "document id (generated when empty)")
	indexCmd.Flags().StringVar(&indexContentType, "content-type", "", "content type (detected when empty)")
	indexCmd.Flags().StringVar(&indexText, "text", "", "index this text instead of a file")
	indexCmd.Flags().StringVar(&indexCID, "cid", "", "index existing content by id")
	indexCmd.Flags().StringArrayVarP(&indexFields, "field", "f", nil, "field as key=value (repeatable)")
	indexCmd.Flags().BoolVar(&indexContent, "index-content", false, "copy the payload into the index")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(createIndexCmd, indexesCmd, indexCmd, deindexCmd)
}

func runCreateIndex(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	var mapping []byte
	if createIndexMapping != "" {
		data, err := os.ReadFile(createIndexMapping)
		if err != nil {
			return fmt.Errorf("failed to read mapping: %w", err)
		}
		mapping = data
	}

	if err := mahutaService.CreateIndex(context.Background(), args[0], mapping); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	cmd.Printf("Index %s ready\n", domain.NormalizeIndexName(args[0]))
	return nil
}

func runIndexes(cmd *cobra.Command, _ []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	names, err := mahutaService.Indexes(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}
	if len(names) == 0 {
		cmd.Println("No indexes.")
		return nil
	}
	for _, name := range names {
		cmd.Println(name)
	}
	return nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	fields, err := parseFields(indexFields)
	if err != nil {
		return err
	}
	source, closeSource, err := indexSource(args[1:])
	if err != nil {
		return err
	}
	defer closeSource()

	meta, err := mahutaService.Index(context.Background(), domain.IndexingRequest{
		IndexName:    args[0],
		DocumentID:   indexDocumentID,
		ContentType:  indexContentType,
		Fields:       fields,
		IndexContent: indexContent,
		Source:       source,
	})
	if err != nil {
		return fmt.Errorf("failed to index: %w", err)
	}

	if indexJSON {
		return printJSON(cmd, toDocumentJSON(domain.MetadataAndPayload{Metadata: meta}))
	}
	cmd.Printf("Indexed %s/%s\n", meta.IndexName, meta.DocumentID)
	cmd.Printf("  hash: %s\n", meta.ContentID)
	if !meta.Pinned {
		cmd.Println("  pinning pending")
	}
	return nil
}

// indexSource picks exactly one of a file argument, --text or --cid.
func indexSource(files []string) (domain.Source, func(), error) {
	set := len(files)
	if indexText != "" {
		set++
	}
	if indexCID != "" {
		set++
	}
	if set != 1 {
		return domain.Source{}, nil, fmt.Errorf("%w: give exactly one of a file, --text or --cid", domain.ErrInvalidArgument)
	}

	switch {
	case indexText != "":
		return domain.TextSource(indexText), func() {}, nil
	case indexCID != "":
		return domain.CIDSource(indexCID), func() {}, nil
	}
	f, err := os.Open(files[0])
	if err != nil {
		return domain.Source{}, nil, fmt.Errorf("failed to open %s: %w", files[0], err)
	}
	return domain.StreamSource(f), func() { _ = f.Close() }, nil
}

func runDeindex(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	if err := mahutaService.Deindex(context.Background(), args[0], args[1]); err != nil {
		return fmt.Errorf("failed to deindex: %w", err)
	}
	cmd.Printf("Removed %s/%s\n", args[0], args[1])
	return nil
}
