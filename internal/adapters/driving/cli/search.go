package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

var (
	getPayload bool
	getJSON    bool

	searchFilters []string
	searchText    string
	searchQuery   string
	searchPage    int
	searchSize    int
	searchSort    string
	searchDesc    bool
	searchPayload bool
	searchJSON    bool
)

var getCmd = &cobra.Command{
	Use:   "get [index] [id]",
	Short: "Get a document by id",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

var getByHashCmd = &cobra.Command{
	Use:   "get-by-hash [index] [hash]",
	Short: "Get the first document referencing a content id",
	Args:  cobra.ExactArgs(2),
	RunE:  runGetByHash,
}

var searchCmd = &cobra.Command{
	Use:   "search [index]",
	Short: "Search indexed documents",
	Long: `Searches an index, or every index when none is given.

Filters are given as field:operation:value. Operations are full_text (text),
equals (eq), not_equals (ne), contains (has), in, lt, lte, gt and gte.
Full text filters take a comma separated field list, in filters a comma
separated value list. A JSON query document can be given with --query,
inline or as @file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var countCmd = &cobra.Command{
	Use:   "count [index]",
	Short: "Count matching documents",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCount,
}

var updateFieldCmd = &cobra.Command{
	Use:   "update-field [index] [id] [field] [value]",
	Short: "Set a single field of a document",
	Args:  cobra.ExactArgs(4),
	RunE:  runUpdateField,
}

func init() {
	for _, c := range []*cobra.Command{getCmd, getByHashCmd} {
		c.Flags().BoolVarP(&getPayload, "payload", "p", false, "load the payload")
		c.Flags().BoolVar(&getJSON, "json", false, "output as JSON")
	}

	for _, c := range []*cobra.Command{searchCmd, countCmd} {
		c.Flags().StringArrayVarP(&searchFilters, "filter", "f", nil, "filter as field:operation:value (repeatable)")
		c.Flags().StringVarP(&searchText, "text", "t", "", "full text search over indexed content")
		c.Flags().StringVarP(&searchQuery, "query", "q", "", "JSON query document or @file")
	}
	searchCmd.Flags().IntVar(&searchPage, "page", 0, "page number, from 0")
	searchCmd.Flags().IntVarP(&searchSize, "size", "n", 20, "page size")
	searchCmd.Flags().StringVar(&searchSort, "sort", "", "sort field")
	searchCmd.Flags().BoolVar(&searchDesc, "desc", false, "sort descending")
	searchCmd.Flags().BoolVarP(&searchPayload, "payload", "p", false, "load payloads")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")

	rootCmd.AddCommand(getCmd, getByHashCmd, searchCmd, countCmd, updateFieldCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	doc, err := mahutaService.GetByID(context.Background(), args[0], args[1], getPayload)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	return outputDocument(cmd, doc)
}

func runGetByHash(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	doc, err := mahutaService.GetByHash(context.Background(), args[0], args[1], getPayload)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	return outputDocument(cmd, doc)
}

func outputDocument(cmd *cobra.Command, doc domain.MetadataAndPayload) error {
	if getJSON {
		return printJSON(cmd, toDocumentJSON(doc))
	}
	printDocument(cmd, doc)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	query, err := buildQuery(searchFilters, searchText, searchQuery)
	if err != nil {
		return err
	}
	page := domain.NewPageRequest(searchPage, searchSize)
	if searchSort != "" {
		direction := domain.SortAscending
		if searchDesc {
			direction = domain.SortDescending
		}
		page = page.WithSort(searchSort, direction)
	}

	result, err := mahutaService.Search(context.Background(), indexArg(args), query, page, searchPayload)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		out := pageJSON{
			Page:          result.PageNumber,
			Size:          result.PageSize,
			TotalElements: result.TotalElements,
			TotalPages:    result.TotalPages,
			Elements:      make([]documentJSON, len(result.Elements)),
		}
		for i, doc := range result.Elements {
			out.Elements[i] = toDocumentJSON(doc)
		}
		return printJSON(cmd, out)
	}

	if result.IsEmpty() {
		cmd.Println("No results found.")
		return nil
	}
	for _, doc := range result.Elements {
		printDocument(cmd, doc)
	}
	cmd.Println()
	cmd.Printf("Page %d of %d (%d results)\n", result.PageNumber+1, result.TotalPages, result.TotalElements)
	return nil
}

func runCount(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	query, err := buildQuery(searchFilters, searchText, searchQuery)
	if err != nil {
		return err
	}
	n, err := mahutaService.Count(context.Background(), indexArg(args), query)
	if err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	cmd.Println(n)
	return nil
}

func runUpdateField(cmd *cobra.Command, args []string) error {
	if mahutaService == nil {
		return errServiceNotConfigured
	}

	err := mahutaService.UpdateField(context.Background(), args[0], args[1], args[2], parseValue(args[3]))
	if err != nil {
		return fmt.Errorf("failed to update field: %w", err)
	}
	cmd.Printf("Updated %s on %s/%s\n", args[2], args[0], args[1])
	return nil
}

func indexArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
