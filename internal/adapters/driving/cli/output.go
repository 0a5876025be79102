package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// documentJSON is the JSON rendering of a document.
type documentJSON struct {
	Index       string         `json:"index"`
	ID          string         `json:"id"`
	Hash        string         `json:"hash"`
	ContentType string         `json:"content_type,omitempty"`
	Pinned      bool           `json:"pinned"`
	Fields      map[string]any `json:"fields,omitempty"`
	Payload     string         `json:"payload,omitempty"`
}

type pageJSON struct {
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	TotalElements int64          `json:"total_elements"`
	TotalPages    int            `json:"total_pages"`
	Elements      []documentJSON `json:"elements"`
}

func toDocumentJSON(doc domain.MetadataAndPayload) documentJSON {
	out := documentJSON{
		Index:       doc.IndexName,
		ID:          doc.DocumentID,
		Hash:        doc.ContentID,
		ContentType: doc.ContentType,
		Pinned:      doc.Pinned,
		Fields:      doc.Fields.Native(),
	}
	if doc.HasPayload() {
		out.Payload = string(doc.Payload)
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// decodeJSON reads a JSON document given inline or as @file.
func decodeJSON(s string, v any) error {
	data := []byte(s)
	if path, ok := strings.CutPrefix(s, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return err
		}
	}
	return json.Unmarshal(data, v)
}

func printDocument(cmd *cobra.Command, doc domain.MetadataAndPayload) {
	pinned := "pending"
	if doc.Pinned {
		pinned = "pinned"
	}
	cmd.Printf("%s/%s  %s  (%s)\n", doc.IndexName, doc.DocumentID, doc.ContentID, pinned)
	if doc.ContentType != "" {
		cmd.Printf("  content-type: %s\n", doc.ContentType)
	}
	for _, name := range doc.Fields.Names() {
		cmd.Printf("  %s: %s\n", name, doc.Fields[name])
	}
	if doc.HasPayload() {
		cmd.Println()
		cmd.Println(string(doc.Payload))
	}
}
