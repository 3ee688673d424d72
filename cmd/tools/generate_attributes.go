package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// attributeEntry is one row of the attribute definition table as kept in an
// attributes file.
type attributeEntry struct {
	ID        int64  `json:"attributeID"`
	ValueType string `json:"valueType"`
	Caption   string `json:"caption,omitempty"`
}

func newGenerateAttributesCmd() *cobra.Command {
	var schemaFile, outputFile string
	cmd := &cobra.Command{
		Use:   "generate-attributes",
		Short: "Generate <schema>_attributes.json from the attribute properties of a schema document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if schemaFile == "" {
				return fmt.Errorf("--schema-file is required")
			}
			if outputFile == "" {
				base := strings.TrimSuffix(filepath.Base(schemaFile), filepath.Ext(schemaFile))
				outputFile = filepath.Join(filepath.Dir(schemaFile), base+"_attributes.json")
			}
			added, err := generateAttributesFile(schemaFile, outputFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated attributes, new: %d, output: %s\n", added, outputFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaFile, "schema-file", "", "path to the schema document (required)")
	cmd.Flags().StringVar(&outputFile, "out", "", "path to write the attributes file (defaults next to the schema document)")
	return cmd
}

// generateAttributesFile merges the attribute properties of the schema
// document into the attributes file at outputPath. Existing ids are kept,
// including those of codes no longer in the schema; new codes get ids after
// the current maximum in lexical order.
func generateAttributesFile(schemaPath, outputPath string) (int, error) {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return 0, fmt.Errorf("read schema file: %w", err)
	}
	bundle, err := internal.ParseSchemaDocument(data)
	if err != nil {
		return 0, err
	}

	existing, err := loadAttributesFile(outputPath)
	if err != nil {
		return 0, err
	}

	var maxID int64
	for _, entry := range existing {
		if entry.ID > maxID {
			maxID = entry.ID
		}
	}

	var added []string
	for _, prop := range bundle.Entity.PropertiesByFlag(eavsearch.FlagEAV) {
		if entry, ok := existing[prop.Name]; ok {
			entry.ValueType = valueType(prop.Type)
			if prop.Title != "" {
				entry.Caption = prop.Title
			}
			existing[prop.Name] = entry
			continue
		}
		added = append(added, prop.Name)
	}
	sort.Strings(added)
	for i, code := range added {
		prop, _ := bundle.Entity.Property(code)
		existing[code] = attributeEntry{
			ID:        maxID + int64(i) + 1,
			ValueType: valueType(prop.Type),
			Caption:   captionOf(prop),
		}
	}

	if err := writeAttributesFile(outputPath, existing); err != nil {
		return 0, err
	}
	zap.S().Infow("generated attributes", "total", len(existing), "new", len(added), "maxID", maxID+int64(len(added)))
	return len(added), nil
}

// loadAttributesFile reads an attributes file; a missing file is empty.
func loadAttributesFile(path string) (map[string]attributeEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]attributeEntry), nil
		}
		return nil, fmt.Errorf("read attributes file: %w", err)
	}
	attrs := make(map[string]attributeEntry)
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("parse attributes file: %w", err)
	}
	return attrs, nil
}

// writeAttributesFile writes entries with sorted keys, one code per block.
func writeAttributesFile(path string, attrs map[string]attributeEntry) error {
	encoded, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("write attributes file: %w", err)
	}
	return nil
}

func valueType(t eavsearch.PropertyType) string {
	switch t {
	case eavsearch.PropertyTypeInteger, eavsearch.PropertyTypeNumber:
		return "numeric"
	case eavsearch.PropertyTypeBoolean:
		return "bool"
	case eavsearch.PropertyTypeDate:
		return "date"
	default:
		return "text"
	}
}

func captionOf(prop *eavsearch.Property) string {
	if prop.Title != "" {
		return prop.Title
	}
	return prop.Name
}
