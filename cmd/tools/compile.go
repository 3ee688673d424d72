package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal"
	"github.com/lychee-technology/eavsearch/internal/sqlast"
	"github.com/spf13/cobra"
)

type compileOptions struct {
	schemaFile     string
	requestFile    string
	attributesFile string
	dialect        string
	strict         bool
	overflowLength int
}

// compiledSearch is what compile prints.
type compiledSearch struct {
	Page  *eavsearch.QueryBuilderOutput `json:"page"`
	Count *eavsearch.QueryBuilderOutput `json:"count"`
}

func newCompileCmd() *cobra.Command {
	opts := compileOptions{}
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a search request to page and count SQL without a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.schemaFile, "schema-file", "", "path to the schema document (required)")
	flags.StringVar(&opts.requestFile, "request", "-", "path to the search request JSON, - for stdin")
	flags.StringVar(&opts.attributesFile, "attributes-file", "", "attributes file mapping codes to ids; codes missing from it resolve to nothing")
	flags.StringVar(&opts.dialect, "dialect", "postgres", "SQL dialect: postgres or mysql")
	flags.BoolVar(&opts.strict, "strict", false, "fail on attribute codes missing from the attributes file")
	flags.IntVar(&opts.overflowLength, "overflow-length", 255, "longest string kept in the value column")
	return cmd
}

func runCompile(ctx context.Context, opts compileOptions, stdin io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.schemaFile == "" {
		return fmt.Errorf("--schema-file is required")
	}
	data, err := os.ReadFile(opts.schemaFile)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}
	bundle, err := internal.ParseSchemaDocument(data)
	if err != nil {
		return err
	}

	req, err := readSearchRequest(opts.requestFile, stdin)
	if err != nil {
		return err
	}

	resolver := &fileResolver{ids: map[string]int64{}, strict: opts.strict}
	if opts.attributesFile != "" {
		attrs, err := loadAttributesFile(opts.attributesFile)
		if err != nil {
			return err
		}
		for code, entry := range attrs {
			resolver.ids[code] = entry.ID
		}
	}

	dialect, err := sqlast.DialectByName(opts.dialect)
	if err != nil {
		return err
	}
	generator, err := internal.NewQueryGenerator(bundle.Entity, bundle.Joins, resolver, internal.GeneratorOptions{
		Dialect:        dialect,
		OverflowLength: opts.overflowLength,
	})
	if err != nil {
		return err
	}

	page, count, err := generator.CreateSearchQueries(ctx, req)
	if err != nil {
		return err
	}
	return writeIndentedJSON(out, compiledSearch{Page: page, Count: count})
}

func readSearchRequest(path string, stdin io.Reader) (*eavsearch.SearchRequest, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read search request: %w", err)
	}
	req := &eavsearch.SearchRequest{PageNumber: 1, PageSize: 20}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("parse search request: %w", err)
	}
	return req, nil
}

func writeIndentedJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fileResolver resolves attribute codes from an attributes file.
type fileResolver struct {
	ids    map[string]int64
	strict bool
}

func (r *fileResolver) ResolveIDs(_ context.Context, codes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(codes))
	var missing []string
	for _, code := range codes {
		if id, ok := r.ids[code]; ok {
			out[code] = id
		} else {
			missing = append(missing, code)
		}
	}
	if r.strict && len(missing) > 0 {
		return nil, eavsearch.NewAttributeNotFoundError(missing)
	}
	return out, nil
}
