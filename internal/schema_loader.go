package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/eavsearch"
	"go.uber.org/zap"
)

// SchemaBundle is the entity schema and join filters defined by one schema
// document.
type SchemaBundle struct {
	Entity *eavsearch.Schema
	Joins  *JoinRegistry
}

// A schema document is
//
//	{
//	  "entity": <JSON Schema with x-table and per-property x- keys>,
//	  "joins": [{"name", "type": "foreign"|"reverse", "localColumn"|"foreignColumn", "schema"}]
//	}
type schemaDocument struct {
	Entity json.RawMessage `json:"entity"`
	Joins  []joinDocument  `json:"joins"`
}

type joinDocument struct {
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	LocalColumn   string          `json:"localColumn"`
	ForeignColumn string          `json:"foreignColumn"`
	Schema        json.RawMessage `json:"schema"`
}

type tableExtensions struct {
	Table      string                        `json:"x-table"`
	Properties map[string]propertyExtensions `json:"properties"`
}

type propertyExtensions struct {
	Column      string `json:"x-column"`
	Primary     bool   `json:"x-primary"`
	EAV         bool   `json:"x-eav"`
	NoInsert    bool   `json:"x-no-insert"`
	ForeignJoin bool   `json:"x-foreign-join"`
}

// LoadSchemaBundle fetches the document at cfg.Location, a file path or
// s3://bucket/key, and parses it.
func LoadSchemaBundle(ctx context.Context, cfg eavsearch.SchemaConfig) (*SchemaBundle, error) {
	data, err := FetchSchemaDocument(ctx, cfg)
	if err != nil {
		return nil, err
	}
	bundle, err := ParseSchemaDocument(data)
	if err != nil {
		return nil, err
	}
	zap.S().Infow("loaded schema document", "location", cfg.Location, "table", bundle.Entity.Table(), "joins", bundle.Joins.Names())
	return bundle, nil
}

// ParseSchemaDocument builds the entity schema and join registry.
func ParseSchemaDocument(data []byte) (*SchemaBundle, error) {
	var doc schemaDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schemaInvalid("failed to parse schema document", err)
	}
	if len(doc.Entity) == 0 {
		return nil, schemaInvalid("schema document has no entity schema", nil)
	}
	entity, err := parsePropertySet(doc.Entity)
	if err != nil {
		return nil, fmt.Errorf("entity schema: %w", err)
	}

	filters := make([]JoinFilter, 0, len(doc.Joins))
	for _, jd := range doc.Joins {
		host, err := parsePropertySet(jd.Schema)
		if err != nil {
			return nil, fmt.Errorf("join %q: %w", jd.Name, err)
		}
		var filter JoinFilter
		switch strings.ToLower(jd.Type) {
		case "", "foreign":
			filter, err = NewForeignJoinFilter(jd.Name, jd.LocalColumn, host)
		case "reverse":
			filter, err = NewReverseJoinFilter(jd.Name, jd.ForeignColumn, host)
		default:
			return nil, schemaInvalid(fmt.Sprintf("join %q has unknown type %q", jd.Name, jd.Type), nil)
		}
		if err != nil {
			return nil, schemaInvalid(fmt.Sprintf("join %q", jd.Name), err)
		}
		filters = append(filters, filter)
	}
	joins, err := NewJoinRegistry(filters...)
	if err != nil {
		return nil, schemaInvalid("invalid joins", err)
	}
	return &SchemaBundle{Entity: entity, Joins: joins}, nil
}

func parsePropertySet(raw json.RawMessage) (*eavsearch.Schema, error) {
	if len(raw) == 0 {
		return nil, schemaInvalid("missing schema", nil)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, schemaInvalid("failed to parse schema", err)
	}
	standard, err := json.Marshal(stripExtensions(generic))
	if err != nil {
		return nil, schemaInvalid("failed to marshal schema", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(standard, &schema); err != nil {
		return nil, schemaInvalid("failed to unmarshal into jsonschema.Schema", err)
	}
	if _, err := schema.Resolve(&jsonschema.ResolveOptions{}); err != nil {
		return nil, schemaInvalid("failed to resolve JSON schema", err)
	}

	var ext tableExtensions
	if err := json.Unmarshal(raw, &ext); err != nil {
		return nil, schemaInvalid("failed to parse schema extensions", err)
	}
	if ext.Table == "" {
		return nil, schemaInvalid("schema has no x-table", nil)
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	props := make([]*eavsearch.Property, 0, len(names))
	for _, name := range names {
		ps := schema.Properties[name]
		x := ext.Properties[name]
		prop := &eavsearch.Property{
			Name:   name,
			Column: x.Column,
			Type:   propertyType(ps),
		}
		if ps != nil {
			prop.Title = ps.Title
			if ps.MaxLength != nil {
				prop.MaxLength = *ps.MaxLength
			}
		}
		if x.Primary {
			prop.Flags |= eavsearch.FlagPrimary
		}
		if required[name] {
			prop.Flags |= eavsearch.FlagRequired
		}
		if x.EAV {
			prop.Flags |= eavsearch.FlagEAV
		}
		if x.NoInsert {
			prop.Flags |= eavsearch.FlagNoInsert
		}
		if x.ForeignJoin {
			prop.Flags |= eavsearch.FlagForeignJoin
		}
		props = append(props, prop)
	}
	return eavsearch.NewSchema(ext.Table, props...)
}

// stripExtensions removes x- keywords so the standard schema resolves cleanly.
func stripExtensions(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if strings.HasPrefix(k, "x-") {
				continue
			}
			out[k] = stripExtensions(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = stripExtensions(item)
		}
		return out
	default:
		return v
	}
}

func propertyType(ps *jsonschema.Schema) eavsearch.PropertyType {
	if ps == nil {
		return eavsearch.PropertyTypeString
	}
	typ := ps.Type
	if typ == "" {
		for _, t := range ps.Types {
			if t != "null" {
				typ = t
				break
			}
		}
	}
	switch typ {
	case "integer":
		return eavsearch.PropertyTypeInteger
	case "number":
		return eavsearch.PropertyTypeNumber
	case "boolean":
		return eavsearch.PropertyTypeBoolean
	case "object":
		return eavsearch.PropertyTypeObject
	case "array":
		return eavsearch.PropertyTypeArray
	}
	switch ps.Format {
	case "date", "date-time":
		return eavsearch.PropertyTypeDate
	}
	return eavsearch.PropertyTypeString
}

func schemaInvalid(message string, cause error) error {
	err := eavsearch.NewSearchError(eavsearch.ErrorTypeInternal, eavsearch.ErrCodeSchemaInvalid, message)
	if cause != nil {
		err = err.WithCause(cause)
		err.Message = message + ": " + cause.Error()
	}
	return err
}

// FetchSchemaDocument reads a schema document from disk or S3.
func FetchSchemaDocument(ctx context.Context, cfg eavsearch.SchemaConfig) ([]byte, error) {
	location := cfg.Location
	if location == "" {
		return nil, eavsearch.NewSchemaNotFoundError("(empty location)")
	}
	if strings.HasPrefix(location, "s3://") {
		return fetchS3Document(ctx, cfg)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eavsearch.NewSchemaNotFoundError(location).WithCause(err)
		}
		return nil, fmt.Errorf("read schema document %s: %w", location, err)
	}
	return data, nil
}

// ParseS3Location splits s3://bucket/key.
func ParseS3Location(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 location must be s3://bucket/key, got %q", location)
	}
	return bucket, key, nil
}

// NewS3Client builds the client schema fetches use. A custom endpoint
// implies path-style addressing, which S3-compatible stores expect.
func NewS3Client(ctx context.Context, cfg eavsearch.SchemaConfig) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	region := cfg.Region
	if region == "" && cfg.Endpoint != "" {
		region = "us-east-1"
	}
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	}), nil
}

func fetchS3Document(ctx context.Context, cfg eavsearch.SchemaConfig) ([]byte, error) {
	location := cfg.Location
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}

	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	downloader := manager.NewDownloader(client)
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NoSuchBucket", "NotFound":
				return nil, eavsearch.NewSchemaNotFoundError(location).WithCause(err)
			}
		}
		return nil, fmt.Errorf("download schema document %s: %w", location, err)
	}
	return buf.Bytes(), nil
}
