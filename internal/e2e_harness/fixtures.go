package e2e_harness

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/eavsearch"
	"github.com/lychee-technology/eavsearch/internal"
)

// SchemaDocument is the schema document describing the seeded catalog.
const SchemaDocument = "../testdata/products_schema.json"

var catalogDDL = []string{
	`CREATE TABLE products (
  id BIGINT PRIMARY KEY,
  sku VARCHAR(64) NOT NULL,
  product_name TEXT,
  price NUMERIC(10,2),
  brand_id BIGINT,
  created_at TIMESTAMP,
  tags TEXT,
  search_vector TEXT
)`,
	`CREATE TABLE brands (id BIGINT PRIMARY KEY, name TEXT, country TEXT)`,
	`CREATE TABLE reviews (id BIGINT PRIMARY KEY, product_id BIGINT, rating INTEGER, author TEXT)`,
	`CREATE TABLE attributes (id BIGINT PRIMARY KEY, code VARCHAR(255) UNIQUE NOT NULL, caption TEXT)`,
	`CREATE TABLE attribute_values (
  entity_id BIGINT NOT NULL,
  attribute_id BIGINT NOT NULL,
  value VARCHAR(255),
  text_value TEXT,
  PRIMARY KEY (entity_id, attribute_id)
)`,
}

var catalogRows = []string{
	`INSERT INTO brands VALUES (1, 'Acme', 'DE'), (2, 'Bolt', 'FR')`,
	`INSERT INTO products (id, sku, product_name, price, brand_id) VALUES
  (1, 'A', 'Anvil', 10.50, 1),
  (2, 'B', 'Bolt cutter', 20, 2),
  (3, 'C', 'Crate', 5, 1),
  (4, 'D', 'Drum', 7, NULL)`,
	`INSERT INTO reviews VALUES (1, 1, 5, 'alice'), (2, 2, 2, 'bob')`,
	`INSERT INTO attributes VALUES (1, 'color', 'Color'), (2, 'weight', 'Weight (kg)'), (3, 'description', 'Description')`,
	`INSERT INTO attribute_values (entity_id, attribute_id, value, text_value) VALUES
  (1, 1, 'red', NULL), (1, 2, '2.5', NULL),
  (2, 1, 'red', NULL), (2, 2, '10', NULL),
  (3, 1, 'blue', NULL), (3, 2, '3', NULL),
  (4, 1, 'red', NULL),
  (3, 3, '', 'solid oak crate')`,
}

// SeedCatalog creates the product catalog tables and inserts four products:
//
//	1 A red 2.5kg  brand DE  review 5
//	2 B red 10kg   brand FR  review 2
//	3 C blue 3kg   brand DE  long description
//	4 D red        no brand
func SeedCatalog(ctx context.Context, db *sql.DB) error {
	for _, stmt := range append(append([]string(nil), catalogDDL...), catalogRows...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}
	return nil
}

// UploadSchemaDocument stores document at s3://bucket/key, creating the bucket
// when needed. cfg carries the endpoint and credentials.
func UploadSchemaDocument(ctx context.Context, cfg eavsearch.SchemaConfig, bucket, key string, document []byte) error {
	client, err := internal.NewS3Client(ctx, cfg)
	if err != nil {
		return err
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		if _, cerr := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); cerr != nil {
			var apiErr smithy.APIError
			if !errors.As(cerr, &apiErr) ||
				(apiErr.ErrorCode() != "BucketAlreadyOwnedByYou" && apiErr.ErrorCode() != "BucketAlreadyExists") {
				return fmt.Errorf("create bucket: %w", cerr)
			}
		}
	}
	uploader := manager.NewUploader(client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(document),
	}); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	return nil
}
