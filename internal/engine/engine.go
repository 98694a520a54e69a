// Package engine prepares the embedded DuckDB instance for ingestion:
// extensions, storage secrets and the DuckLake catalog holding the bronze
// tables.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bronze-ingest/internal/config"
	"bronze-ingest/internal/ddl"
	"bronze-ingest/internal/domain"
	"bronze-ingest/internal/storage"
)

// SecretName is the DuckDB secret holding the storage root credentials.
const SecretName = "bronze_storage"

// InstallExtensions installs and loads DuckDB extensions needed for DuckLake
// and JSON reads. Safe to call without credentials.
func InstallExtensions(ctx context.Context, db domain.SQLConn) error {
	extensions := []string{
		"INSTALL json; LOAD json;",
		"INSTALL ducklake; LOAD ducklake;",
		"INSTALL sqlite; LOAD sqlite;",
		"INSTALL httpfs; LOAD httpfs;",
	}
	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("extension setup (%s): %w", ext, err)
		}
	}
	return nil
}

// InstallAzureExtension installs and loads the azure extension.
func InstallAzureExtension(ctx context.Context, db domain.SQLConn) error {
	if _, err := db.ExecContext(ctx, "INSTALL azure; LOAD azure;"); err != nil {
		return fmt.Errorf("extension setup (azure): %w", err)
	}
	return nil
}

// CreateS3Secret creates a named DuckDB secret for S3-compatible storage.
func CreateS3Secret(ctx context.Context, db domain.SQLConn, name string, opts ddl.S3SecretOptions) error {
	secretSQL, err := ddl.CreateS3Secret(name, opts)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, secretSQL); err != nil {
		return fmt.Errorf("create S3 secret %q: %w", name, err)
	}
	return nil
}

// CreateGCSSecret creates a named DuckDB secret for GCS HMAC access.
func CreateGCSSecret(ctx context.Context, db domain.SQLConn, name, keyID, secret string) error {
	secretSQL, err := ddl.CreateGCSSecret(name, keyID, secret)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, secretSQL); err != nil {
		return fmt.Errorf("create GCS secret %q: %w", name, err)
	}
	return nil
}

// CreateAzureSecret creates a named DuckDB secret for Azure Blob Storage.
func CreateAzureSecret(ctx context.Context, db domain.SQLConn, name, accountName, accountKey, connectionString string) error {
	secretSQL, err := ddl.CreateAzureSecret(name, accountName, accountKey, connectionString)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, secretSQL); err != nil {
		return fmt.Errorf("create Azure secret %q: %w", name, err)
	}
	return nil
}

// DropSecret removes a named DuckDB secret.
func DropSecret(ctx context.Context, db domain.SQLConn, name string) error {
	dropSQL, err := ddl.DropSecret(name)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("drop secret %q: %w", name, err)
	}
	return nil
}

// AttachDuckLake attaches the DuckLake catalog with the given metastore and
// data path, then makes sure the bronze schema exists.
func AttachDuckLake(ctx context.Context, db domain.SQLConn, catalog, schema, metaDBPath, dataPath string) error {
	attachSQL, err := ddl.AttachDuckLake(catalog, metaDBPath, dataPath)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, attachSQL); err != nil {
		return fmt.Errorf("attach ducklake: %w", err)
	}

	schemaSQL, err := ddl.CreateSchemaIfNotExists(catalog, schema)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema %s.%s: %w", catalog, schema, err)
	}
	return nil
}

// IsCatalogAttached checks if the named catalog is attached to DuckDB.
func IsCatalogAttached(ctx context.Context, db domain.SQLConn, catalog string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT count(*) FROM duckdb_databases() WHERE database_name = ?", catalog).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("list attached databases: %w", err)
	}
	return n > 0, nil
}

// CreateStorageSecret creates the secret matching the scheme of cfg.LakeRoot.
// Local roots and roots without configured credentials get no secret.
func CreateStorageSecret(ctx context.Context, db domain.SQLConn, cfg *config.Config) error {
	loc, err := storage.ParseRoot(cfg.LakeRoot)
	if err != nil {
		return err
	}

	switch loc.Scheme {
	case storage.SchemeS3:
		return CreateS3Secret(ctx, db, SecretName, s3SecretOptions(cfg, loc))
	case storage.SchemeGCS:
		if cfg.GCSHMACID == "" {
			return nil
		}
		return CreateGCSSecret(ctx, db, SecretName, cfg.GCSHMACID, cfg.GCSHMACKey)
	case storage.SchemeAzure:
		if err := InstallAzureExtension(ctx, db); err != nil {
			return err
		}
		account := cfg.AzureAccountName
		if account == "" {
			account = loc.Account
		}
		if account == "" && cfg.AzureConnectionString == "" {
			return nil
		}
		return CreateAzureSecret(ctx, db, SecretName, account, cfg.AzureAccountKey, cfg.AzureConnectionString)
	default:
		return nil
	}
}

func s3SecretOptions(cfg *config.Config, loc storage.Location) ddl.S3SecretOptions {
	opts := ddl.S3SecretOptions{
		URLStyle: cfg.S3URLStyle,
		Scope:    "s3://" + loc.Bucket,
	}
	if cfg.S3KeyID != nil {
		opts.KeyID = *cfg.S3KeyID
	}
	if cfg.S3Secret != nil {
		opts.Secret = *cfg.S3Secret
	}
	if cfg.S3Region != nil {
		opts.Region = *cfg.S3Region
	}
	if cfg.S3Endpoint != nil {
		endpoint := *cfg.S3Endpoint
		if strings.HasPrefix(endpoint, "http://") {
			opts.DisableSSL = true
		}
		endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "http://"), "https://")
		opts.Endpoint = endpoint
		if opts.URLStyle == "" {
			opts.URLStyle = "path"
		}
	}
	return opts
}

// Setup installs extensions, creates the storage secret and attaches the
// DuckLake catalog whose files live at dataPath.
func Setup(ctx context.Context, db *sql.DB, cfg *config.Config, dataPath string) error {
	if err := InstallExtensions(ctx, db); err != nil {
		return err
	}
	if err := CreateStorageSecret(ctx, db, cfg); err != nil {
		return err
	}
	attached, err := IsCatalogAttached(ctx, db, cfg.LakeCatalog)
	if err != nil {
		return err
	}
	if attached {
		return nil
	}
	return AttachDuckLake(ctx, db, cfg.LakeCatalog, cfg.BronzeSchema, cfg.MetaDBPath, dataPath)
}
