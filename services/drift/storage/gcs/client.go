// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs backs up document snapshots to a Google Cloud Storage
// bucket. Backups are plain snapshot bytes under a per-replica prefix;
// restoring is downloading and merging, the same path as any other
// remote state.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type Client struct {
	storageClient *storage.Client
	BucketName    string
	Prefix        string
}

// NewClient creates a GCS backup client. saKeyPath may be empty, in
// which case application default credentials are used.
func NewClient(ctx context.Context, bucketName, prefix, saKeyPath string) (*Client, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		BucketName:    bucketName,
		Prefix:        prefix,
	}, nil
}

// UploadSnapshot writes snapshot bytes for a document to the bucket.
func (c *Client) UploadSnapshot(ctx context.Context, docName string, snapshot []byte) error {
	obj := c.storageClient.Bucket(c.BucketName).Object(c.objectPath(docName))
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := writer.Write(snapshot); err != nil {
		return fmt.Errorf("failed to write snapshot for %s to GCS: %w", docName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", docName, err)
	}
	return nil
}

// DownloadSnapshot fetches the backed-up snapshot for a document. The
// boolean reports whether a backup exists.
func (c *Client) DownloadSnapshot(ctx context.Context, docName string) ([]byte, bool, error) {
	obj := c.storageClient.Bucket(c.BucketName).Object(c.objectPath(docName))
	reader, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to open GCS reader for %s: %w", docName, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot for %s from GCS: %w", docName, err)
	}
	return data, true, nil
}

// ListSnapshots returns the document names with a backup under the
// client's prefix.
func (c *Client) ListSnapshots(ctx context.Context) ([]string, error) {
	prefix := c.Prefix
	if prefix != "" {
		prefix += "/"
	}

	var names []string
	it := c.storageClient.Bucket(c.BucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots in gs://%s/%s: %w", c.BucketName, prefix, err)
		}
		name := path.Base(attrs.Name)
		names = append(names, name[:len(name)-len(path.Ext(name))])
	}
	return names, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.storageClient.Close()
}

func (c *Client) objectPath(docName string) string {
	if c.Prefix == "" {
		return docName + ".drift.json"
	}
	return path.Join(c.Prefix, docName+".drift.json")
}
