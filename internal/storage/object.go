/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage keeps exported documents in object storage.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/friendsincode/teamslot/internal/config"
	"github.com/rs/zerolog"
)

// Errors returned by object stores.
var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// New returns an S3 store when a bucket is configured and a filesystem store
// rooted at cfg.ArchiveDir otherwise.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ObjectStore, error) {
	if cfg.S3Bucket != "" {
		if cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "" {
			logger.Warn().Msg("S3 credentials not configured, falling back to the default credential chain")
		}
		return NewS3Store(ctx, S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
	}
	return NewFSStore(cfg.ArchiveDir, logger), nil
}

// cleanKey normalises a slash separated key and rejects keys that would
// escape the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
