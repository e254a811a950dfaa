/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FSStore implements ObjectStore on the local filesystem.
type FSStore struct {
	root   string
	logger zerolog.Logger
}

// NewFSStore creates a filesystem store rooted at root.
func NewFSStore(root string, logger zerolog.Logger) *FSStore {
	return &FSStore{
		root:   root,
		logger: logger.With().Str("component", "fs_store").Logger(),
	}
}

func (fs *FSStore) path(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.root, filepath.FromSlash(cleaned)), nil
}

// Put writes data under key, replacing any previous object.
func (fs *FSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	full, err := fs.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename file: %w", err)
	}

	fs.logger.Debug().Str("path", full).Int("bytes", len(data)).Msg("object stored")
	return nil
}

// Get reads the object stored under key.
func (fs *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := fs.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete removes the object stored under key. Missing objects are ignored.
func (fs *FSStore) Delete(ctx context.Context, key string) error {
	full, err := fs.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
