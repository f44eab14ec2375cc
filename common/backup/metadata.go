// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package backup snapshots a database's collections to content-hash-verified
// JSON files and restores them from the manifest those snapshots produce.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/advisorhub/advisor-tools/common/db"
)

// MetadataFilename is the manifest written last during a backup. A missing
// manifest unambiguously means "no usable backup".
const MetadataFilename = "backup_metadata.json"

// CollectionMetadata records what was backed up for one collection.
type CollectionMetadata struct {
	DocumentCount int64          `json:"document_count"`
	FilePath      string         `json:"file_path"`
	FileHash      string         `json:"file_hash"`
	BackupTime    time.Time      `json:"backup_time"`
	Indexes       []db.IndexSpec `json:"indexes,omitempty"`
}

// Metadata is the authoritative record of a backup: what was backed up,
// where, and each file's integrity hash.
type Metadata struct {
	Timestamp      time.Time                     `json:"timestamp"`
	SourceDatabase string                        `json:"source_database"`
	Collections    map[string]CollectionMetadata `json:"collections"`
	TotalRecords   int64                         `json:"total_records"`
}

// WriteMetadata writes the manifest into dir.
func WriteMetadata(dir string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding backup metadata: %v", err)
	}
	path := filepath.Join(dir, MetadataFilename)
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("error writing backup metadata %v: %v", path, err)
	}
	return nil
}

// LoadMetadata reads the manifest from dir. The returned error satisfies
// os.IsNotExist when no manifest is present.
func LoadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFilename))
	if err != nil {
		return nil, err
	}
	meta := &Metadata{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("error parsing backup metadata: %v", err)
	}
	return meta, nil
}

// HashFile computes the hex SHA-256 digest of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
