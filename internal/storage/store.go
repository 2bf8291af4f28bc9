package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound indicates no record exists for the identity.
var ErrNotFound = errors.New("record not found")

const (
	tokensDir      = "tokens"
	credentialsDir = "credentials"
)

// CredentialRecord is the persisted session token enabling reconnection
// without repeating the linking flow.
type CredentialRecord struct {
	Identity  string    `json:"identity"`
	SessionID string    `json:"sessionId"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"timestamp"`
}

// MetadataRecord is the write-once connection audit record.
type MetadataRecord struct {
	Identity      string    `json:"identity"`
	SessionID     string    `json:"sessionId"`
	ConnectedAt   time.Time `json:"connectedAt"`
	ServerContext string    `json:"serverContext"`
}

// Store is a durable key-value layer mapping an identity to a credential
// record and a connection metadata record, each in its own namespace. Every
// write replaces the whole record via a temp file and an atomic rename, so
// concurrent readers see either the old or the new record, never a torn one.
type Store struct {
	baseDir string
}

// New creates the store rooted at baseDir, creating both namespaces.
func New(baseDir string) (*Store, error) {
	for _, ns := range []string{tokensDir, credentialsDir} {
		if err := os.MkdirAll(filepath.Join(baseDir, ns), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", ns, err)
		}
	}
	return &Store{baseDir: baseDir}, nil
}

// PutCredential overwrites the identity's credential record.
func (s *Store) PutCredential(identity string, rec CredentialRecord) error {
	return s.write(tokensDir, identity, rec)
}

// GetCredential reads the identity's credential record.
func (s *Store) GetCredential(identity string) (CredentialRecord, error) {
	var rec CredentialRecord
	err := s.read(tokensDir, identity, &rec)
	return rec, err
}

// DeleteCredential removes the identity's credential record. Deleting an
// absent record is not an error.
func (s *Store) DeleteCredential(identity string) error {
	return s.delete(tokensDir, identity)
}

// PutMetadata overwrites the identity's connection metadata record.
func (s *Store) PutMetadata(identity string, rec MetadataRecord) error {
	return s.write(credentialsDir, identity, rec)
}

// GetMetadata reads the identity's connection metadata record.
func (s *Store) GetMetadata(identity string) (MetadataRecord, error) {
	var rec MetadataRecord
	err := s.read(credentialsDir, identity, &rec)
	return rec, err
}

// DeleteMetadata removes the identity's connection metadata record.
func (s *Store) DeleteMetadata(identity string) error {
	return s.delete(credentialsDir, identity)
}

func (s *Store) path(ns, identity string) string {
	return filepath.Join(s.baseDir, ns, identity+".json")
}

func (s *Store) write(ns, identity string, rec any) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	dir := filepath.Join(s.baseDir, ns)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(ns, identity)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

func (s *Store) read(ns, identity string, rec any) error {
	data, err := os.ReadFile(s.path(ns, identity))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read record: %w", err)
	}

	if err := json.Unmarshal(data, rec); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

func (s *Store) delete(ns, identity string) error {
	err := os.Remove(s.path(ns, identity))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}
