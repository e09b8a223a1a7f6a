// Package lockfile exports an environment's package state to a signed JSON
// lock file and recreates environments from one.
package lockfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

var (
	// ErrInvalid means the lock file could not be read or is not valid JSON
	ErrInvalid = errors.New("invalid lock file")
	// ErrNoPackages means the lock file lists nothing to install
	ErrNoPackages = errors.New("lock file contains no packages to install")
	// ErrSignatureMismatch means the details do not hash to the stored signature
	ErrSignatureMismatch = errors.New("lock file signature mismatch")
)

// Metadata describes where and when a lock file was produced
type Metadata struct {
	SourceHost      string `json:"source_host"`
	Platform        string `json:"platform"`
	Architecture    string `json:"architecture"`
	PythonVersion   string `json:"python_version"`
	ExportTimestamp string `json:"export_timestamp"`
}

// Details is the signed part of a lock file
type Details struct {
	Metadata Metadata          `json:"metadata"`
	Packages map[string]string `json:"packages"`
}

// File is a complete lock file
type File struct {
	Signature   string  `json:"signature"`
	Environment Details `json:"environment"`

	// raw holds the environment object as read, so verification covers
	// fields this version does not model
	raw any
}

// asObject returns the details as the generic object that gets signed
func (d Details) asObject() map[string]any {
	packages := d.Packages
	if packages == nil {
		packages = map[string]string{}
	}
	return map[string]any{
		"metadata": map[string]string{
			"source_host":      d.Metadata.SourceHost,
			"platform":         d.Metadata.Platform,
			"architecture":     d.Metadata.Architecture,
			"python_version":   d.Metadata.PythonVersion,
			"export_timestamp": d.Metadata.ExportTimestamp,
		},
		"packages": packages,
	}
}

func digest(v any) (string, error) {
	data, err := canonicalJSON(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize environment details: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Sign returns the hex SHA-256 of the details in canonical form
func Sign(d Details) (string, error) {
	return digest(d.asObject())
}

// New builds a signed lock file from details
func New(d Details) (*File, error) {
	sig, err := Sign(d)
	if err != nil {
		return nil, err
	}
	return &File{Signature: sig, Environment: d}, nil
}

// Verify recomputes the signature and returns ErrSignatureMismatch when it
// differs from the stored one
func Verify(f *File) error {
	var (
		got string
		err error
	)
	if f.raw != nil {
		got, err = digest(f.raw)
	} else {
		got, err = Sign(f.Environment)
	}
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, f.Signature) {
		return fmt.Errorf("%w: stored %q, computed %q", ErrSignatureMismatch, f.Signature, got)
	}
	return nil
}

// Read loads and validates a lock file. A file without packages is
// rejected with ErrNoPackages.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalid, path, err)
	}
	return Decode(data, path)
}

// Decode parses lock file content; name is only used in error messages
func Decode(data []byte, name string) (*File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalid, name, err)
	}

	var envelope struct {
		Environment json.RawMessage `json:"environment"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Environment) > 0 {
		dec := json.NewDecoder(bytes.NewReader(envelope.Environment))
		dec.UseNumber()
		var raw any
		if err := dec.Decode(&raw); err == nil {
			f.raw = raw
		}
	}

	if len(f.Environment.Packages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPackages, name)
	}
	return &f, nil
}

// Write stores f as indented JSON
func Write(f *File, path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode lock file: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write to %s: %w", path, err)
	}
	return nil
}

// Requirements returns the pinned packages as sorted `name==version` lines
func (f *File) Requirements() []string {
	lines := make([]string, 0, len(f.Environment.Packages))
	for name, version := range f.Environment.Packages {
		lines = append(lines, name+"=="+version)
	}
	sort.Strings(lines)
	return lines
}
