// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"filippo.io/age"
	"github.com/zeebo/blake3"

	"github.com/gazelog/gazelog/lib/atomicfile"
)

// ManifestName is the file, inside each collection folder, listing the
// BLAKE3 digest of every collected file in b3sum format.
const ManifestName = "MANIFEST.b3"

// InterruptedFolder holds quarantined sessions under the destination.
const InterruptedFolder = "interrupted"

// MaxParticipantID is the largest ID that fits the P<NN> folder scheme.
const MaxParticipantID = 99

// Config describes where session files come from and where they go.
type Config struct {
	// Source is the folder the session writes into.
	Source string

	// Destination holds the participant folders.
	Destination string

	// Masks are filepath.Match patterns selecting session files in
	// Source.
	Masks []string

	// Paces lists every pace a participant must complete.
	Paces []string

	// Recipients are age X25519 public keys (age1...). Empty means
	// files are moved without encryption.
	Recipients []string

	Logger *slog.Logger
}

// CollectedFile describes one file moved by Collect or Quarantine.
type CollectedFile struct {
	// Name is the base name in the source folder.
	Name string

	// Path is the final location, including a .age suffix when
	// encrypted.
	Path string

	// Size is the plaintext size in bytes.
	Size int64

	// Digest is the hex BLAKE3-256 digest of the plaintext.
	Digest string
}

// Result summarizes a Collect call.
type Result struct {
	// Folder is the collection folder. Empty when nothing was
	// collected.
	Folder string

	Files []CollectedFile

	// Skipped is set when the participant is anonymous or no pace is
	// configured; the files then stay in the source folder.
	Skipped bool
}

// Archive moves session output into participant folders.
type Archive struct {
	source      string
	destination string
	masks       []string
	paces       []string
	recipients  []age.Recipient
	logger      *slog.Logger
}

// New validates the configuration and creates the destination folder.
func New(cfg Config) (*Archive, error) {
	if cfg.Source == "" || cfg.Destination == "" {
		return nil, fmt.Errorf("archive: source and destination are required")
	}
	if len(cfg.Masks) == 0 {
		return nil, fmt.Errorf("archive: at least one file mask is required")
	}

	recipients := make([]age.Recipient, 0, len(cfg.Recipients))
	for _, key := range cfg.Recipients {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("archive: parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	if err := os.MkdirAll(cfg.Destination, 0755); err != nil {
		return nil, fmt.Errorf("archive: creating destination: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	paces := make([]string, len(cfg.Paces))
	for i, pace := range cfg.Paces {
		paces[i] = strings.ToLower(pace)
	}

	return &Archive{
		source:      cfg.Source,
		destination: cfg.Destination,
		masks:       slices.Clone(cfg.Masks),
		paces:       paces,
		recipients:  recipients,
		logger:      logger,
	}, nil
}

// Encrypted reports whether collected files are encrypted.
func (a *Archive) Encrypted() bool {
	return len(a.recipients) > 0
}

// ParticipantFolder returns the folder of one participant.
func (a *Archive) ParticipantFolder(participantID int) string {
	return filepath.Join(a.destination, fmt.Sprintf("P%02d", participantID))
}

// LastParticipantID returns the highest participant ID that has a
// folder, or 0 when there is none.
func (a *Archive) LastParticipantID() (int, error) {
	entries, err := os.ReadDir(a.destination)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("archive: listing participants: %w", err)
	}

	last := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, ok := parseParticipantFolder(entry.Name())
		if ok && id > last {
			last = id
		}
	}
	return last, nil
}

func parseParticipantFolder(name string) (int, bool) {
	if len(name) != 3 || name[0] != 'P' {
		return 0, false
	}
	id, err := strconv.Atoi(name[1:])
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// IsParticipantComplete reports whether the participant has a folder
// for every configured pace. With no paces configured nobody is ever
// complete.
func (a *Archive) IsParticipantComplete(participantID int) bool {
	if len(a.paces) == 0 {
		return false
	}
	base := a.ParticipantFolder(participantID)
	for _, pace := range a.paces {
		info, err := os.Stat(filepath.Join(base, pace))
		if err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// SaveTemporary writes content into the source folder so that the next
// Collect or Quarantine picks it up.
func (a *Archive) SaveTemporary(name string, content []byte) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("archive: invalid file name %q", name)
	}
	if err := os.MkdirAll(a.source, 0755); err != nil {
		return "", fmt.Errorf("archive: creating source folder: %w", err)
	}
	path := filepath.Join(a.source, name)
	if err := atomicfile.Write(path, content, 0644); err != nil {
		return "", fmt.Errorf("archive: %w", err)
	}
	return path, nil
}

// Pending lists the source files matching the masks, sorted by name.
func (a *Archive) Pending() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, mask := range a.masks {
		matches, err := filepath.Glob(filepath.Join(a.source, mask))
		if err != nil {
			return nil, fmt.Errorf("archive: mask %q: %w", mask, err)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			info, err := os.Stat(match)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			seen[match] = true
			files = append(files, match)
		}
	}
	slices.Sort(files)
	return files, nil
}

// Collect moves the pending files of a completed session into
// P<NN>/<pace>/. Anonymous participants (ID 0) and sessions without a
// pace are left in place and reported as skipped.
func (a *Archive) Collect(participantID int, pace string) (Result, error) {
	if participantID <= 0 || pace == "" {
		return Result{Skipped: true}, nil
	}
	if participantID > MaxParticipantID {
		return Result{}, fmt.Errorf("archive: participant ID %d out of range", participantID)
	}

	folder := filepath.Join(a.ParticipantFolder(participantID), strings.ToLower(pace))
	files, err := a.moveAll(folder, len(a.recipients) > 0)
	result := Result{Folder: folder, Files: files}
	if len(files) > 0 {
		if manifestErr := a.appendManifest(folder, files); manifestErr != nil {
			err = errors.Join(err, manifestErr)
		}
	}

	a.logger.Info("session files collected",
		"participant", participantID,
		"pace", pace,
		"folder", folder,
		"files", len(files),
		"encrypted", a.Encrypted(),
	)
	return result, err
}

// Quarantine moves the pending files of an interrupted session to
// interrupted/<sessionID>/ without encryption.
func (a *Archive) Quarantine(sessionID string) (Result, error) {
	if sessionID == "" || filepath.Base(sessionID) != sessionID {
		return Result{}, fmt.Errorf("archive: invalid session ID %q", sessionID)
	}

	folder := filepath.Join(a.destination, InterruptedFolder, sessionID)
	files, err := a.moveAll(folder, false)
	if len(files) > 0 {
		if manifestErr := a.appendManifest(folder, files); manifestErr != nil {
			err = errors.Join(err, manifestErr)
		}
	}

	a.logger.Warn("session files quarantined",
		"session_id", sessionID,
		"folder", folder,
		"files", len(files),
	)
	return Result{Folder: folder, Files: files}, err
}

// moveAll moves every pending file into folder. A failure on one file
// is reported but does not stop the others.
func (a *Archive) moveAll(folder string, encrypt bool) ([]CollectedFile, error) {
	pending, err := a.Pending()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("archive: creating %s: %w", folder, err)
	}

	var errs []error
	files := make([]CollectedFile, 0, len(pending))
	for _, path := range pending {
		file, err := a.moveOne(path, folder, encrypt)
		if err != nil {
			a.logger.Error("moving session file failed", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		files = append(files, file)
	}
	return files, errors.Join(errs...)
}

func (a *Archive) moveOne(path, folder string, encrypt bool) (CollectedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CollectedFile{}, fmt.Errorf("reading %s: %w", path, err)
	}
	digest := blake3.Sum256(data)

	name := filepath.Base(path)
	file := CollectedFile{
		Name:   name,
		Size:   int64(len(data)),
		Digest: fmt.Sprintf("%x", digest),
	}

	if encrypt {
		file.Path = filepath.Join(folder, name+".age")
		ciphertext, err := a.encrypt(data)
		if err != nil {
			return CollectedFile{}, fmt.Errorf("encrypting %s: %w", name, err)
		}
		if err := atomicfile.Write(file.Path, ciphertext, 0600); err != nil {
			return CollectedFile{}, err
		}
		if err := os.Remove(path); err != nil {
			return CollectedFile{}, fmt.Errorf("removing plaintext %s: %w", path, err)
		}
		return file, nil
	}

	file.Path = filepath.Join(folder, name)
	if err := os.Rename(path, file.Path); err != nil {
		// Cross-device moves fall back to write and remove.
		if writeErr := atomicfile.Write(file.Path, data, 0644); writeErr != nil {
			return CollectedFile{}, fmt.Errorf("moving %s: %w", name, errors.Join(err, writeErr))
		}
		if err := os.Remove(path); err != nil {
			return CollectedFile{}, fmt.Errorf("removing %s after copy: %w", path, err)
		}
	}
	return file, nil
}

func (a *Archive) encrypt(plaintext []byte) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, a.recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.Copy(writer, bytes.NewReader(plaintext)); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// appendManifest adds one "<digest>  <name>" line per file to the
// folder's manifest, keeping lines already present.
func (a *Archive) appendManifest(folder string, files []CollectedFile) error {
	path := filepath.Join(folder, ManifestName)
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("archive: reading manifest: %w", err)
	}

	var buffer bytes.Buffer
	buffer.Write(existing)
	for _, file := range files {
		fmt.Fprintf(&buffer, "%s  %s\n", file.Digest, filepath.Base(file.Path))
	}
	if err := atomicfile.Write(path, buffer.Bytes(), 0644); err != nil {
		return fmt.Errorf("archive: writing manifest: %w", err)
	}
	return nil
}

// ReadManifest parses a manifest into a map from file name to digest.
func ReadManifest(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string)
	for line := range strings.Lines(string(data)) {
		line = strings.TrimRight(line, "\n")
		if line == "" {
			continue
		}
		digest, name, ok := strings.Cut(line, "  ")
		if !ok {
			return nil, fmt.Errorf("archive: malformed manifest line %q", line)
		}
		entries[name] = digest
	}
	return entries, nil
}
