package task

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	swarmerrors "github.com/codexswarm/agentctl/internal/errors"
	"github.com/codexswarm/agentctl/internal/util"
)

// SnapshotMeta is the integrity header of the tasks.json snapshot.
type SnapshotMeta struct {
	SchemaVersion int    `json:"schema_version"`
	ManagedBy     string `json:"managed_by"`
	ChecksumAlgo  string `json:"checksum_algo"`
	Checksum      string `json:"checksum"`
}

const (
	// SnapshotSchemaVersion is the supported tasks.json schema.
	SnapshotSchemaVersion = 1
	// SnapshotManagedBy marks the file as tool-owned.
	SnapshotManagedBy = "agentctl"
	// SnapshotChecksumAlgo is the only supported checksum algorithm.
	SnapshotChecksumAlgo = "sha256"
)

// Snapshot is a parsed tasks.json file.
type Snapshot struct {
	Tasks []*Task
	Meta  SnapshotMeta
}

// Checksum computes the canonical checksum over the sorted task list: the
// sha256 of the canonical JSON of {"tasks": [...]}.
func Checksum(tasks []*Task) (string, error) {
	sorted := append([]*Task(nil), tasks...)
	SortByID(sorted)
	maps := make([]map[string]any, 0, len(sorted))
	for _, t := range sorted {
		maps = append(maps, t.ToMap())
	}
	canonical, err := util.CanonicalJSON(map[string]any{"tasks": maps})
	if err != nil {
		return "", fmt.Errorf("canonicalize tasks: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// WriteSnapshot writes the checksummed tasks.json snapshot atomically.
func WriteSnapshot(path string, tasks []*Task) error {
	sorted := append([]*Task(nil), tasks...)
	SortByID(sorted)
	checksum, err := Checksum(sorted)
	if err != nil {
		return err
	}
	maps := make([]map[string]any, 0, len(sorted))
	for _, t := range sorted {
		maps = append(maps, t.ToMap())
	}
	payload := map[string]any{
		"tasks": maps,
		"meta": SnapshotMeta{
			SchemaVersion: SnapshotSchemaVersion,
			ManagedBy:     SnapshotManagedBy,
			ChecksumAlgo:  SnapshotChecksumAlgo,
			Checksum:      checksum,
		},
	}
	if err := util.AtomicWriteJSON(path, payload, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot parses a tasks.json file. It does not verify the checksum;
// callers that need integrity call VerifySnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var payload struct {
		Tasks []map[string]any `json:"tasks"`
		Meta  SnapshotMeta     `json:"meta"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, swarmerrors.Wrap(swarmerrors.CodeIntegrityChecksum, "invalid tasks.json: "+path, err)
	}
	snap := &Snapshot{Meta: payload.Meta}
	for _, m := range payload.Tasks {
		t, err := FromMap(m)
		if err != nil {
			return nil, err
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	return snap, nil
}

// VerifySnapshot checks the meta header and the checksum against the task
// payload.
func (s *Snapshot) Verify(path string) error {
	if s.Meta.ManagedBy != SnapshotManagedBy {
		return swarmerrors.Newf(swarmerrors.CodeIntegrityChecksum, "tasks.json meta.managed_by must be %q", SnapshotManagedBy).
			WithContext("path=" + path)
	}
	if s.Meta.ChecksumAlgo != SnapshotChecksumAlgo {
		return swarmerrors.Newf(swarmerrors.CodeIntegrityChecksum, "unsupported checksum algorithm: %q", s.Meta.ChecksumAlgo).
			WithContext("path=" + path)
	}
	want, err := Checksum(s.Tasks)
	if err != nil {
		return err
	}
	if s.Meta.Checksum != want {
		return swarmerrors.ErrChecksumMismatch(path)
	}
	return nil
}
