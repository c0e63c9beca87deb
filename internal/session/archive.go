package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/utils"
)

// Archive writes ended sessions as JSONL transcripts: one metadata line
// followed by one line per message.
type Archive struct {
	dir string
}

// NewArchive creates an archive under <dataDir>/sessions.
func NewArchive(dataDir string) (*Archive, error) {
	dir, err := utils.EnsureDir(filepath.Join(dataDir, "sessions"))
	if err != nil {
		return nil, errors.Wrap(err, "create archive dir")
	}
	return &Archive{dir: dir}, nil
}

// archiveMeta is the first line of a transcript.
type archiveMeta struct {
	Type string `json:"_type"`
	Snapshot
}

// Save writes snap to disk, replacing any previous transcript.
func (a *Archive) Save(snap Snapshot) error {
	path := a.path(snap.ID)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create transcript")
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	meta := archiveMeta{Type: "metadata", Snapshot: snap}
	meta.Messages = nil
	if err := enc.Encode(meta); err != nil {
		f.Close()
		return errors.Wrap(err, "write metadata")
	}
	for _, msg := range snap.Messages {
		if err := enc.Encode(msg); err != nil {
			f.Close()
			return errors.Wrap(err, "write message")
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "flush transcript")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close transcript")
	}
	return errors.Wrap(os.Rename(tmp, path), "commit transcript")
}

// Load reads a transcript back into a snapshot.
func (a *Archive) Load(id string) (Snapshot, error) {
	f, err := os.Open(a.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, errors.Wrap(ErrSessionNotFound, id)
		}
		return Snapshot{}, errors.Wrap(err, "open transcript")
	}
	defer f.Close()

	var snap Snapshot
	sawMeta := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !sawMeta {
			var meta archiveMeta
			if err := json.Unmarshal([]byte(line), &meta); err != nil || meta.Type != "metadata" {
				return Snapshot{}, errors.Errorf("transcript %s: missing metadata line", id)
			}
			snap = meta.Snapshot
			sawMeta = true
			continue
		}
		var msg Message
		if json.Unmarshal([]byte(line), &msg) == nil {
			snap.Messages = append(snap.Messages, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return Snapshot{}, errors.Wrap(err, "read transcript")
	}
	if !sawMeta {
		return Snapshot{}, errors.Errorf("transcript %s: empty", id)
	}
	return snap, nil
}

// ArchivedInfo describes one stored transcript.
type ArchivedInfo struct {
	ID      string    `json:"sessionId"`
	Path    string    `json:"path"`
	Outcome Outcome   `json:"outcome"`
	EndedAt time.Time `json:"endedAt"`
}

// List returns metadata for every stored transcript.
func (a *Archive) List() []ArchivedInfo {
	var result []ArchivedInfo
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return result
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(a.dir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		if scanner.Scan() {
			var meta archiveMeta
			if json.Unmarshal(scanner.Bytes(), &meta) == nil && meta.Type == "metadata" {
				info := ArchivedInfo{ID: meta.ID, Path: path, Outcome: meta.Outcome}
				if meta.EndedAt != nil {
					info.EndedAt = *meta.EndedAt
				}
				result = append(result, info)
			}
		}
		f.Close()
	}
	return result
}

func (a *Archive) path(id string) string {
	return filepath.Join(a.dir, utils.SafeFilename(id)+".jsonl")
}
