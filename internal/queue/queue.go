package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusFailed     Status = "FAILED"
	StatusSucceeded  Status = "SUCCEEDED"
)

const (
	recordVersion = 1

	audioExt    = ".pcm"
	metadataExt = ".json"

	// DefaultFailureReason is recorded when a failure is reported without a reason.
	DefaultFailureReason = "Unknown STT failure"
)

// Item is the persisted bookkeeping record of one queued chunk.
type Item struct {
	Version       int       `json:"version" validate:"gte=1"`
	ID            string    `json:"id" validate:"required"`
	SessionID     string    `json:"sessionId" validate:"required"`
	HostRef       string    `json:"hostRef,omitempty"`
	PathRef       string    `json:"pathRef,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	DurationMs    int64     `json:"durationMs" validate:"gte=0"`
	Status        Status    `json:"status" validate:"oneof=PENDING PROCESSING FAILED SUCCEEDED"`
	Attempts      int       `json:"attempts" validate:"gte=0"`
	AudioPath     string    `json:"audioPath" validate:"required"`
	FailureReason string    `json:"failureReason,omitempty"`
}

// Snapshot aggregates the queue state for observability.
type Snapshot struct {
	Pending    int
	Processing int
	Failed     int
	Items      []Item
}

func (s Snapshot) Total() int {
	return len(s.Items)
}

// Queue persists chunks in one directory, one .pcm and one .json file per item.
// All operations are serialized by a single mutex.
type Queue struct {
	mu       sync.Mutex
	dir      string
	items    map[string]*Item
	logger   *zap.SugaredLogger
	validate *validator.Validate
	newID    func() string
}

// Open creates dir if needed and recovers the items persisted there.
func Open(dir string, logger *zap.SugaredLogger) (*Queue, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory %s: %w", dir, err)
	}
	q := &Queue{
		dir:      dir,
		items:    make(map[string]*Item),
		logger:   logger,
		validate: validator.New(),
		newID:    func() string { return uuid.NewString() },
	}
	if err := q.recover(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) Dir() string {
	return q.dir
}

// Enqueue persists a chunk. It returns false when the input is rejected or cannot be stored;
// a rejected chunk leaves nothing behind on disk.
func (q *Queue) Enqueue(audio []byte, sessionID, hostRef, pathRef string, createdAt time.Time, durationMs int64) (Item, bool) {
	if len(audio) == 0 || strings.TrimSpace(sessionID) == "" {
		return Item{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.newID()
	audioPath := filepath.Join(q.dir, id+audioExt)
	if err := writeFileAtomic(audioPath, audio); err != nil {
		q.logger.Warnf("Queue: failed to write audio for %s: %v", id, err)
		return Item{}, false
	}

	item := &Item{
		Version:    recordVersion,
		ID:         id,
		SessionID:  sessionID,
		HostRef:    hostRef,
		PathRef:    pathRef,
		CreatedAt:  createdAt,
		DurationMs: durationMs,
		Status:     StatusPending,
		AudioPath:  audioPath,
	}
	if err := q.persistLocked(item); err != nil {
		q.logger.Warnf("Queue: failed to write metadata for %s, removing audio: %v", id, err)
		removeQuietly(audioPath)
		return Item{}, false
	}

	q.items[id] = item
	q.logger.Debugf("Queue: enqueued %s session=%s durationMs=%d bytes=%d", id, sessionID, durationMs, len(audio))
	return *item, true
}

// PollNextPending claims the oldest pending item, marking it processing.
func (q *Queue) PollNextPending() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next *Item
	for _, it := range q.items {
		if it.Status != StatusPending {
			continue
		}
		if next == nil || older(it, next) {
			next = it
		}
	}
	if next == nil {
		return Item{}, false
	}

	updated := *next
	updated.Status = StatusProcessing
	updated.Attempts++
	updated.FailureReason = ""
	if err := q.persistLocked(&updated); err != nil {
		q.logger.Warnf("Queue: failed to claim %s: %v", next.ID, err)
		return Item{}, false
	}
	*next = updated
	return updated, true
}

// MarkSucceeded removes the item and both backing files. Unknown ids are ignored.
func (q *Queue) MarkSucceeded(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[id]
	if !ok {
		return
	}
	// the audio stays with the record: a record without audio is dropped on recovery
	if err := os.Remove(q.metadataPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		q.logger.Warnf("Queue: failed to remove record %s, keeping it: %v", id, err)
		return
	}
	delete(q.items, id)
	removeQuietly(it.AudioPath)
}

// MarkFailed records a failure. The audio is kept so the item can be retried.
func (q *Queue) MarkFailed(id, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[id]
	if !ok {
		return
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultFailureReason
	}
	updated := *it
	updated.Status = StatusFailed
	updated.FailureReason = reason
	if err := q.persistLocked(&updated); err != nil {
		q.logger.Warnf("Queue: failed to mark %s failed: %v", id, err)
		return
	}
	*it = updated
}

// MarkRetry moves a processing or failed item back to pending.
func (q *Queue) MarkRetry(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[id]
	if !ok {
		return false
	}
	return q.demoteLocked(it)
}

// ResolveID returns the id of the only item whose id starts with prefix.
func (q *Queue) ResolveID(prefix string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[prefix]; ok {
		return prefix, true
	}
	var match string
	for id := range q.items {
		if prefix != "" && strings.HasPrefix(id, prefix) {
			if match != "" {
				return "", false
			}
			match = id
		}
	}
	return match, match != ""
}

// ResetAllToPending demotes every processing or failed item and returns how many moved.
func (q *Queue) ResetAllToPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, it := range q.items {
		if q.demoteLocked(it) {
			n++
		}
	}
	if n > 0 {
		q.logger.Infof("Queue: reset %d items to pending", n)
	}
	return n
}

// ReadAudio loads the audio payload of item.
func (q *Queue) ReadAudio(item Item) ([]byte, error) {
	data, err := os.ReadFile(item.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio for %s: %w", item.ID, err)
	}
	return data, nil
}

func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Snapshot
	s.Items = make([]Item, 0, len(q.items))
	for _, it := range q.items {
		switch it.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusFailed:
			s.Failed++
		}
		s.Items = append(s.Items, *it)
	}
	sort.Slice(s.Items, func(i, j int) bool { return older(&s.Items[i], &s.Items[j]) })
	return s
}

func (q *Queue) demoteLocked(it *Item) bool {
	if it.Status != StatusProcessing && it.Status != StatusFailed {
		return false
	}
	updated := *it
	updated.Status = StatusPending
	if err := q.persistLocked(&updated); err != nil {
		q.logger.Warnf("Queue: failed to reset %s: %v", it.ID, err)
		return false
	}
	*it = updated
	return true
}

// recover rebuilds the index from disk. Records without audio or that fail to decode are
// deleted, and records left processing by a previous run go back to pending.
func (q *Queue) recover() error {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return fmt.Errorf("failed to scan queue directory %s: %w", q.dir, err)
	}

	var dropped, demoted int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(name, ".") && strings.Contains(name, ".tmp-") {
			removeQuietly(filepath.Join(q.dir, name))
			continue
		}
		if filepath.Ext(name) != metadataExt {
			continue
		}
		metaPath := filepath.Join(q.dir, name)
		id := strings.TrimSuffix(name, metadataExt)
		audioPath := filepath.Join(q.dir, id+audioExt)

		item, err := q.load(metaPath)
		if err != nil {
			q.logger.Warnf("Queue: dropping unreadable record %s: %v", name, err)
			removeQuietly(metaPath)
			removeQuietly(audioPath)
			dropped++
			continue
		}
		// the directory may have moved since the record was written
		item.AudioPath = audioPath
		if _, err := os.Stat(item.AudioPath); err != nil {
			q.logger.Warnf("Queue: dropping record %s with missing audio", item.ID)
			removeQuietly(metaPath)
			dropped++
			continue
		}
		if item.Status == StatusProcessing {
			item.Status = StatusPending
			if err := q.persistLocked(item); err != nil {
				q.logger.Warnf("Queue: failed to demote %s: %v", item.ID, err)
			}
			demoted++
		}
		q.items[item.ID] = item
	}

	// audio written by an enqueue that crashed before its metadata
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != audioExt {
			continue
		}
		if _, ok := q.items[strings.TrimSuffix(name, audioExt)]; !ok {
			removeQuietly(filepath.Join(q.dir, name))
			dropped++
		}
	}

	q.logger.Infof("Queue: recovered %d items from %s (dropped=%d demoted=%d)", len(q.items), q.dir, dropped, demoted)
	return nil
}

func (q *Queue) load(path string) (*Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if item.Version == 0 {
		item.Version = recordVersion
	}
	if err := q.validate.Struct(item); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	if item.ID != strings.TrimSuffix(filepath.Base(path), metadataExt) {
		return nil, errors.New("record id does not match file name")
	}
	return &item, nil
}

func (q *Queue) persistLocked(item *Item) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return writeFileAtomic(q.metadataPath(item.ID), data)
}

func (q *Queue) metadataPath(id string) string {
	return filepath.Join(q.dir, id+metadataExt)
}

func older(a, b *Item) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// writeFileAtomic writes data to a temp file in the same directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// removeQuietly deletes path, ignoring errors; recovery sweeps leftovers on the next start.
func removeQuietly(path string) {
	_ = os.Remove(path)
}
