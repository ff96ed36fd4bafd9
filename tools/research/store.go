package research

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const papersInfoFile = "papers_info.json"

// Store persists paper metadata under a root directory, one folder per topic
// with a papers_info.json keyed by paper ID. Existing entries are preserved
// across saves, so repeated searches accumulate.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// TopicDir normalizes a topic into its folder name.
func TopicDir(topic string) string {
	return strings.ReplaceAll(strings.ToLower(topic), " ", "_")
}

func (s *Store) papersFile(topic string) string {
	return filepath.Join(s.dir, TopicDir(topic), papersInfoFile)
}

// escapeKey escapes a paper ID for use as a gjson/sjson path segment; arXiv
// IDs contain dots, which are path separators.
func escapeKey(id string) string {
	id = strings.ReplaceAll(id, "\\", "\\\\")
	id = strings.ReplaceAll(id, ".", "\\.")
	id = strings.ReplaceAll(id, "*", "\\*")
	id = strings.ReplaceAll(id, "?", "\\?")
	return id
}

// SavePapers merges the papers into the topic's metadata file and returns the
// file path. A corrupted or missing file is replaced by a fresh document.
func (s *Store) SavePapers(topic string, papers []Paper) (string, error) {
	path := s.papersFile(topic)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create topic directory")
	}

	data, err := os.ReadFile(path)
	if err != nil || !gjson.ValidBytes(data) {
		data = []byte("{}")
	}

	for _, paper := range papers {
		data, err = sjson.SetBytes(data, escapeKey(paper.ID), paper)
		if err != nil {
			return "", errors.Wrapf(err, "failed to set paper %s", paper.ID)
		}
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, data, "", "  "); err != nil {
		return "", errors.Wrap(err, "failed to format papers file")
	}

	if err := os.WriteFile(path, indented.Bytes(), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write papers file")
	}
	return path, nil
}

// Topics returns the topic folders that have a metadata file, sorted.
func (s *Store) Topics() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}

	var topics []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, entry.Name(), papersInfoFile)); err == nil {
			topics = append(topics, entry.Name())
		}
	}
	sort.Strings(topics)
	return topics
}

// FindPaper searches every topic for the paper ID and returns its metadata
// as indented JSON. Corrupted topic files are skipped.
func (s *Store) FindPaper(paperID string) (string, bool) {
	for _, topic := range s.Topics() {
		data, err := os.ReadFile(s.papersFile(topic))
		if err != nil || !gjson.ValidBytes(data) {
			continue
		}
		result := gjson.GetBytes(data, escapeKey(paperID))
		if !result.Exists() {
			continue
		}
		var indented bytes.Buffer
		if err := json.Indent(&indented, []byte(result.Raw), "", "  "); err != nil {
			return result.Raw, true
		}
		return indented.String(), true
	}
	return "", false
}

// TopicEntry is a single paper within a topic listing.
type TopicEntry struct {
	ID    string
	Paper Paper
}

// TopicPapers returns the papers saved for a topic in file order. The second
// return is false when the topic has no metadata file, and the error is set
// when the file exists but cannot be parsed.
func (s *Store) TopicPapers(topic string) ([]TopicEntry, bool, error) {
	data, err := os.ReadFile(s.papersFile(topic))
	if err != nil {
		return nil, false, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, true, errors.New("papers file is corrupted")
	}

	var entries []TopicEntry
	var parseErr error
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		var paper Paper
		if err := json.Unmarshal([]byte(value.Raw), &paper); err != nil {
			parseErr = errors.Wrapf(err, "failed to parse paper %s", key.String())
			return false
		}
		paper.ID = key.String()
		entries = append(entries, TopicEntry{ID: key.String(), Paper: paper})
		return true
	})
	if parseErr != nil {
		return nil, true, parseErr
	}
	return entries, true, nil
}
