package news

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"MarketHarvest/internal/model"

	"github.com/segmentio/encoding/json"
)

const (
	filePrefix = "news_"
	fileSuffix = ".json"
	fileLayout = "20060102"

	// FetchTimeLayout is the layout of NewsItem.FetchTime.
	FetchTimeLayout = "2006-01-02 15:04:05"
)

// ErrCorruptFile marks a Daily News File that exists but cannot be decoded.
var ErrCorruptFile = errors.New("corrupt news file")

// ContentHash is the identity of a news item: hex MD5 of its content.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Store reads and writes Daily News Files in one directory.
type Store struct {
	dir string
	loc *time.Location
}

// NewStore creates a store rooted at dir. Days are computed in loc.
func NewStore(dir string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{dir: dir, loc: loc}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) Location() *time.Location { return s.loc }

// PathFor returns the file holding items fetched on day.
func (s *Store) PathFor(day time.Time) string {
	return filepath.Join(s.dir, filePrefix+day.In(s.loc).Format(fileLayout)+fileSuffix)
}

// Load reads the file for day. A missing file yields no items and no error.
func (s *Store) Load(day time.Time) ([]model.NewsItem, error) {
	return s.LoadFile(s.PathFor(day))
}

// LoadFile reads one Daily News File. Undecodable content returns an error
// wrapping ErrCorruptFile.
func (s *Store) LoadFile(path string) ([]model.NewsItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var items []model.NewsItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", filepath.Base(path), ErrCorruptFile, err)
	}
	return items, nil
}

// Save replaces the file for day with items. The write goes to a temporary
// file in the same directory that is renamed over the target.
func (s *Store) Save(day time.Time, items []model.NewsItem) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create news dir: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encode news: %w", err)
	}

	target := s.PathFor(day)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("replace %s: %w", target, err)
	}
	return nil
}

// RecentFiles returns up to n Daily News File paths, newest day first.
func (s *Store) RecentFiles(n int) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list news dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if _, err := time.Parse(fileLayout, stamp); err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if n > 0 && len(names) > n {
		names = names[:n]
	}
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(s.dir, name)
	}
	return paths, nil
}

// Stat summarizes one file. Read errors are reported in the result.
func (s *Store) Stat(path string) model.NewsFileStatus {
	st := model.NewsFileStatus{Name: filepath.Base(path)}
	info, err := os.Stat(path)
	if err != nil {
		st.Err = err.Error()
		return st
	}
	st.Size = info.Size()
	st.ModTime = info.ModTime()

	items, err := s.LoadFile(path)
	if err != nil {
		st.Err = err.Error()
		return st
	}
	st.Items = len(items)
	for _, it := range items {
		if it.FetchTime > st.LatestFetch {
			st.LatestFetch = it.FetchTime
		}
	}
	return st
}

// LatestNews returns up to limit items from the most recent days files,
// newest first, deduplicated by hash. Corrupt files are skipped.
func (s *Store) LatestNews(days, limit int) ([]model.NewsItem, error) {
	paths, err := s.RecentFiles(days)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []model.NewsItem
	for _, p := range paths {
		items, err := s.LoadFile(p)
		if err != nil {
			continue
		}
		for _, it := range items {
			h := it.Hash
			if h == "" {
				h = ContentHash(it.Content)
			}
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			out = append(out, it)
		}
	}
	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SortNewestFirst orders items by Datetime descending. Ties keep input order.
func SortNewestFirst(items []model.NewsItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Datetime > items[j].Datetime })
}
