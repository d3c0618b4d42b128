package diskstore

import (
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/AudiusProject/creator-node/core/common"
	"github.com/AudiusProject/creator-node/core/logging"
)

// Only nested directory name DeleteTree will descend into. Anything else under
// a tree scheduled for deletion means the path does not belong to us.
const segmentsDirName = "segments"

const presenceCacheSize = 16384

// Store maps content identifiers to deterministic filesystem locations under
// {root}/files/{shard}/{cid} and manages the lifecycle of on-disk content.
type Store struct {
	root     string
	presence *lru.Cache[string, struct{}]
}

func NewStore(root string) (*Store, error) {
	presence, err := lru.New[string, struct{}](presenceCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{root: root, presence: presence}, nil
}

func (s *Store) Root() string {
	return s.root
}

// shardFor bounds directory fan-out: the shard directory is derived from the
// three characters before the last character of the cid.
func shardFor(cid string) string {
	return cid[len(cid)-4 : len(cid)-1]
}

// PathFor validates cid and returns its storage path. With ensureDir the shard
// directory is created; creation is idempotent and concurrent-safe.
func (s *Store) PathFor(cid string, ensureDir bool) (string, error) {
	if err := ValidateCID(cid); err != nil {
		return "", err
	}
	parentDir := filepath.Join(s.root, "files", shardFor(cid))
	if ensureDir {
		if err := ensureDirPathExists(parentDir); err != nil {
			return "", err
		}
	}
	return filepath.Join(parentDir, cid), nil
}

// PathForDirMember returns the path of a named file nested under the
// directory cid's own path.
func (s *Store) PathForDirMember(dirCID, fileName string, ensureDir bool) (string, error) {
	if err := ValidateCID(dirCID); err != nil {
		return "", err
	}
	if fileName == "" {
		return "", common.InvalidRequest("empty directory member name")
	}
	dirPath, err := s.PathFor(dirCID, false)
	if err != nil {
		return "", err
	}
	if ensureDir {
		if err := ensureDirPathExists(dirPath); err != nil {
			return "", err
		}
	}
	return filepath.Join(dirPath, fileName), nil
}

// mkdir -p semantics: creating an existing directory is a no-op, so concurrent
// callers racing on the same shard directory are safe.
func ensureDirPathExists(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return errors.Wrapf(err, "error making directory at %v", dirPath)
	}
	return nil
}

// Has reports whether the content for ref is already materialized on disk.
func (s *Store) Has(ref ContentRef) bool {
	path, err := ref.Path(s, false)
	if err != nil {
		return false
	}
	if _, ok := s.presence.Get(path); ok {
		return true
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	s.presence.Add(path, struct{}{})
	return true
}

// Put stores data under its computed content identifier and returns the cid
// and path.
func (s *Store) Put(data []byte) (cid string, path string, err error) {
	cid = ComputeCID(data)
	path, err = s.PathFor(cid, true)
	if err != nil {
		return "", "", err
	}
	if err = os.WriteFile(path, data, 0644); err != nil {
		return "", "", err
	}
	s.presence.Add(path, struct{}{})
	return cid, path, nil
}

// PutAt writes pre-validated bytes at path. Callers are responsible for having
// derived path through PathFor / PathForDirMember.
func (s *Store) PutAt(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	s.presence.Add(path, struct{}{})
	return nil
}

// Open opens the content for ref for reading.
func (s *Store) Open(ref ContentRef) (*os.File, error) {
	path, err := ref.Path(s, false)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, common.NewErrorf(common.ErrNoResourceCode, "no content stored for %v", ref.CID)
	}
	return f, err
}

// DeleteTree recursively deletes a file or directory. It refuses to descend
// into subdirectories it does not recognize: content-addressed directories
// hold flat files (plus at most a segments dir), so an unexpected nested
// directory means the path is not ours to destroy.
func (s *Store) DeleteTree(path string) error {
	return s.deleteTree(path, true)
}

func (s *Store) deleteTree(path string, allowNested bool) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		s.presence.Remove(path)
		return os.Remove(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		childPath := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			if !allowNested || entry.Name() != segmentsDirName {
				return common.NewErrorf(common.ErrUnexpectedSubdirectoryCode,
					"unexpected subdirectory in %v - %v", path, childPath)
			}
			if err := s.deleteTree(childPath, false); err != nil {
				return err
			}
			continue
		}
		s.presence.Remove(childPath)
		if err := os.Remove(childPath); err != nil {
			return err
		}
	}
	s.presence.Remove(path)
	return os.Remove(path)
}

// BatchDelete deletes paths in chunks of batchSize. Deletes within a chunk run
// concurrently, chunks run sequentially to bound peak file-handle usage. Every
// path is attempted exactly once; per-path failures are collected, not raised,
// because partial success of a cleanup is still useful.
func (s *Store) BatchDelete(paths []string, batchSize int) (deleted int, errs []error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	for start := 0; start < len(paths); start += batchSize {
		end := start + batchSize
		if end > len(paths) {
			end = len(paths)
		}
		chunk := paths[start:end]

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			chunkOks int
		)
		for _, path := range chunk {
			path := path
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.DeleteTree(path); err != nil {
					mu.Lock()
					errs = append(errs, errors.Wrapf(err, "could not delete %v", path))
					mu.Unlock()
					return
				}
				mu.Lock()
				chunkOks++
				mu.Unlock()
			}()
		}
		wg.Wait()
		deleted += chunkOks
	}
	for _, err := range errs {
		logging.Logger.Error("batch delete failure", zap.Error(err))
	}
	return deleted, errs
}
