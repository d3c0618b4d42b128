package userstate

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// FileType enumerates what a File row holds on disk.
type FileType string

const (
	FileTypeMetadata        FileType = "metadata"
	FileTypeTrackSegment    FileType = "track-segment"
	FileTypeTranscodedTrack FileType = "copy320"
	FileTypeImage           FileType = "image"
	FileTypeDir             FileType = "dir"
)

// File references one piece of content-addressed data. Rows are immutable once
// written except for association fields (TrackUUID is linked after the parent
// track row is created).
type File struct {
	FileUUID      string    `json:"fileUUID" gorm:"primaryKey;column:file_uuid"`
	CNodeUserUUID string    `json:"cnodeUserUUID" gorm:"column:cnode_user_uuid;index;not null"`
	TrackUUID     *string   `json:"trackUUID" gorm:"column:track_uuid;index"`
	Multihash     string    `json:"multihash" gorm:"not null;index"`
	SourceFile    string    `json:"sourceFile"`
	StoragePath   string    `json:"storagePath" gorm:"not null;index"`
	Type          FileType  `json:"type" gorm:"not null"`
	FileName      *string   `json:"fileName"`
	DirMultihash  *string   `json:"dirMultihash"`
	Clock         int       `json:"clock" gorm:"not null"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (File) TableName() string {
	return "files"
}

func (db *UserStateDb) GetFilesInRange(userID string, clockMin, clockMax int) ([]File, error) {
	var files []File
	err := db.Get().
		Where("cnode_user_uuid = ? AND clock BETWEEN ? AND ?", userID, clockMin, clockMax).
		Order("clock asc").
		Find(&files).Error
	return files, err
}

func (db *UserStateDb) CreateFiles(files []File) error {
	if len(files) == 0 {
		return nil
	}
	return db.Get().Create(&files).Error
}

// SplitFilesByTrackDependency partitions files into rows that can be inserted
// before any track exists and rows that reference a track by uuid. The
// dependent rows must be deferred until their parent track row is present.
func SplitFilesByTrackDependency(files []File) (independent, dependent []File) {
	for _, f := range files {
		if f.TrackUUID != nil {
			dependent = append(dependent, f)
		} else {
			independent = append(independent, f)
		}
	}
	return independent, dependent
}

// GetStoragePathsPage pages through a user's storage paths ordered by path,
// returning up to limit paths strictly greater than afterPath.
func (db *UserStateDb) GetStoragePathsPage(userID string, afterPath string, limit int) ([]string, error) {
	var paths []string
	err := db.Get().Model(&File{}).
		Where("cnode_user_uuid = ? AND storage_path > ?", userID, afterPath).
		Order("storage_path asc").
		Limit(limit).
		Pluck("storage_path", &paths).Error
	return paths, err
}

// GetFileByMultihash returns one file row referencing multihash, or nil when
// no row does. Any referencing row will do, they all name the same bytes.
func (db *UserStateDb) GetFileByMultihash(multihash string) (*File, error) {
	var file File
	err := db.Get().Where("multihash = ?", multihash).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// ListCIDsForUser returns the distinct multihashes referenced by a user's file
// rows.
func (db *UserStateDb) ListCIDsForUser(userID string) ([]string, error) {
	var cids []string
	err := db.Get().Model(&File{}).
		Distinct("multihash").
		Where("cnode_user_uuid = ?", userID).
		Order("multihash asc").
		Pluck("multihash", &cids).Error
	return cids, err
}

// CountFileOccurrences returns how many file rows across all users reference
// multihash. Used to decide whether bytes on disk are still referenced before
// purging them.
func (db *UserStateDb) CountFileOccurrences(multihash string) (int64, error) {
	var count int64
	err := db.Get().Model(&File{}).
		Where("multihash = ?", multihash).
		Count(&count).Error
	return count, err
}
