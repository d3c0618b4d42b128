package diskstore

// ContentRef names a piece of addressed content: either a standalone file or a
// named child of a content-addressed directory (e.g. an image size variant).
type ContentRef struct {
	CID      string
	DirCID   string
	FileName string
}

/*NewFileRef - reference to a standalone content-addressed file */
func NewFileRef(cid string) ContentRef {
	return ContentRef{CID: cid}
}

/*NewDirEntryRef - reference to a named member of a content-addressed directory */
func NewDirEntryRef(dirCID, fileName string) ContentRef {
	return ContentRef{CID: dirCID, DirCID: dirCID, FileName: fileName}
}

func (ref ContentRef) IsDirEntry() bool {
	return ref.DirCID != "" && ref.FileName != ""
}

// Path derives the on-disk location of the referenced content.
func (ref ContentRef) Path(store *Store, ensureDir bool) (string, error) {
	if ref.IsDirEntry() {
		return store.PathForDirMember(ref.DirCID, ref.FileName, ensureDir)
	}
	return store.PathFor(ref.CID, ensureDir)
}

// RemotePath is the URL path a peer node serves this content under.
func (ref ContentRef) RemotePath() string {
	if ref.IsDirEntry() {
		return "/ipfs/" + ref.DirCID + "/" + ref.FileName
	}
	return "/ipfs/" + ref.CID
}
