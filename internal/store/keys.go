package store

// Key prefixes. Records of one type share a prefix so they can be
// listed with a single iterator scan.
const (
	prefixTrack    = "track:"
	prefixAlbumIdx = "album-track:"
	prefixProvider = "provider:"
)

func trackKey(id string) []byte {
	return []byte(prefixTrack + id)
}

// albumIndexKey maps an album to one of its tracks. The value is the
// track ID; the key ordering groups an album's tracks together.
func albumIndexKey(albumID, trackID string) []byte {
	return []byte(prefixAlbumIdx + albumID + ":" + trackID)
}

func albumIndexPrefix(albumID string) []byte {
	return []byte(prefixAlbumIdx + albumID + ":")
}

func providerKey(id string) []byte {
	return []byte(prefixProvider + id)
}
