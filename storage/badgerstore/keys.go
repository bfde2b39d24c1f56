package badgerstore

import (
	"encoding/binary"
	"time"
)

// Key prefixes for different data types
const (
	recordPrefix  = "georec"
	imagePrefix   = "geoimg"
	thumbPrefix   = "geothm"
	updatedPrefix = "georecu"
	configPrefix  = "geocfg"
)

// makeRecordKey generates a key for a record by ID.
func makeRecordKey(id string) []byte {
	return []byte(recordPrefix + ":" + id)
}

// makeImageKey generates a key for a record's full-resolution image.
func makeImageKey(id string) []byte {
	return []byte(imagePrefix + ":" + id)
}

// makeThumbKey generates a key for a record's thumbnail.
func makeThumbKey(id string) []byte {
	return []byte(thumbPrefix + ":" + id)
}

// makeConfigKey generates a key for a named config value.
func makeConfigKey(key string) []byte {
	return []byte(configPrefix + ":" + key)
}

// makeUpdatedKey generates a composite key for the updatedAt index.
// Format: prefix:timestamp:id
func makeUpdatedKey(updatedAt time.Time, id string) []byte {
	prefix := updatedPrefix + ":"
	buf := make([]byte, len(prefix)+8+len(id))
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(updatedAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}
