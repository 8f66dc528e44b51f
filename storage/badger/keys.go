package badger

import "fmt"

// Key prefixes for different data types
const (
	trackerRecordPrefix = "trkrec"
	vectorRecordPrefix  = "vecrec"
)

// makeTrackerKey generates a key for a tracker record by external file id.
func makeTrackerKey(externalID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", trackerRecordPrefix, externalID))
}

// makeVectorKey generates a key for a vector record.
// The chunk index is zero-padded so a prefix scan over one file yields
// records in chunk order.
func makeVectorKey(fileID string, chunkIndex int) []byte {
	return []byte(fmt.Sprintf("%s:%s:%08d", vectorRecordPrefix, fileID, chunkIndex))
}

// makeVectorFilePrefix generates the scan prefix covering every vector
// record for one file.
func makeVectorFilePrefix(fileID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", vectorRecordPrefix, fileID))
}
