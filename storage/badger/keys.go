package badger

import (
	"bytes"
	"strings"
)

// Key layout. Components are separated by NUL, which dataset and tenant
// ids may not contain.
//
//	doc\0<dataset>\0<tenant>\0<id>            -> encoded record
//	did\0<id>                                 -> record key
//	hsh\0<hash>\0<dataset>\0<tenant>\0<id>    -> record key
const (
	documentPrefix = "doc"
	idPrefix       = "did"
	hashPrefix     = "hsh"
	sep            = "\x00"
)

func joinKey(parts ...string) []byte {
	return []byte(strings.Join(parts, sep))
}

// makeDocumentKey generates the primary key of a record.
func makeDocumentKey(datasetID, tenantID, id string) []byte {
	return joinKey(documentPrefix, datasetID, tenantID, id)
}

// makeIDKey generates the id index key.
func makeIDKey(id string) []byte {
	return joinKey(idPrefix, id)
}

// makeHashKey generates the content-hash index key.
func makeHashKey(hash, datasetID, tenantID, id string) []byte {
	return joinKey(hashPrefix, hash, datasetID, tenantID, id)
}

// makeDocumentScanPrefix returns the prefix covering a dataset, narrowed
// to one tenant when tenantID is non-empty. An empty datasetID covers
// every record.
func makeDocumentScanPrefix(datasetID, tenantID string) []byte {
	switch {
	case datasetID == "":
		return joinKey(documentPrefix, "")
	case tenantID == "":
		return joinKey(documentPrefix, datasetID, "")
	}
	return joinKey(documentPrefix, datasetID, tenantID, "")
}

// makeHashScanPrefix returns the prefix covering every record with hash,
// narrowed by dataset and then tenant when given. A tenant without a
// dataset cannot narrow the prefix and is filtered by the caller.
func makeHashScanPrefix(hash, datasetID, tenantID string) []byte {
	switch {
	case datasetID == "":
		return joinKey(hashPrefix, hash, "")
	case tenantID == "":
		return joinKey(hashPrefix, hash, datasetID, "")
	}
	return joinKey(hashPrefix, hash, datasetID, tenantID, "")
}

// parseScope splits a document or hash index key into its dataset,
// tenant and id components.
func parseScope(key []byte) (datasetID, tenantID, id string, ok bool) {
	switch {
	case bytes.HasPrefix(key, []byte(documentPrefix+sep)):
		if parts := bytes.SplitN(key, []byte(sep), 4); len(parts) == 4 {
			return string(parts[1]), string(parts[2]), string(parts[3]), true
		}
	case bytes.HasPrefix(key, []byte(hashPrefix+sep)):
		if parts := bytes.SplitN(key, []byte(sep), 5); len(parts) == 5 {
			return string(parts[2]), string(parts[3]), string(parts[4]), true
		}
	}
	return "", "", "", false
}
