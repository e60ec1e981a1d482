package store

import "sync"

// Key layout. Every record lives under a type prefix, so backup and
// inspection tooling can iterate one record kind without touching the rest:
//
//	book:<id>                        book record
//	chapter:<id>                     chapter record
//	chapter:idx:book:<book>:<index>  chapter lookup by book, ordered
//	character:<id>                   book-level character record
//	analysis:<book>:<chapter>        completed chapter analysis artifact
//	checkpoint:<book>:<chapter>      in-progress analysis checkpoint
//	job:<id>                         analysis job record
//	server:config                    singleton server instance record
//
// Secondary indexes carry an `idx:` marker (`idx:books:hash:<sha>` for
// import dedup, `job:idx:status:...`), so a plain prefix scan over an
// entity can skip them by checking for it.

// keyPool recycles key buffers for the get/set/delete hot path. Composite
// keys (analysisKey, checkpointKey, chapter index keys) are built ad hoc
// by their owners; the pool serves the simple prefix+ID form.
var keyPool = sync.Pool{
	New: func() any {
		// 256 bytes covers any prefix plus a 21-rune NanoID with room
		// to spare.
		return make([]byte, 0, 256)
	},
}

// buildKey returns a pooled prefix+ID key. The buffer is only valid until
// releaseKey; callers must not hold it past the transaction.
//
//	key := buildKey(chapterPrefix, id)
//	defer releaseKey(key)
//	item, err := txn.Get(key)
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// releaseKey returns a key buffer to the pool. The slice must not be used
// afterwards. Oversized buffers are dropped rather than pooled.
func releaseKey(key []byte) {
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}
