package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const boltFile = "index.db"

var (
	bucketEntries = []byte("entries")
	bucketMeta    = []byte("meta")

	keyDimension = []byte("dimension")
	keyNextSeq   = []byte("next_seq")
)

type storedEntry struct {
	Vector   []float32         `json:"vector"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Seq      uint64            `json:"seq"`
}

type boltJournal struct {
	db *bbolt.DB
}

// OpenBolt открывает индекс в одном файле bbolt и поднимает его в память
func OpenBolt(dir string) (*Memory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, boltFile), 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	m := NewMemory()
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		dimension := decodeUint(meta.Get(keyDimension))
		nextSeq := decodeUint(meta.Get(keyNextSeq))

		var records []*record
		err := tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var stored storedEntry
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("decode entry %s: %w", k, err)
			}
			records = append(records, &record{
				Entry: Entry{ID: string(k), Vector: stored.Vector, Text: stored.Text, Metadata: stored.Metadata},
				seq:   stored.Seq,
			})
			return nil
		})
		if err != nil {
			return err
		}
		m.restore(records, int(dimension), nextSeq)
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	m.journal = &boltJournal{db: db}
	return m, nil
}

// putRecords пишет пакет одной транзакцией
func (j *boltJournal) putRecords(records []*record, dimension int, nextSeq uint64) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for _, r := range records {
			data, err := json.Marshal(storedEntry{Vector: r.Vector, Text: r.Text, Metadata: r.Metadata, Seq: r.seq})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(r.ID), data); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keyDimension, encodeUint(uint64(dimension))); err != nil {
			return err
		}
		return meta.Put(keyNextSeq, encodeUint(nextSeq))
	})
}

func (j *boltJournal) deleteIDs(ids []string) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *boltJournal) reset() error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketMeta} {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("drop bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *boltJournal) close() error {
	return j.db.Close()
}

func encodeUint(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
