package docstore

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/cockroachdb/errors"
	bolt "go.etcd.io/bbolt"
)

// DefaultCollection is the bucket used when OpenBolt is given no name.
const DefaultCollection = "documents"

type boltCollection struct {
	db     *bolt.DB
	bucket []byte
}

var _ Collection = (*boltCollection)(nil)

// OpenBolt opens (or creates) the database at path and returns the named
// collection. Each collection is one bucket keyed by insertion sequence.
func OpenBolt(path string, collection string) (Collection, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "docstore: open %s", path)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	bucket := []byte(collection)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "docstore: create bucket %s", collection)
	}
	return &boltCollection{db: db, bucket: bucket}, nil
}

func (b *boltCollection) Find(ctx context.Context, filter Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	out := []Document{}
	err = b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).ForEach(func(_, v []byte) error {
			doc, err := decode(v)
			if err != nil {
				return err
			}
			if matches(doc, f) {
				out = append(out, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *boltCollection) InsertOne(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, buf, err := encode(doc)
	if err != nil {
		return "", err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		seq, err := bk.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bk.Put(key, buf)
	})
	if err != nil {
		return "", errors.Wrap(err, "docstore: insert")
	}
	return id, nil
}

func (b *boltCollection) UpdateMany(ctx context.Context, filter Filter, update Update) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := normalize(filter)
	if err != nil {
		return 0, err
	}
	var modified int
	err = b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		type change struct{ key, val []byte }
		var changes []change
		if err := bk.ForEach(func(k, v []byte) error {
			doc, err := decode(v)
			if err != nil {
				return err
			}
			if !matches(doc, f) {
				return nil
			}
			next, err := apply(doc, update)
			if err != nil {
				return err
			}
			if next != nil {
				changes = append(changes, change{append([]byte(nil), k...), next})
			}
			return nil
		}); err != nil {
			return err
		}
		// bbolt forbids mutating a bucket while iterating it
		for _, c := range changes {
			if err := bk.Put(c.key, c.val); err != nil {
				return err
			}
		}
		modified = len(changes)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "docstore: update")
	}
	return modified, nil
}

func (b *boltCollection) Close() error {
	return b.db.Close()
}
