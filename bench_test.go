package avstor

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
)

// Benchmarks against bbolt as a reference point for the same workload
// shape: sequential inserts under one parent, then point lookups.

func benchKey(i int) *Key {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(i))
	return NewBinaryKey(buf)
}

func BenchmarkCreateInt32(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.avs")
	db, err := Open(path, 8192, OpenReadWrite|OpenCreate|OpenAutosave)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	var root, parent Node
	db.NodeInit(&root)
	if err := root.CreateKey(NewKey("bench"), &parent); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := parent.CreateInt32(benchKey(i), int32(i), nil); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()
	if err := db.Commit(true); err != nil {
		b.Fatal(err)
	}
}

func BenchmarkFind(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.avs")
	db, err := Open(path, 8192, OpenReadWrite|OpenCreate|OpenAutosave)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	var root, parent, out Node
	db.NodeInit(&root)
	if err := root.CreateKey(NewKey("bench"), &parent); err != nil {
		b.Fatal(err)
	}
	const n = 10000
	for i := 0; i < n; i++ {
		if err := parent.CreateInt32(benchKey(i), int32(i), nil); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := parent.Find(benchKey(i%n), Values, &out); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBoltPut(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.bolt")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket([]byte("bench"))
		return err
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	err = db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte("bench"))
		val := make([]byte, 4)
		for i := 0; i < b.N; i++ {
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, uint64(i))
			binary.BigEndian.PutUint32(val, uint32(i))
			if err := bkt.Put(key, val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Fatal(err)
	}
}

func BenchmarkBoltGet(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.bolt")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer db.Close()

	const n = 10000
	err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucket([]byte("bench"))
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, uint64(i))
			if err := bkt.Put(key, []byte(fmt.Sprint(i))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	err = db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte("bench"))
		key := make([]byte, 8)
		for i := 0; i < b.N; i++ {
			binary.BigEndian.PutUint64(key, uint64(i%n))
			if bkt.Get(key) == nil {
				return fmt.Errorf("missing key %d", i%n)
			}
		}
		return nil
	})
	if err != nil {
		b.Fatal(err)
	}
}
