package p2p

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"
)

const (
	bNodes = "nodes"

	boltOpenTimeout = 2 * time.Second
)

// BoltNodeStore persists registrations. Keys are the bucket sequence, so a cursor walk returns
// nodes in insertion order.
type BoltNodeStore struct {
	db *bolt.DB
}

func OpenBoltNodeStore(path string) (*BoltNodeStore, error) {
	if path == "" {
		return nil, oops.In("directory").Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, oops.In("directory").Wrapf(err, "create db dir")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, oops.In("directory").With("path", path).Wrapf(err, "open bolt db")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bNodes))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, oops.In("directory").Wrapf(err, "create nodes bucket")
	}
	return &BoltNodeStore{db: db}, nil
}

func (s *BoltNodeStore) Append(node Node) error {
	val, err := json.Marshal(node)
	if err != nil {
		return oops.In("directory").Wrapf(err, "encode node")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bNodes))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), val)
	})
}

func (s *BoltNodeStore) List() ([]Node, error) {
	nodes := []Node{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bNodes)).ForEach(func(_, v []byte) error {
			var node Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, node)
			return nil
		})
	})
	if err != nil {
		return nil, oops.In("directory").Wrapf(err, "list nodes")
	}
	return nodes, nil
}

func (s *BoltNodeStore) Close() error { return s.db.Close() }

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
