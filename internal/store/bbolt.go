package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"

	"github.com/remiblancher/crl-engine/internal/crl"
)

var (
	bucketCRLs   = []byte("crls")     // crlID -> CBOR(crl.CRL)
	bucketByCA   = []byte("by_ca")    // caID/crlID -> 8-byte big-endian number
	bucketActive = []byte("active")   // caID -> crlID
	bucketNums   = []byte("numbers")  // caID -> 8-byte big-endian high-water mark
	bucketPoints = []byte("points")   // pointID -> CBOR(crl.DistributionPoint)
	bucketPtByCA = []byte("pt_by_ca") // caID/pointID -> nil
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// BoltStore implements Store backed by a bbolt database file.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketCRLs, bucketByCA, bucketActive, bucketNums, bucketPoints, bucketPtByCA} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func caKey(caID, id string) []byte {
	return []byte(caID + "/" + id)
}

func putCRL(tx *bbolt.Tx, c *crl.CRL) error {
	data, err := encMode.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode CRL %s: %w", c.ID, err)
	}
	return tx.Bucket(bucketCRLs).Put([]byte(c.ID), data)
}

func getCRL(tx *bbolt.Tx, id string) (*crl.CRL, error) {
	data := tx.Bucket(bucketCRLs).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("CRL %s: %w", id, ErrNotFound)
	}
	var c crl.CRL
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode CRL %s: %w", id, err)
	}
	return &c, nil
}

// SaveCRL persists the CRL, supersedes the previous active one and commits
// the CRL number, all in one transaction.
func (s *BoltStore) SaveCRL(ctx context.Context, c *crl.CRL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		active := tx.Bucket(bucketActive)

		if prevID := active.Get([]byte(c.CAID)); prevID != nil && string(prevID) != c.ID {
			prev, err := getCRL(tx, string(prevID))
			if err != nil {
				return err
			}
			prev.Status = crl.StatusSuperseded
			if err := putCRL(tx, prev); err != nil {
				return err
			}
		}

		c.Status = crl.StatusActive
		if err := putCRL(tx, c); err != nil {
			return err
		}
		if err := active.Put([]byte(c.CAID), []byte(c.ID)); err != nil {
			return err
		}

		var numBytes [8]byte
		binary.BigEndian.PutUint64(numBytes[:], uint64(c.Number))
		if err := tx.Bucket(bucketByCA).Put(caKey(c.CAID, c.ID), numBytes[:]); err != nil {
			return err
		}
		return tx.Bucket(bucketNums).Put([]byte(c.CAID), numBytes[:])
	})
}

// GetCRL returns the CRL by ID.
func (s *BoltStore) GetCRL(ctx context.Context, id string) (*crl.CRL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var c *crl.CRL
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		c, err = getCRL(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ActiveCRL returns the CA's active CRL, nil when none.
func (s *BoltStore) ActiveCRL(ctx context.Context, caID string) (*crl.CRL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var c *crl.CRL
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketActive).Get([]byte(caID))
		if id == nil {
			return nil
		}
		var err error
		c, err = getCRL(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCRLs returns the CA's CRLs, newest number first.
func (s *BoltStore) ListCRLs(ctx context.Context, caID string, status crl.Status, limit int) ([]*crl.CRL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*crl.CRL
	err := s.db.View(func(tx *bbolt.Tx) error {
		prefix := []byte(caID + "/")
		cur := tx.Bucket(bucketByCA).Cursor()
		for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
			c, err := getCRL(tx, string(k[len(prefix):]))
			if err != nil {
				return err
			}
			if status != "" && c.Status != status {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LastCRLNumber returns the CA's committed CRL number high-water mark.
func (s *BoltStore) LastCRLNumber(ctx context.Context, caID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketNums).Get([]byte(caID)); data != nil {
			n = int64(binary.BigEndian.Uint64(data))
		}
		return nil
	})
	return n, err
}

// SweepExpired transitions CRLs past their nextUpdate to expired.
func (s *BoltStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		active := tx.Bucket(bucketActive)
		cur := tx.Bucket(bucketCRLs).Cursor()
		for k, data := cur.First(); k != nil; k, data = cur.Next() {
			var c crl.CRL
			if err := cbor.Unmarshal(data, &c); err != nil {
				return fmt.Errorf("decode CRL %s: %w", k, err)
			}
			if c.Status == crl.StatusExpired || !c.Expired(now) {
				continue
			}
			if c.Status == crl.StatusActive {
				if id := active.Get([]byte(c.CAID)); id != nil && string(id) == c.ID {
					if err := active.Delete([]byte(c.CAID)); err != nil {
						return err
					}
				}
			}
			c.Status = crl.StatusExpired
			if err := putCRL(tx, &c); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteExpiredBefore removes retired CRLs older than cutoff. The active
// CRL is always kept.
func (s *BoltStore) DeleteExpiredBefore(ctx context.Context, caID string, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		activeID := string(tx.Bucket(bucketActive).Get([]byte(caID)))
		byCA := tx.Bucket(bucketByCA)
		crls := tx.Bucket(bucketCRLs)

		prefix := []byte(caID + "/")
		var doomed []string
		cur := byCA.Cursor()
		for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
			id := string(k[len(prefix):])
			if id == activeID {
				continue
			}
			c, err := getCRL(tx, id)
			if err != nil {
				// A record that no longer decodes must not block the
				// rest of the cleanup run.
				slog.Warn("cleanup: skipping unreadable CRL record", "ca", caID, "crl", id, "error", err)
				continue
			}
			if c.Status == crl.StatusActive || !c.NextUpdate.Before(cutoff) {
				continue
			}
			doomed = append(doomed, id)
		}
		for _, id := range doomed {
			if err := crls.Delete([]byte(id)); err != nil {
				return err
			}
			if err := byCA.Delete(caKey(caID, id)); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SavePoint creates or replaces a distribution point record.
func (s *BoltStore) SavePoint(ctx context.Context, p *crl.DistributionPoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encMode.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode point %s: %w", p.ID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketPoints).Put([]byte(p.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketPtByCA).Put(caKey(p.CAID, p.ID), nil)
	})
}

// GetPoint returns the distribution point by ID.
func (s *BoltStore) GetPoint(ctx context.Context, id string) (*crl.DistributionPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p crl.DistributionPoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPoints).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("point %s: %w", id, ErrNotFound)
		}
		return cbor.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPoints returns the CA's points ordered by priority, then ID.
func (s *BoltStore) ListPoints(ctx context.Context, caID string) ([]*crl.DistributionPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*crl.DistributionPoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		prefix := []byte(caID + "/")
		points := tx.Bucket(bucketPoints)
		cur := tx.Bucket(bucketPtByCA).Cursor()
		for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
			data := points.Get(k[len(prefix):])
			if data == nil {
				continue
			}
			var p crl.DistributionPoint
			if err := cbor.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode point %s: %w", k, err)
			}
			out = append(out, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortPoints(out)
	return out, nil
}

// RecordPointOutcome updates a point's publication counters.
func (s *BoltStore) RecordPointOutcome(ctx context.Context, pointID, crlID string, ok bool, at time.Time, maxRetries int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPoints)
		data := bucket.Get([]byte(pointID))
		if data == nil {
			return fmt.Errorf("point %s: %w", pointID, ErrNotFound)
		}
		var p crl.DistributionPoint
		if err := cbor.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode point %s: %w", pointID, err)
		}
		applyOutcome(&p, crlID, ok, at, maxRetries)
		updated, err := encMode.Marshal(&p)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(pointID), updated)
	})
}

func sortPoints(points []*crl.DistributionPoint) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].Priority != points[j].Priority {
			return points[i].Priority < points[j].Priority
		}
		return points[i].ID < points[j].ID
	})
}
