package zonestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/zonesync"
)

// FormatVersion is the current version of the database layout.
const FormatVersion = 1

var (
	bucketMeta      = []byte("meta")
	bucketZones     = []byte("zones")
	bucketConflicts = []byte("conflicts")

	keyVersion = []byte("version")
)

// Store errors.
var (
	ErrClosed          = errors.New("zone store is closed")
	ErrVersionMismatch = errors.New("unsupported zone store version")
)

var _ zonesync.Store = (*Store)(nil)

// Store is a bbolt-backed zonesync.Store.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open zone store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketZones, bucketConflicts} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyVersion); v != nil {
			if got := binary.BigEndian.Uint64(v); got != FormatVersion {
				return fmt.Errorf("%w: %d", ErrVersionMismatch, got)
			}
			return nil
		}
		return meta.Put(keyVersion, itob(FormatVersion))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s.db == nil {
		return ""
	}
	return s.db.Path()
}

// SaveZone stores zone as the latest snapshot for its id. A snapshot with
// a lower version than the stored one is ignored.
func (s *Store) SaveZone(zone *wire.Zone) error {
	if s.db == nil {
		return ErrClosed
	}
	if zone == nil || zone.ID == "" {
		return zonesync.ErrMissingZoneID
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketZones)
		key := []byte(zone.ID)
		if prev := b.Get(key); prev != nil && zone.Version > 0 {
			var old wire.Zone
			if err := wire.Unmarshal(prev, &old); err == nil && old.Version > zone.Version {
				return nil
			}
		}
		data, err := wire.Marshal(zone)
		if err != nil {
			return fmt.Errorf("failed to encode zone %s: %w", zone.ID, err)
		}
		return b.Put(key, data)
	})
}

// LoadZone returns the stored snapshot of a zone, or nil.
func (s *Store) LoadZone(id string) (*wire.Zone, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var zone *wire.Zone
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketZones).Get([]byte(id))
		if data == nil {
			return nil
		}
		zone = &wire.Zone{}
		if err := wire.Unmarshal(data, zone); err != nil {
			return fmt.Errorf("failed to decode zone %s: %w", id, err)
		}
		return nil
	})
	return zone, err
}

// LoadZones returns every stored snapshot ordered by zone id.
func (s *Store) LoadZones() ([]*wire.Zone, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var zones []*wire.Zone
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketZones).ForEach(func(k, v []byte) error {
			z := &wire.Zone{}
			if err := wire.Unmarshal(v, z); err != nil {
				return fmt.Errorf("failed to decode zone %s: %w", k, err)
			}
			zones = append(zones, z)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return zones, nil
}

// DeleteZone removes the stored snapshot of a zone.
func (s *Store) DeleteZone(id string) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketZones).Delete([]byte(id))
	})
}

// conflictRecord is the stored form of a zonesync.ZoneConflict.
type conflictRecord struct {
	ZoneID       string        `json:"zoneId"`
	LocalChange  wire.ZoneDiff `json:"local"`
	ServerChange wire.ZoneDiff `json:"server"`
	Resolution   string        `json:"resolution"`
	Timestamp    int64         `json:"timestamp"`
}

// SaveConflict appends c to the conflict history.
func (s *Store) SaveConflict(c zonesync.ZoneConflict) error {
	if s.db == nil {
		return ErrClosed
	}
	rec := conflictRecord{
		ZoneID:       c.ZoneID,
		LocalChange:  c.LocalChange,
		ServerChange: c.ServerChange,
		Resolution:   string(c.Resolution),
		Timestamp:    c.Timestamp.UnixNano(),
	}
	data, err := wire.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode conflict: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConflicts)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

// Conflicts returns the stored conflict history, oldest first.
func (s *Store) Conflicts() ([]zonesync.ZoneConflict, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var out []zonesync.ZoneConflict
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).ForEach(func(k, v []byte) error {
			var rec conflictRecord
			if err := wire.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode conflict %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, zonesync.ZoneConflict{
				ZoneID:       rec.ZoneID,
				LocalChange:  rec.LocalChange,
				ServerChange: rec.ServerChange,
				Resolution:   zonesync.Resolution(rec.Resolution),
				Timestamp:    time.Unix(0, rec.Timestamp),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PruneConflicts removes conflicts recorded before t and returns how many
// were removed.
func (s *Store) PruneConflicts(before time.Time) (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	cutoff := before.UnixNano()
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConflicts)
		var stale [][]byte
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec conflictRecord
			if err := wire.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode conflict %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if rec.Timestamp < cutoff {
				stale = append(stale, slices.Clone(k))
			}
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	return n, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
