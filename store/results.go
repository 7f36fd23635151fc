package store

import (
	"encoding/binary"
	"os"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gitlab.com/vulnscan/vscan"
)

// ErrNotFound is returned by Get for unknown scan ids
var ErrNotFound = errors.New("scan result not found")

var _ vscan.ResultStorer = (*ResultStore)(nil)

// ResultStore saves scan results in badger, keyed by scan id
type ResultStore struct {
	Store    *badger.DB
	filepath string
}

// NewResultStore at filepath
func NewResultStore(filepath string) *ResultStore {
	return &ResultStore{filepath: filepath}
}

// Init opens (or creates) the result store
func (s *ResultStore) Init() error {
	var err error

	if err = os.MkdirAll(s.filepath, 0700); err != nil {
		return err
	}

	opts := badger.DefaultOptions(s.filepath).WithLogger(nil)
	s.Store, err = badger.Open(opts)

	if errors.Is(err, badger.ErrTruncateNeeded) {
		log.Warn().Msg("there was a failure re-opening database, trying to recover")
		opts.Truncate = true
		s.Store, err = badger.Open(opts)
	}
	return err
}

// startedKey orders results by start time then id
func startedKey(result *vscan.ScanResult) []byte {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(result.StartedAt.UnixNano()))
	return MakeKey(append(ts, []byte(result.ID)...), startedPredicate)
}

// Save the result, overwriting any result with the same id
func (s *ResultStore) Save(result *vscan.ScanResult) error {
	if result.ID == "" {
		return errors.New("result has no id")
	}
	bytez, err := EncodeResult(result)
	if err != nil {
		return errors.Wrap(err, "encoding result")
	}

	return s.Store.Update(func(txn *badger.Txn) error {
		if err := txn.Set(MakeKey([]byte(result.ID), resultPredicate), bytez); err != nil {
			return err
		}
		return txn.Set(startedKey(result), []byte(result.ID))
	})
}

// Get the result for id
func (s *ResultStore) Get(id string) (*vscan.ScanResult, error) {
	var result *vscan.ScanResult
	err := s.Store.View(func(txn *badger.Txn) error {
		var err error
		result, err = getResult(txn, []byte(id))
		return err
	})
	return result, err
}

func getResult(txn *badger.Txn, id []byte) (*vscan.ScanResult, error) {
	item, err := txn.Get(MakeKey(id, resultPredicate))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.Wrap(ErrNotFound, string(id))
	}
	if err != nil {
		return nil, err
	}

	var result *vscan.ScanResult
	err = item.Value(func(val []byte) error {
		result, err = DecodeResult(val)
		return err
	})
	return result, err
}

// List every result, oldest first
func (s *ResultStore) List() ([]*vscan.ScanResult, error) {
	results := make([]*vscan.ScanResult, 0)
	prefix := MakeKey([]byte{}, startedPredicate)

	err := s.Store.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seen := make(map[string]struct{})
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			// a result saved twice has two started keys
			if _, ok := seen[string(id)]; ok {
				continue
			}
			seen[string(id)] = struct{}{}

			result, err := getResult(txn, id)
			if err != nil {
				log.Warn().Err(err).Str("scan_id", string(id)).Msg("skipping unreadable result")
				continue
			}
			results = append(results, result)
		}
		return nil
	})
	return results, err
}

// Close the result store
func (s *ResultStore) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}
