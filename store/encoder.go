package store

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v4"
	"gitlab.com/vulnscan/vscan"
)

const (
	resultPredicate  = "scan"
	startedPredicate = "started"
)

// MakeKey of a predicate and id
func MakeKey(id []byte, predicate string) []byte {
	key := []byte(predicate)
	key = append(key, byte(':'))
	key = append(key, id...)
	return key
}

// GetID of key from a pred:key
func GetID(key []byte) []byte {
	split := bytes.SplitN(key, []byte(":"), 2)
	if len(split) == 1 {
		return []byte{}
	}
	return split[1]
}

// GetPredicate from pred:key
func GetPredicate(key []byte) []byte {
	split := bytes.SplitN(key, []byte(":"), 2)
	return split[0]
}

// EncodeResult into msgpack
func EncodeResult(result *vscan.ScanResult) ([]byte, error) {
	return msgpack.Marshal(result)
}

// DecodeResult from msgpack
func DecodeResult(bytez []byte) (*vscan.ScanResult, error) {
	result := &vscan.ScanResult{}
	if err := msgpack.Unmarshal(bytez, result); err != nil {
		return nil, err
	}
	return result, nil
}
