package mock

import (
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/vulnscan/vscan"
)

// ResultStore keeps results in memory
type ResultStore struct {
	mu      sync.Mutex
	results map[string]*vscan.ScanResult
	order   []string

	InitCalled  bool
	SaveCalled  bool
	CloseCalled bool
	SaveFn      func(result *vscan.ScanResult) error
}

// MakeMockResultStore that saves into memory
func MakeMockResultStore() *ResultStore {
	s := &ResultStore{results: make(map[string]*vscan.ScanResult)}
	s.SaveFn = func(result *vscan.ScanResult) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exist := s.results[result.ID]; !exist {
			s.order = append(s.order, result.ID)
		}
		s.results[result.ID] = result
		return nil
	}
	return s
}

func (s *ResultStore) Init() error {
	s.InitCalled = true
	return nil
}

func (s *ResultStore) Save(result *vscan.ScanResult) error {
	s.SaveCalled = true
	return s.SaveFn(result)
}

func (s *ResultStore) Get(id string) (*vscan.ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.results[id]; ok {
		return r, nil
	}
	return nil, errors.New("not found")
}

func (s *ResultStore) List() ([]*vscan.ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]*vscan.ScanResult, 0, len(s.order))
	for _, id := range s.order {
		results = append(results, s.results[id])
	}
	return results, nil
}

func (s *ResultStore) Close() error {
	s.CloseCalled = true
	return nil
}
