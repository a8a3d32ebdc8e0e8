package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-period-tracker/internal/auth"
	"github.com/i474232898/weather-period-tracker/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// It backs dry runs and tests.
type MemoryStore struct {
	mu sync.RWMutex

	// key: reading key, value: row
	rows   map[weather.ReadingKey]weather.Reading
	nextID int64
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[weather.ReadingKey]weather.Reading),
		now:  time.Now,
	}
}

// Exists reports whether the caller owns a row for key.
func (s *MemoryStore) Exists(_ context.Context, sess auth.Session, key weather.ReadingKey) (bool, error) {
	if err := requireSession(sess); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[normalizeKey(key)]
	return ok && r.UserID == sess.UserID, nil
}

// InsertIfAbsent stores r unless any row with the same key exists.
func (s *MemoryStore) InsertIfAbsent(_ context.Context, sess auth.Session, r weather.Reading) (bool, error) {
	if err := checkOwner(sess, r); err != nil {
		return false, err
	}
	r.Date = weather.CivilDate(r.Date)
	key := r.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.nextID++
	r.ID = s.nextID
	r.CreatedAt = s.now().UTC()
	s.rows[key] = r
	return true, nil
}

// List returns the caller's rows for date ordered by period.
func (s *MemoryStore) List(_ context.Context, sess auth.Session, date time.Time) ([]weather.Reading, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	day := weather.CivilDate(date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Reading
	for _, r := range s.rows {
		if r.UserID == sess.UserID && r.Date.Equal(day) {
			result = append(result, r)
		}
	}
	sortReadings(result)
	return result, nil
}

// Len returns the number of rows across all owners.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func normalizeKey(k weather.ReadingKey) weather.ReadingKey {
	k.Date = weather.CivilDate(k.Date)
	return k
}

func sortReadings(rs []weather.Reading) {
	rank := make(map[weather.Period]int, len(weather.Periods))
	for i, p := range weather.Periods {
		rank[p] = i
	}
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Date.Equal(rs[j].Date) {
			return rs[i].Date.Before(rs[j].Date)
		}
		if rs[i].Location != rs[j].Location {
			return rs[i].Location < rs[j].Location
		}
		return rank[rs[i].Period] < rank[rs[j].Period]
	})
}
