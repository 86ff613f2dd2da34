package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryCounterStoreSuite struct {
	suite.Suite
	store *InMemoryCounterStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryCounterStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryCounterStoreSuite))
}

func (s *InMemoryCounterStoreSuite) SetupTest() {
	s.store = NewInMemoryCounterStore()
	s.ctx = context.Background()
	s.now = time.Unix(1700000000, 0)
	s.store.now = func() time.Time { return s.now }
}

func (s *InMemoryCounterStoreSuite) TestIncrement() {
	s.Run("starts at one and counts up", func() {
		for want := int64(1); want <= 3; want++ {
			count, err := s.store.Increment(s.ctx, "test:key:count")
			s.Require().NoError(err)
			s.Equal(want, count)
		}
	})

	s.Run("keys are independent", func() {
		_, err := s.store.Increment(s.ctx, "test:key:a")
		s.Require().NoError(err)

		count, err := s.store.Increment(s.ctx, "test:key:b")
		s.Require().NoError(err)
		s.Equal(int64(1), count)
	})
}

func (s *InMemoryCounterStoreSuite) TestExpire() {
	s.Run("counter revives at zero after ttl", func() {
		key := "test:key:ttl"
		_, err := s.store.Increment(s.ctx, key)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Expire(s.ctx, key, time.Minute))

		count, err := s.store.Increment(s.ctx, key)
		s.Require().NoError(err)
		s.Equal(int64(2), count)

		s.now = s.now.Add(time.Minute)

		count, err = s.store.Increment(s.ctx, key)
		s.Require().NoError(err)
		s.Equal(int64(1), count)
	})

	s.Run("counter without ttl never expires", func() {
		key := "test:key:no-ttl"
		_, err := s.store.Increment(s.ctx, key)
		s.Require().NoError(err)

		s.now = s.now.Add(24 * time.Hour)

		count, err := s.store.Increment(s.ctx, key)
		s.Require().NoError(err)
		s.Equal(int64(2), count)
	})

	s.Run("expire on unknown key is a no-op", func() {
		s.NoError(s.store.Expire(s.ctx, "test:key:missing", time.Minute))
	})
}

func (s *InMemoryCounterStoreSuite) TestLen() {
	_, err := s.store.Increment(s.ctx, "test:key:live")
	s.Require().NoError(err)
	_, err = s.store.Increment(s.ctx, "test:key:dying")
	s.Require().NoError(err)
	s.Require().NoError(s.store.Expire(s.ctx, "test:key:dying", time.Second))

	s.Equal(2, s.store.Len())

	s.now = s.now.Add(2 * time.Second)
	s.Equal(1, s.store.Len())
}

func (s *InMemoryCounterStoreSuite) TestConcurrent() {
	key := "test:key:concurrent"
	var wg sync.WaitGroup

	for range 8 {
		wg.Go(func() {
			for range 100 {
				_, err := s.store.Increment(s.ctx, key)
				s.Require().NoError(err)
			}
		})
	}

	wg.Wait()
	count, err := s.store.Increment(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(int64(801), count)
}
