package plugins_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/weixuan0110/ctfbot/ctftime"
)

// mockFeed holds a mock to implement a mock of ctftime.Feed
type mockFeed struct {
	mock.Mock
}

// Event mocks an implementation of Event
func (mf *mockFeed) Event(ctx context.Context, id string) (e ctftime.Event, err error) {
	args := mf.Called(id)

	return args.Get(0).(ctftime.Event), args.Error(1)
}

// Upcoming mocks an implementation of Upcoming
func (mf *mockFeed) Upcoming(ctx context.Context, from time.Time, window time.Duration, limit int) (events []ctftime.Event, err error) {
	args := mf.Called(from, window, limit)

	return args.Get(0).([]ctftime.Event), args.Error(1)
}

// Image mocks an implementation of Image
func (mf *mockFeed) Image(ctx context.Context, url string) (dataURI string, err error) {
	args := mf.Called(url)

	return args.String(0), args.Error(1)
}
