package ctfbot

import (
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weixuan0110/ctfbot/chat"
)

func newTestInstrumenter(t *testing.T) *instrumenter {
	ins, err := newInstrumenter("test", prometheus.NewRegistry())
	require.NoError(t, err)

	return ins
}

func newTestRouterLogger() SLogger {
	return NewSLogger(log.New(io.Discard, "", 0), true)
}

func TestNewPartitioner(t *testing.T) {
	tests := map[string]struct {
		partitionCount int
		expectedError  string
	}{
		"InvalidZeroPartitions": {
			partitionCount: 0,
			expectedError:  "A partition router can only work with a partitionCount that is a power of two but was [0]",
		},
		"InvalidNegativePartitions": {
			partitionCount: -4,
			expectedError:  "A partition router can only work with a partitionCount that is a power of two but was [-4]",
		},
		"ValidOnePartition": {
			partitionCount: 1,
		},
		"ValidTwoPartitions": {
			partitionCount: 2,
		},
		"Invalid3Partitions": {
			partitionCount: 3,
			expectedError:  "A partition router can only work with a partitionCount that is a power of two but was [3]",
		},
		"Valid4Partitions": {
			partitionCount: 4,
		},
		"Invalid5Partitions": {
			partitionCount: 5,
			expectedError:  "A partition router can only work with a partitionCount that is a power of two but was [5]",
		},
		"Valid16Partitions": {
			partitionCount: 16,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			pr, err := newPartitionRouter(tc.partitionCount, 1, nil, newTestInstrumenter(t))

			if tc.expectedError == "" {
				assert.NoError(t, err)
				assert.NotNil(t, pr)
				assert.Len(t, pr.partitions, tc.partitionCount)
			} else {
				assert.EqualError(t, err, tc.expectedError)
			}
		})
	}
}

func TestConsistentHashing(t *testing.T) {
	channelID := "1251192205381472296"

	for i := 0; i < 16; i++ {
		partitionCount := int(math.Pow(float64(2), float64(i)))
		name := fmt.Sprintf("With_%d_Partitions", partitionCount)

		t.Run(name, func(t *testing.T) {
			pr, _ := newPartitionRouter(partitionCount, 1, newTestRouterLogger(), newTestInstrumenter(t))
			partition := pr.partitionForChannel(channelID)

			for i := 0; i < 100; i++ {
				assert.Equal(t, partition, pr.partitionForChannel(channelID))
			}
		})
	}
}

func TestHashDistribution(t *testing.T) {
	// Generate channel IDs that are all different to validate the uniform distribution across partitions
	channelIDs := make([]string, 0)
	for i := 0; i < 500000; i++ {
		suffix := fmt.Sprintf("19292929%d.214", i*1000)
		channelIDs = append(channelIDs, "general"+suffix)
		channelIDs = append(channelIDs, "général"+suffix)
	}

	channelCount := len(channelIDs)

	for i := 0; i < 10; i++ {
		partitionCount := int(math.Pow(float64(2), float64(i)))
		name := fmt.Sprintf("With_%d_Partitions", partitionCount)
		partitionHitCount := make([]int, partitionCount)

		t.Run(name, func(t *testing.T) {
			pr, _ := newPartitionRouter(partitionCount, 1, newTestRouterLogger(), newTestInstrumenter(t))

			for _, channelID := range channelIDs {
				partition := pr.partitionForChannel(channelID)
				partitionHitCount[partition] = partitionHitCount[partition] + 1
			}

			expectedHitsPerPartition := float64(channelCount) / float64(partitionCount)
			deviationTolerance := 3.0 * expectedHitsPerPartition / 100
			for partition, hitCount := range partitionHitCount {
				assert.InDeltaf(t, expectedHitsPerPartition, hitCount, deviationTolerance, "All partitions should have received about [%.1f] hits but partition [%d] got [%d]", expectedHitsPerPartition, partition, hitCount)
			}
		})
	}
}

func TestHashMask(t *testing.T) {
	for i := 0; i < 16; i++ {
		partitionCount := int(math.Pow(float64(2), float64(i)))
		name := fmt.Sprintf("With_%d_Partitions", partitionCount)

		t.Run(name, func(t *testing.T) {
			mask := hashMask(partitionCount)
			assert.Equal(t, partitionCount-1, mask)
		})
	}
}

func TestRouteKeepsChannelOrder(t *testing.T) {
	pr, err := newPartitionRouter(4, 0, newTestRouterLogger(), newTestInstrumenter(t))
	require.NoError(t, err)

	var mu sync.Mutex
	byChannel := make(map[string][]string)
	pr.start(func(m chat.Message) {
		mu.Lock()
		defer mu.Unlock()
		byChannel[m.ChannelID] = append(byChannel[m.ChannelID], m.ID)
	})

	expected := make(map[string][]string)
	for i := 0; i < 50; i++ {
		for _, c := range []string{"C1", "C2", "C3"} {
			id := fmt.Sprintf("%s-%d", c, i)
			expected[c] = append(expected[c], id)
			pr.route(chat.Message{ID: id, ChannelID: c})
		}
	}

	pr.stop()

	assert.Equal(t, expected, byChannel)
}

func TestRouteAfterStopIsDropped(t *testing.T) {
	pr, err := newPartitionRouter(2, 1, newTestRouterLogger(), newTestInstrumenter(t))
	require.NoError(t, err)

	processed := 0
	pr.start(func(m chat.Message) {
		processed++
	})
	pr.stop()
	pr.stop()

	assert.NotPanics(t, func() {
		pr.route(chat.Message{ID: "late", ChannelID: "C1"})
	})
	assert.Equal(t, 0, processed)
}

func TestSlowChannelDoesNotDelayOtherChannels(t *testing.T) {
	// A single partition makes both channels share it
	pr, err := newPartitionRouter(1, 10, newTestRouterLogger(), newTestInstrumenter(t))
	require.NoError(t, err)

	release := make(chan struct{})
	processed := make(chan string, 10)
	pr.start(func(m chat.Message) {
		if m.ChannelID == "scan" {
			<-release
		}
		processed <- m.ID
	})

	pr.route(chat.Message{ID: "writeup-scan", ChannelID: "scan"})
	pr.route(chat.Message{ID: "question", ChannelID: "general"})

	select {
	case id := <-processed:
		assert.Equal(t, "question", id)
	case <-time.After(5 * time.Second):
		t.Fatal("message of an unrelated channel wasn't processed while another channel was busy")
	}

	close(release)
	pr.stop()

	assert.Equal(t, "writeup-scan", <-processed)
	assert.Equal(t, 0, pr.activeLanes())
}

func TestRouteDropsMessagesBeyondBacklog(t *testing.T) {
	pr, err := newPartitionRouter(2, 3, newTestRouterLogger(), newTestInstrumenter(t))
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var ids []string
	pr.start(func(m chat.Message) {
		if m.ID == "0" {
			close(started)
			<-release
		}
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, m.ID)
	})

	pr.route(chat.Message{ID: "0", ChannelID: "C1"})
	<-started
	for i := 1; i <= 5; i++ {
		pr.route(chat.Message{ID: fmt.Sprintf("%d", i), ChannelID: "C1"})
	}

	close(release)
	pr.stop()

	assert.Equal(t, []string{"0", "1", "2", "3"}, ids)
	assert.Equal(t, 2.0, testutil.ToFloat64(pr.coreMetrics.msgsDropped))
}
