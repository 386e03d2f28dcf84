package ctfbot

import (
	"fmt"
	"hash/crc32"
	"math"
	"sync"

	"github.com/weixuan0110/ctfbot/chat"
)

type partitionRouter struct {
	// Logger
	log SLogger

	// partitions keyed by the hash of the channel id. Each partition tracks the lanes of its channels
	partitions []*partition

	// backlog is the maximum number of messages waiting in a lane
	backlog int

	hashMask int
	process  func(m chat.Message)

	// mu guards closed so that no lane is started after stop
	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup

	*instrumenter
}

// partition holds the lanes of the channels that hash to it
type partition struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

// lane holds the pending messages of a single channel. A lane has a worker for as long as it has
// messages so that a slow handler only delays its own channel
type lane struct {
	pending []chat.Message
}

func newPartitionRouter(partitionCount int, backlog int, log SLogger, instrumenter *instrumenter) (pr *partitionRouter, err error) {
	if !isPowerOfTwo(partitionCount) {
		return nil, fmt.Errorf("A partition router can only work with a partitionCount that is a power of two but was [%d]", partitionCount)
	}

	pr = new(partitionRouter)
	pr.partitions = make([]*partition, partitionCount)
	for i := range pr.partitions {
		pr.partitions[i] = &partition{lanes: make(map[string]*lane)}
	}
	pr.backlog = backlog
	pr.hashMask = hashMask(partitionCount)
	pr.log = log
	pr.instrumenter = instrumenter

	return pr, nil
}

// start sets the function invoked sequentially for the messages of each channel
func (pr *partitionRouter) start(process func(m chat.Message)) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	pr.process = process
}

// stop refuses new messages and waits for the lanes to drain
func (pr *partitionRouter) stop() {
	pr.mu.Lock()
	pr.closed = true
	pr.mu.Unlock()

	pr.workers.Wait()
}

// route appends the message to the lane of its channel, starting a worker for the lane if it was
// idle. Messages routed after stop or beyond the backlog of a lane are dropped
func (pr *partitionRouter) route(m chat.Message) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	if pr.closed || pr.process == nil {
		pr.log.Debugf("Dropping message [%s] received while not running", m.ID)
		return
	}

	p := pr.partitions[pr.partitionForChannel(m.ChannelID)]

	p.mu.Lock()
	defer p.mu.Unlock()

	l, active := p.lanes[m.ChannelID]
	if !active {
		l = new(lane)
		p.lanes[m.ChannelID] = l
	}

	if pr.backlog > 0 && len(l.pending) >= pr.backlog {
		pr.log.Printf("Dropping message [%s], channel [%s] already has [%d] messages waiting", m.ID, m.ChannelID, len(l.pending))
		pr.coreMetrics.msgsDropped.Inc()
		return
	}

	l.pending = append(l.pending, m)
	if !active {
		pr.log.Debugf("Starting lane of channel [%s]", m.ChannelID)
		pr.workers.Add(1)
		go pr.drain(p, m.ChannelID, l)
	}
}

// drain processes the messages of a lane in order and retires the lane once it's empty
func (pr *partitionRouter) drain(p *partition, channelID string, l *lane) {
	defer pr.workers.Done()

	for {
		p.mu.Lock()
		if len(l.pending) == 0 {
			delete(p.lanes, channelID)
			p.mu.Unlock()
			return
		}

		m := l.pending[0]
		l.pending = l.pending[1:]
		p.mu.Unlock()

		pr.process(m)
	}
}

// activeLanes returns the number of channels with a running worker
func (pr *partitionRouter) activeLanes() (count int) {
	for _, p := range pr.partitions {
		p.mu.Lock()
		count += len(p.lanes)
		p.mu.Unlock()
	}

	return count
}

// partitionForChannel returns the partition index for a channel ID
func (pr *partitionRouter) partitionForChannel(channelID string) (partition int) {
	res := crc32.ChecksumIEEE([]byte(channelID))

	// Keep only the rightmost bits so we have a max equal to the partition count
	return int(res) & pr.hashMask
}

// isPowerOfTwo returns true if val is a power of two or false if not
func isPowerOfTwo(val int) bool {
	return (val > 0) && (val&(val-1)) == 0
}

// hashMask builds a mask for a partitionCount (which should be a power of two) to get a hash value
// that is in the range of the number of partitions we have
func hashMask(partitionCount int) int {
	maskSize := int(math.Log2(float64(partitionCount)))
	mask := 0
	for i := 0; i < maskSize; i++ {
		mask = mask<<1 | 1
	}

	return mask
}
