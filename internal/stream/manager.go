package stream

import (
	"context"
	"fmt"
	"sync"

	"marketfeed/config"
	"marketfeed/internal/metrics"
	"marketfeed/internal/models"
	"marketfeed/logger"
)

// Manager owns the streaming side: it partitions topics into connection
// batches, runs one Conn per batch and fans received frames out to
// per-symbol consumers so a slow symbol never blocks the others.
type Manager struct {
	cfg     *config.Config
	router  *Router
	conns   []*Conn
	frames  chan models.StreamFrame
	queues  map[string]chan models.StreamFrame
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewManager(cfg *config.Config, router *Router) *Manager {
	return &Manager{
		cfg:    cfg,
		router: router,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

// Start opens the connections and launches the routing pipeline.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("stream manager already running")
	}
	m.running = true
	m.ctx = ctx
	m.mu.Unlock()

	log := m.log.WithComponent("stream_manager").WithFields(logger.Fields{"operation": "start"})

	topics := buildTopics(m.cfg)
	batches := batchTopics(topics, m.cfg.Stream.TopicBatchSize)

	m.frames = make(chan models.StreamFrame, m.cfg.Stream.QueueBuffer)
	m.queues = make(map[string]chan models.StreamFrame, len(m.cfg.Symbols))
	for _, symbol := range m.cfg.Symbols {
		m.queues[symbol] = make(chan models.StreamFrame, m.cfg.Stream.QueueBuffer)
		m.wg.Add(1)
		go m.consume(symbol, m.queues[symbol])
	}

	conns := make([]*Conn, 0, len(batches))
	for _, batch := range batches {
		conns = append(conns, newConn(m.cfg.Stream, m.cfg.Exchange.WsURL, batch, m.frames))
	}
	m.mu.Lock()
	m.conns = conns
	m.mu.Unlock()

	for _, conn := range conns {
		m.wg.Add(1)
		go func(c *Conn) {
			defer m.wg.Done()
			c.run(m.ctx)
		}(conn)
	}

	m.wg.Add(1)
	go m.route()

	log.WithFields(logger.Fields{
		"symbols":     len(m.cfg.Symbols),
		"topics":      len(topics),
		"connections": len(batches),
	}).Info("stream manager started")
	return nil
}

// Stop waits for connections and consumers to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.log.WithComponent("stream_manager").Info("stopping stream manager")
	m.wg.Wait()
	m.log.WithComponent("stream_manager").Info("stream manager stopped")
}

// route moves frames from the shared channel onto per-symbol queues. A full
// queue drops the frame so one stuck consumer cannot stall the connection
// read loops.
func (m *Manager) route() {
	defer m.wg.Done()

	log := m.log.WithComponent("stream_manager").WithFields(logger.Fields{"worker": "router"})
	for {
		select {
		case <-m.ctx.Done():
			return
		case frame := <-m.frames:
			topic, ok := parseTopic(frame.Topic)
			if !ok {
				continue
			}
			queue, known := m.queues[topic.Symbol]
			if !known {
				continue
			}
			select {
			case queue <- frame:
			default:
				metrics.IncrementQueueDropped(topic.Symbol)
				log.WithFields(logger.Fields{
					"symbol": topic.Symbol,
					"topic":  frame.Topic,
				}).Warn("symbol queue full, dropping frame")
			}
		}
	}
}

func (m *Manager) consume(symbol string, queue <-chan models.StreamFrame) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case frame := <-queue:
			m.router.Dispatch(frame)
		}
	}
}

// ConnStats is the observable state of one connection.
type ConnStats struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Topics int    `json:"topics"`
}

// Stats reports per-connection lifecycle state.
func (m *Manager) Stats() []ConnStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ConnStats, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, ConnStats{ID: c.id, State: c.State(), Topics: len(c.topics)})
	}
	return out
}
