package visitor

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"visitor-beacon-api/internal/classify"
	"visitor-beacon-api/internal/geo"
	"visitor-beacon-api/internal/logx"
	"visitor-beacon-api/internal/metrics"
)

var visitorLogger = logx.GetScope("visitor")

const (
	defaultWriteTimeout = 3 * time.Second
	defaultOnlineWindow = 5 * time.Minute
	sideEffectTimeout   = 5 * time.Second
	fanOutShards        = 16
	fanOutQueueSize     = 256
)

// GeoResolver maps an IP to a location. Implementations must not fail.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) geo.Location
}

// Publisher receives one message per recorded beacon.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Indexer keeps a searchable copy of the latest visitor state.
type Indexer interface {
	IndexVisitor(ctx context.Context, v *Visitor) error
}

type Options struct {
	Publisher    Publisher
	Indexer      Indexer
	WriteTimeout time.Duration
	OnlineWindow time.Duration
}

// Service runs the ingestion pipeline: validation, bot filtering, parallel
// enrichment, the atomic store write, then best-effort fan-out.
type Service struct {
	store *Store
	geo   GeoResolver
	pub   Publisher
	idx   Indexer

	writeTimeout atomic.Int64
	onlineWindow atomic.Int64

	mu      sync.RWMutex
	closed  bool
	shards  []chan fanOutJob
	workers sync.WaitGroup
	wg      sync.WaitGroup // queued and in-flight jobs
}

func NewService(store *Store, resolver GeoResolver, opts Options) *Service {
	s := &Service{store: store, geo: resolver, pub: opts.Publisher, idx: opts.Indexer}
	s.SetWriteTimeout(opts.WriteTimeout)
	s.SetOnlineWindow(opts.OnlineWindow)
	if s.pub != nil || s.idx != nil {
		s.shards = make([]chan fanOutJob, fanOutShards)
		for i := range s.shards {
			s.shards[i] = make(chan fanOutJob, fanOutQueueSize)
			s.workers.Add(1)
			go s.runShard(s.shards[i])
		}
	}
	return s
}

func (s *Service) SetWriteTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultWriteTimeout
	}
	s.writeTimeout.Store(int64(d))
}

func (s *Service) SetOnlineWindow(d time.Duration) {
	if d <= 0 {
		d = defaultOnlineWindow
	}
	s.onlineWindow.Store(int64(d))
}

func (s *Service) OnlineWindow() time.Duration {
	return time.Duration(s.onlineWindow.Load())
}

// Ingest applies one beacon. Bot traffic returns an ignored Result without
// touching the store. Only validation and storage failures are errors;
// enrichment problems degrade to sentinel values.
func (s *Service) Ingest(ctx context.Context, b Beacon) (Result, error) {
	if strings.TrimSpace(b.VisitorID) == "" {
		metrics.VisitorEvents.WithLabelValues("unknown", "invalid").Inc()
		return Result{}, ErrMissingVisitorID
	}
	typ, err := ParseEventType(b.Type)
	if err != nil {
		metrics.VisitorEvents.WithLabelValues("unknown", "invalid").Inc()
		return Result{}, err
	}
	if classify.IsBot(b.UserAgent) {
		metrics.VisitorEvents.WithLabelValues(string(typ), "bot").Inc()
		return Result{Ignored: true}, nil
	}

	ev := s.enrich(ctx, b, typ)

	writeCtx, cancel := context.WithTimeout(ctx, time.Duration(s.writeTimeout.Load()))
	defer cancel()
	start := time.Now()
	v, err := s.store.Record(writeCtx, ev)
	metrics.VisitorWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VisitorEvents.WithLabelValues(string(typ), "error").Inc()
		visitorLogger.Error("record visitor failed", zap.String("visitor_id", b.VisitorID), zap.Error(err))
		return Result{}, err
	}
	metrics.VisitorEvents.WithLabelValues(string(typ), "recorded").Inc()

	s.fanOut(typ, v)
	return Result{Visitor: v}, nil
}

func (s *Service) enrich(ctx context.Context, b Beacon, typ EventType) Event {
	ev := Event{
		VisitorID:   b.VisitorID,
		Type:        typ,
		IP:          b.IP,
		UserAgent:   b.UserAgent,
		CurrentPage: b.CurrentPage,
		Referrer:    b.Referrer,
	}
	// Each goroutine owns distinct fields of ev; none of them fail.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ev.Location = s.geo.Resolve(gctx, b.IP)
		return nil
	})
	g.Go(func() error {
		ev.Agent = classify.ParseUserAgent(b.UserAgent)
		return nil
	})
	g.Go(func() error {
		ev.Source = classify.ClassifySource(b.Referrer, b.CurrentPage)
		ev.UTM = classify.ExtractUTM(b.CurrentPage)
		return nil
	})
	_ = g.Wait()
	return ev
}

// Online reports visitors seen within the configured window.
func (s *Service) Online(ctx context.Context) (Online, error) {
	out, err := s.store.Online(ctx, s.OnlineWindow())
	if err != nil {
		return out, err
	}
	metrics.OnlineVisitors.WithLabelValues(classify.DeviceDesktop).Set(float64(out.Desktop))
	metrics.OnlineVisitors.WithLabelValues(classify.DeviceMobile).Set(float64(out.Mobile))
	metrics.OnlineVisitors.WithLabelValues(classify.DeviceTablet).Set(float64(out.Tablet))
	return out, nil
}

// Wait blocks until queued and in-flight fan-out work has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

type eventMessage struct {
	EventID    string    `json:"event_id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Visitor    *Visitor  `json:"visitor"`
}

func routingKey(t EventType) string {
	return "visitor." + string(t)
}

type fanOutJob struct {
	typ     EventType
	visitor Visitor
}

func shardOf(visitorID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(visitorID))
	return int(h.Sum32() % uint32(n))
}

// fanOut queues a recorded visitor for publishing and indexing off the
// request path. Jobs for one visitor always land on the same worker, so
// sinks see that visitor's snapshots in write order. A full queue drops
// the job.
func (s *Service) fanOut(typ EventType, v *Visitor) {
	if len(s.shards) == 0 {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	select {
	case s.shards[shardOf(v.ID, len(s.shards))] <- fanOutJob{typ: typ, visitor: *v}:
	default:
		s.wg.Done()
		metrics.SideEffectErrors.WithLabelValues("queue").Inc()
		visitorLogger.Warn("fan-out queue full, dropping visitor event", zap.String("visitor_id", v.ID))
	}
}

func (s *Service) runShard(jobs <-chan fanOutJob) {
	defer s.workers.Done()
	for job := range jobs {
		s.deliver(job)
		s.wg.Done()
	}
}

// deliver logs and counts failures, never returns them.
func (s *Service) deliver(job fanOutJob) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	v := &job.visitor
	if s.pub != nil {
		if err := s.publish(ctx, job.typ, v); err != nil {
			metrics.SideEffectErrors.WithLabelValues("mq").Inc()
			visitorLogger.Warn("publish visitor event failed", zap.String("visitor_id", v.ID), zap.Error(err))
		}
	}
	if s.idx != nil {
		if err := s.idx.IndexVisitor(ctx, v); err != nil {
			metrics.SideEffectErrors.WithLabelValues("search").Inc()
			visitorLogger.Warn("index visitor failed", zap.String("visitor_id", v.ID), zap.Error(err))
		}
	}
}

// Close stops accepting fan-out work, drains the queues and stops the
// workers. Ingest keeps recording after Close but no longer fans out.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, ch := range s.shards {
		close(ch)
	}
	s.mu.Unlock()
	s.workers.Wait()
}

func (s *Service) publish(ctx context.Context, typ EventType, v *Visitor) error {
	body, err := json.Marshal(eventMessage{
		EventID:    uuid.NewString(),
		Type:       typ,
		OccurredAt: v.LastSeen,
		Visitor:    v,
	})
	if err != nil {
		return fmt.Errorf("encode visitor event: %w", err)
	}
	return s.pub.Publish(ctx, routingKey(typ), body)
}
