// Package viewer runs the broadcast server: a static endpoint serving the
// browser client and a websocket endpoint fanning scene changes out to every
// connected preview at a fixed tick rate.
package viewer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/miktos/realtime-viewer/internal/ports"
	"github.com/miktos/realtime-viewer/internal/scene"
	"github.com/miktos/realtime-viewer/internal/viewport"
)

// State is the server lifecycle phase.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

var (
	ErrAlreadyRunning = errors.New("viewer already running")
	ErrNotRunning     = errors.New("viewer not running")
	ErrUnknownObject  = errors.New("unknown object")
	ErrUnknownQuality = errors.New("unknown quality tier")
	ErrNoFrame        = errors.New("no frame posted by any client")
)

// tickBatchLimit bounds how many pending changes one tick may drain, so a
// burst of authoring edits cannot stall the loop.
const tickBatchLimit = 256

const bindAttempts = 3

// Config carries everything injected by the enclosing platform.
type Config struct {
	Host     string
	HTTPPort int // preferred static port
	WSPort   int // preferred channel port

	Width     int
	Height    int
	FPSTarget float64
	Quality   string

	SyncInterval time.Duration
	HistoryCap   int

	LayoutMode       string
	MouseSensitivity float64
	SyncCameras      bool

	// ReclaimPorts asks the allocator to terminate processes squatting on
	// the preferred ports before falling back to alternatives.
	ReclaimPorts bool

	// StaticHandler overrides the embedded frontend when set.
	StaticHandler http.Handler
}

type inboundMessage struct {
	client *client
	msg    ClientMessage
}

// Server owns the port pair, both endpoints, the hub goroutine, and the
// scene/viewport components. The hub goroutine is the only writer of the
// client table; everything else reaches it through channels.
type Server struct {
	cfg   Config
	alloc *ports.Allocator
	sync  *scene.Synchronizer
	views *viewport.Manager

	mu       sync.RWMutex
	state    State
	httpPort int
	wsPort   int
	quality  string
	fps      float64

	staticSrv *http.Server
	wsSrv     *http.Server

	clients     map[string]*client // hub goroutine only
	clientCount atomic.Int64
	register    chan *client
	unregister  chan *client
	inbound     chan inboundMessage
	control     chan func()
	done        chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	// fps window, hub goroutine only
	processed  int
	windowFrom time.Time

	stageMu sync.Mutex
	stage   scene.RawScene

	frameMu   sync.Mutex
	lastFrame []byte
}

// New builds a stopped server. provider may be nil when all scene data
// arrives through the platform API.
func New(cfg Config, provider scene.Provider) *Server {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 8080
	}
	if cfg.WSPort == 0 {
		cfg.WSPort = 8081
	}
	if cfg.FPSTarget <= 0 {
		cfg.FPSTarget = 30
	}
	if !qualityTiers[cfg.Quality] {
		cfg.Quality = "high"
	}

	return &Server{
		cfg:   cfg,
		alloc: ports.NewAllocator(),
		sync: scene.NewSynchronizer(scene.Config{
			Interval:   cfg.SyncInterval,
			HistoryCap: cfg.HistoryCap,
		}, provider),
		views: viewport.NewManager(viewport.Config{
			Width:            cfg.Width,
			Height:           cfg.Height,
			LayoutMode:       cfg.LayoutMode,
			MouseSensitivity: cfg.MouseSensitivity,
			SyncCameras:      cfg.SyncCameras,
		}),
		state:   StateStopped,
		quality: cfg.Quality,
	}
}

// Start brings up the port pair, both endpoints, the hub, and the sync loop.
// Any failure rolls back everything already started.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		s.teardown()
		s.setState(StateStopped)
		return err
	}

	s.setState(StateRunning)
	s.mu.RLock()
	log.Printf("[viewer] running: static http://%s:%d channel ws://%s:%d/ws",
		s.cfg.Host, s.httpPort, s.cfg.Host, s.wsPort)
	s.mu.RUnlock()
	return nil
}

func (s *Server) start(ctx context.Context) error {
	if s.cfg.ReclaimPorts {
		for _, port := range []int{s.cfg.HTTPPort, s.cfg.WSPort} {
			if s.alloc.IsAvailable(port, s.cfg.Host) {
				continue
			}
			if owner := ports.PortInfo(port); owner != nil {
				log.Printf("[viewer] preferred port %d held by pid %d (%s), reclaiming", port, owner.PID, owner.Name)
			}
			s.alloc.Reclaim(ctx, port, s.cfg.Host, false)
		}
	}

	httpPort, wsPort, err := s.alloc.AllocatePair(s.cfg.HTTPPort, s.cfg.WSPort, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("allocate port pair: %w", err)
	}
	s.mu.Lock()
	s.httpPort, s.wsPort = httpPort, wsPort
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.register = make(chan *client)
	s.unregister = make(chan *client)
	s.inbound = make(chan inboundMessage, 64)
	s.control = make(chan func(), 16)
	s.clients = make(map[string]*client)
	s.clientCount.Store(0)

	staticLn, httpPort, err := s.bind(ctx, httpPort, s.alloc.HTTPCandidates)
	if err != nil {
		return fmt.Errorf("static endpoint: %w", err)
	}
	wsLn, wsPort, err := s.bind(ctx, wsPort, s.alloc.WSCandidates)
	if err != nil {
		staticLn.Close()
		return fmt.Errorf("channel endpoint: %w", err)
	}
	s.mu.Lock()
	s.httpPort, s.wsPort = httpPort, wsPort
	s.mu.Unlock()

	s.staticSrv = &http.Server{Handler: s.staticMux()}
	s.wsSrv = &http.Server{Handler: s.channelMux()}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.staticSrv.Serve(staticLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[viewer] static endpoint: %v", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.wsSrv.Serve(wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[viewer] channel endpoint: %v", err)
		}
	}()

	s.wg.Add(1)
	go s.hub(ctx)

	s.sync.Start(ctx)
	return nil
}

// bind listens on port, retrying with a replacement when the bind races with
// another process grabbing the port between the availability probe and here.
func (s *Server) bind(ctx context.Context, port int, candidates []int) (net.Listener, int, error) {
	var ln net.Listener
	err := retry.New(
		retry.Attempts(bindAttempts),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	).Do(func() error {
		l, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(port)))
		if err == nil {
			ln = l
			return nil
		}
		log.Printf("[viewer] bind %d failed: %v", port, err)
		s.alloc.Release(port)
		replacement, ferr := s.alloc.FindAvailable(port+1, candidates, s.cfg.Host)
		if ferr != nil {
			return fmt.Errorf("bind %d: %v: %w", port, err, ferr)
		}
		port = replacement
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return ln, port, nil
}

// Stop tears everything down in reverse start order and releases the port
// pair. Safe to call when already stopped.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.teardown()
	s.setState(StateStopped)
	log.Printf("[viewer] stopped")
}

func (s *Server) teardown() {
	s.sync.Stop()

	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()
	if s.wsSrv != nil {
		s.wsSrv.Close()
		s.wsSrv = nil
	}
	if s.staticSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.staticSrv.Shutdown(ctx)
		cancel()
		s.staticSrv = nil
	}
	s.wg.Wait()
	s.cancel = nil

	s.mu.Lock()
	httpPort, wsPort := s.httpPort, s.wsPort
	s.httpPort, s.wsPort = 0, 0
	s.fps = 0
	s.mu.Unlock()
	if httpPort != 0 || wsPort != 0 {
		s.alloc.ReleasePair(httpPort, wsPort)
	}
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// hub is the single goroutine that owns the client table and drives the tick
// loop. Everything reaches it through channels.
func (s *Server) hub(ctx context.Context) {
	defer s.wg.Done()

	interval := time.Duration(float64(time.Second) / s.cfg.FPSTarget)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.processed = 0
	s.windowFrom = time.Now()

	for {
		select {
		case <-ctx.Done():
			for _, c := range s.clients {
				c.close()
			}
			s.clients = make(map[string]*client)
			s.clientCount.Store(0)
			return
		case c := <-s.register:
			s.clients[c.id] = c
			s.clientCount.Store(int64(len(s.clients)))
			log.Printf("[viewer] client %s connected (%d total)", c.id, len(s.clients))
			s.sendTo(c, s.sceneState())
		case c := <-s.unregister:
			s.drop(c, "disconnected")
		case in := <-s.inbound:
			s.handleClientMessage(in.client, in.msg)
		case fn := <-s.control:
			fn()
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick drains a bounded batch of pending changes and fans it out, then rolls
// the observed-FPS window.
func (s *Server) tick() {
	changes := s.sync.Drain(tickBatchLimit)
	if len(changes) > 0 {
		s.broadcast(s.updateMessage(changes))
	}

	s.processed += len(changes)
	if elapsed := time.Since(s.windowFrom); elapsed >= time.Second {
		s.mu.Lock()
		s.fps = float64(s.processed) / elapsed.Seconds()
		s.mu.Unlock()
		s.processed = 0
		s.windowFrom = time.Now()
	}
}

// updateMessage serializes a tick's batch: a lone change travels as an
// object_update, anything bigger as one scene_update.
func (s *Server) updateMessage(changes []scene.Change) any {
	ts := nowSeconds()
	if len(changes) == 1 {
		ch := changes[0]
		msg := ObjectUpdateMessage{
			Type:      MsgObjectUpdate,
			Kind:      ch.Kind,
			Name:      ch.Name,
			Timestamp: ts,
		}
		if ch.New != nil {
			obj := objectInfo(ch.New)
			msg.Object = &obj
		}
		return msg
	}

	infos := make([]ChangeInfo, 0, len(changes))
	for _, ch := range changes {
		infos = append(infos, changeInfo(ch))
	}
	return SceneUpdateMessage{Type: MsgSceneUpdate, Changes: infos, Timestamp: ts}
}

// broadcast fans a message to every client; one that cannot keep up is
// dropped while the rest of the fan-out continues. Hub goroutine only.
func (s *Server) broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[viewer] broadcast marshal: %v", err)
		return
	}
	for _, c := range s.clients {
		if !c.enqueue(data) {
			s.drop(c, "send buffer full")
		}
	}
}

func (s *Server) sendTo(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[viewer] marshal for client %s: %v", c.id, err)
		return
	}
	if !c.enqueue(data) {
		s.drop(c, "send buffer full")
	}
}

// drop removes a client from the table and closes it. Hub goroutine only.
func (s *Server) drop(c *client, reason string) {
	if _, ok := s.clients[c.id]; !ok {
		return
	}
	delete(s.clients, c.id)
	s.clientCount.Store(int64(len(s.clients)))
	c.close()
	log.Printf("[viewer] client %s dropped: %s (%d left)", c.id, reason, len(s.clients))
}

// sceneState builds the full-state message for a client.
func (s *Server) sceneState() SceneStateMessage {
	objs := make([]ObjectInfo, 0)
	if st := s.sync.Current(); st != nil {
		for _, o := range st.Objects() {
			o := o
			objs = append(objs, objectInfo(&o))
		}
	}

	cam, _ := s.views.CameraSnapshot(s.views.ActiveID())

	s.mu.RLock()
	quality, fps := s.quality, s.fps
	s.mu.RUnlock()

	return SceneStateMessage{
		Type:      MsgSceneState,
		Objects:   objs,
		Camera:    cam,
		Viewport:  s.views.Snapshot(),
		Quality:   quality,
		FPS:       fps,
		Timestamp: nowSeconds(),
	}
}

// handleClientMessage runs on the hub goroutine.
func (s *Server) handleClientMessage(c *client, msg ClientMessage) {
	switch msg.Type {
	case ClientGetSceneState:
		s.sendTo(c, s.sceneState())

	case ClientResetView:
		s.views.ResetAll()
		s.broadcast(CameraResetMessage{Type: MsgCameraReset, Viewports: s.views.Snapshot()})

	case ClientSetQuality:
		if !qualityTiers[msg.Quality] {
			s.sendTo(c, ErrorMessage{Type: MsgError, Message: fmt.Sprintf("unknown quality %q", msg.Quality)})
			return
		}
		s.applyQuality(msg.Quality)

	case ClientSetCamera:
		if msg.Position == nil || msg.Target == nil {
			s.sendTo(c, ErrorMessage{Type: MsgError, Message: "set_camera requires position and target"})
			return
		}
		id := s.viewportOrActive(msg.Viewport)
		if !s.views.UpdateCamera(id, *msg.Position, *msg.Target, nil) {
			s.sendTo(c, ErrorMessage{Type: MsgError, Message: fmt.Sprintf("unknown viewport %q", id)})
			return
		}
		s.broadcastCamera(id)

	case ClientNavigate:
		id := s.viewportOrActive(msg.Viewport)
		var handled bool
		switch {
		case msg.Event != nil:
			handled = s.views.HandleMouse(id, *msg.Event)
		case msg.Key != "":
			handled = s.views.HandleKey(id, msg.Key, msg.Pressed)
		}
		if handled {
			s.broadcastCamera(id)
		}

	case ClientSetViewportMode:
		id := s.viewportOrActive(msg.Viewport)
		if !s.views.SetMode(id, msg.Mode) {
			s.sendTo(c, ErrorMessage{Type: MsgError, Message: fmt.Sprintf("unknown viewport %q", id)})
			return
		}
		s.broadcast(ViewportModeMessage{Type: MsgViewportMode, Viewport: id, Mode: msg.Mode})

	case ClientScreenshot:
		frame, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil || len(frame) == 0 {
			log.Printf("[viewer] client %s posted unusable frame: %v", c.id, err)
			return
		}
		s.frameMu.Lock()
		s.lastFrame = frame
		s.frameMu.Unlock()

	default:
		// Unknown message types never kill the connection.
		log.Printf("[viewer] client %s sent unknown message type %q, ignoring", c.id, msg.Type)
	}
}

func (s *Server) viewportOrActive(id string) string {
	if id == "" {
		return s.views.ActiveID()
	}
	return id
}

// applyQuality updates the tier and announces it. Hub goroutine only.
func (s *Server) applyQuality(quality string) {
	s.mu.Lock()
	s.quality = quality
	s.mu.Unlock()
	log.Printf("[viewer] quality set to %s", quality)
	s.broadcast(QualityChangedMessage{Type: MsgQualityChanged, Quality: quality})
}

// broadcastCamera announces one viewport's camera. Hub goroutine only.
func (s *Server) broadcastCamera(id string) {
	cam, ok := s.views.CameraSnapshot(id)
	if !ok {
		return
	}
	s.broadcast(CameraUpdateMessage{Type: MsgCameraUpdate, Viewport: id, Camera: cam})
}

// dispatch hands a closure to the hub goroutine. Returns false when the
// server is not running.
func (s *Server) dispatch(fn func()) bool {
	s.mu.RLock()
	running := s.state == StateRunning
	done := s.done
	control := s.control
	s.mu.RUnlock()
	if !running || done == nil {
		return false
	}
	select {
	case control <- fn:
		return true
	case <-done:
		return false
	}
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
