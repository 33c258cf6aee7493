package messaging

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/crossframe/internal/frame"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/crossframe/internal/shared/id"
)

const writeWait = 10 * time.Second

// Bridge connects windows hosted in another process (a cross-origin frame
// rendered by a separate proxy instance, for example) to a Bus over
// WebSocket. Each connection stands in for exactly one window.
type Bridge struct {
	bus      *Bus
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
}

// NewBridge creates a bridge feeding bus
func NewBridge(bus *Bus, logger *zap.Logger, metrics *monitoring.Metrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		bus:     bus,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // frames connect from arbitrary proxy origins
			},
		},
	}
}

// ServeWindow upgrades the request and binds the connection to win until
// either side goes away. Messages read from the socket are delivered as if
// win had sent them; packets without a known target go to win's top window.
func (br *Bridge) ServeWindow(w http.ResponseWriter, r *http.Request, win *frame.Window) error {
	conn, err := br.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}
	defer conn.Close()

	t := &wsTransport{conn: conn}
	detach := br.bus.AttachRemote(win, t)
	defer detach()

	br.metrics.IncWSConnections()
	defer br.metrics.DecWSConnections()

	logger := br.logger.With(zap.Stringer("window", win))
	logger.Info("remote window connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-win.Context().Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info("remote window disconnected", zap.Error(err))
			return nil
		}

		packet, err := DecodePacket(data)
		if err != nil {
			logger.Warn("invalid packet", zap.Error(err))
			continue
		}

		target := win.Top()
		if packet.Target != "" {
			if resolved, ok := br.bus.Lookup(id.WindowID(packet.Target)); ok {
				target = resolved
			}
		}
		br.bus.Inject(packet.Message, win, target)
	}
}

type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) Deliver(env Envelope) error {
	packet := Packet{Target: env.Target.ID().String(), Message: env.Message}
	if env.Source != nil {
		packet.Source = env.Source.ID().String()
	}

	data, err := EncodePacket(packet)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}
