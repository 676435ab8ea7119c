package assistant

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/rag-voice/backend/internal/model/assistant"
	"github.com/zhouzirui/rag-voice/backend/internal/service/pipeline"
)

var (
	errClientGone = errors.New("client disconnected")
	errIdle       = errors.New("session idle")
)

// handleWebSocket 处理一个助手连接：读协程负责读取，本协程按顺序处理帧
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancelCause(r.Context())
	sess := h.registry.Create(func() { cancel(errIdle) })
	if h.metrics != nil {
		h.metrics.SessionOpened()
	}
	log.Printf("[websocket] session %s connected from %s", sess.ID, r.RemoteAddr)

	if h.opts.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.opts.MaxFrameBytes)
	}
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		return nil
	})

	frames := make(chan pipeline.Frame)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		h.readLoop(ctx, cancel, conn, frames)
	}()
	go h.pingLoop(ctx, conn)

	defer func() {
		cancel(nil)
		conn.Close()
		<-readerDone
		h.registry.Remove(sess.ID)
		if h.metrics != nil {
			h.metrics.SessionClosed(time.Since(sess.CreatedAt))
		}
		log.Printf("[websocket] session %s closed after %d turns", sess.ID, sess.Turns())
	}()

	emitter := &wsEmitter{conn: conn, timeout: h.opts.WriteTimeout, cancel: cancel}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(context.Cause(ctx), errIdle) {
				h.sendClose(conn, websocket.CloseGoingAway, "idle timeout")
			}
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}

			err := h.frames.HandleFrame(ctx, sess, frame, emitter)
			switch {
			case err == nil:
			case errors.Is(err, pipeline.ErrProtocol):
				log.Printf("[websocket] session %s: %v", sess.ID, err)
				if h.metrics != nil {
					h.metrics.ProtocolErrors.Inc()
				}
				h.sendClose(conn, websocket.CloseUnsupportedData, "unsupported message")
				return
			case errors.Is(err, pipeline.ErrTransportClosed):
				return
			default:
				log.Printf("[websocket] session %s: unexpected error: %v", sess.ID, err)
				h.sendClose(conn, websocket.CloseInternalServerErr, "internal error")
				return
			}
		}
	}
}

// readLoop 是连接上唯一的读取者；读取失败或连接关闭时取消会话
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelCauseFunc, conn *websocket.Conn, frames chan<- pipeline.Frame) {
	defer close(frames)
	defer cancel(errClientGone)

	for {
		// The deadline may have lapsed while the previous frame waited for
		// the worker; only silence during a read counts against the client.
		conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && ctx.Err() == nil {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		var frame pipeline.Frame
		switch msgType {
		case websocket.TextMessage:
			frame = pipeline.TextFrame(string(data))
		case websocket.BinaryMessage:
			frame = pipeline.BinaryFrame(data)
		default:
			continue
		}
		if h.metrics != nil {
			h.metrics.FramesReceived.WithLabelValues(frameKind(frame)).Inc()
		}

		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sendClose(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.opts.WriteTimeout)); err != nil {
		log.Printf("[websocket] write close failed: %v", err)
	}
}

func frameKind(frame pipeline.Frame) string {
	if frame.Kind == pipeline.FrameBinary {
		return "binary"
	}
	return "text"
}

// wsEmitter 将事件写回客户端；写失败会取消会话
type wsEmitter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	cancel  context.CancelCauseFunc
}

func (e *wsEmitter) Emit(ctx context.Context, ev assistant.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.conn.SetWriteDeadline(time.Now().Add(e.timeout))
	if err := e.conn.WriteJSON(ev); err != nil {
		log.Printf("[websocket] write %s event failed: %v", ev.Type, err)
		e.cancel(err)
		return err
	}
	return nil
}
