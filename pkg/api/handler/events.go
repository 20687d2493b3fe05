package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/LENAX/stageflow/pkg/core/events"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = (wsPongWait * 9) / 10
)

// EventSubscriber 事件订阅接口，由 events.Bus 实现
type EventSubscriber interface {
	Subscribe(ctx context.Context, types ...events.EventType) (<-chan *events.Event, error)
}

// EventHandler 通过WebSocket推送变更事件
type EventHandler struct {
	sub      EventSubscriber
	upgrader websocket.Upgrader
}

// NewEventHandler 创建EventHandler
func NewEventHandler(sub EventSubscriber) *EventHandler {
	return &EventHandler{
		sub: sub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Stream 订阅事件流，?types=stage.handoff,task.overdue 过滤事件类型，不指定时推送全部
// GET /api/v1/events/ws
func (h *EventHandler) Stream(c *gin.Context) {
	var types []events.EventType
	if raw := c.Query("types"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			t, err := events.ParseEventType(strings.TrimSpace(s))
			if err != nil {
				badRequest(c, "%v", err)
				return
			}
			types = append(types, t)
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ [EventStream] WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	ch, err := h.sub.Subscribe(ctx, types...)
	if err != nil {
		log.Printf("❌ [EventStream] 订阅事件失败: %v", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()),
			time.Now().Add(wsWriteWait))
		return
	}
	log.Printf("✅ [EventStream] 客户端已连接: Remote=%s, Types=%v", conn.RemoteAddr(), types)

	// 读循环只处理pong和关闭帧，连接断开时取消订阅
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[EventStream] 客户端已断开: Remote=%s", conn.RemoteAddr())
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "事件总线已关闭"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("⚠️ [EventStream] 推送事件失败: Event=%s, Error=%v", ev.ID, err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
