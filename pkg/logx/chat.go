package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	chatQueueSize = 256
	chatMaxLen    = 3500
	chatSendWait  = 10 * time.Second
)

// chatSink is a zerolog.LevelWriter that forwards entries to a chat through
// a bounded queue. Entries are dropped when the queue is full or the rate
// limit is exceeded.
type chatSink struct {
	mu       sync.Mutex
	send     SendFunc
	chatID   int64
	threadID int
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newChatSink() *chatSink {
	ctx, cancel := context.WithCancel(context.Background())
	c := &chatSink{
		queue:    make(chan string, chatQueueSize),
		cancel:   cancel,
		minLevel: LevelWarn,
	}
	c.wg.Add(1)
	go c.loop(ctx)
	return c
}

func (c *chatSink) setSender(send SendFunc) {
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
}

func (c *chatSink) configure(chatID int64, threadID int, min zerolog.Level, lim *rate.Limiter) {
	c.mu.Lock()
	c.chatID = chatID
	c.threadID = threadID
	c.minLevel = min
	c.limiter = lim
	c.mu.Unlock()
}

func (c *chatSink) close() {
	c.cancel()
	c.wg.Wait()
}

func (c *chatSink) loop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.queue:
			c.mu.Lock()
			send, chatID, threadID := c.send, c.chatID, c.threadID
			c.mu.Unlock()
			if send == nil || chatID == 0 {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, chatSendWait)
			_ = send(sctx, chatID, threadID, msg)
			cancel()
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	ready := c.send != nil && c.chatID != 0 && c.limiter != nil && level >= c.minLevel
	lim := c.limiter
	c.mu.Unlock()
	if !ready || !lim.Allow() {
		return len(p), nil
	}
	msg := formatChatEntry(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case c.queue <- msg:
	default:
	}
	return len(p), nil
}

// formatChatEntry renders a zerolog JSON line as "[LEVEL] message" followed
// by one "- key=value" line per field, sorted by key.
func formatChatEntry(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), chatMaxLen)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		limit := 600
		if k == "stack" {
			limit = 900
		}
		b.WriteString("\n- " + k + "=")
		b.WriteString(truncate(fmt.Sprint(m[k]), limit))
	}
	return truncate(b.String(), chatMaxLen)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
