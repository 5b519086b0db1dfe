package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// DoneMarker is the data of the final frame of every stream.
const DoneMarker = "[DONE]"

var errStreamingUnsupported = errors.New("response writer does not support flushing")

// SSEStream writes Server-Sent Events frames and flushes each one.
type SSEStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// StartSSE sets the event-stream headers and commits the response.
func StartSSE(c *gin.Context) (*SSEStream, error) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	flusher.Flush()
	return &SSEStream{w: c.Writer, flusher: flusher}, nil
}

// WriteData writes a data-only frame.
func (s *SSEStream) WriteData(payload []byte) error {
	return s.write(0, payload)
}

// WriteEvent writes a frame carrying an id so clients can resume.
func (s *SSEStream) WriteEvent(id int64, payload []byte) error {
	return s.write(id, payload)
}

// WriteDone writes the terminal frame.
func (s *SSEStream) WriteDone() error {
	return s.write(0, []byte(DoneMarker))
}

func (s *SSEStream) write(id int64, payload []byte) error {
	var b strings.Builder
	if id > 0 {
		b.WriteString("id: ")
		b.WriteString(strconv.FormatInt(id, 10))
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(string(payload), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// LastEventID reads the resume position from the Last-Event-ID header or the
// "after" query parameter. Invalid values mean the start of the stream.
func LastEventID(c *gin.Context) int64 {
	raw := strings.TrimSpace(c.GetHeader("Last-Event-ID"))
	if raw == "" {
		raw = strings.TrimSpace(c.Query("after"))
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
