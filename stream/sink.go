package stream

import "sync"

// Metadata is attached to the final frame of a turn, giving the caller a
// complete picture of what happened without inspecting intermediate deltas.
type Metadata struct {
	// InvokedAgents lists the workers that executed during the turn.
	InvokedAgents []string `json:"invokedAgents,omitempty"`
	// Summary is the latest running synopsis of the conversation.
	Summary string `json:"summary,omitempty"`
	// Thinking is true on delta frames while generation is in progress.
	Thinking bool `json:"isThinking"`
}

// Frame is one wire unit of a streamed turn. Delta frames carry incremental
// Content; exactly one final frame (Metadata set, Thinking=false) precedes
// the Done sentinel; Error frames terminate failed turns.
type Frame struct {
	ID       string    `json:"id,omitempty"`
	Role     string    `json:"role,omitempty"`
	Content  string    `json:"content,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Error    string    `json:"error,omitempty"`
	Done     bool      `json:"done,omitempty"`
}

// Sink receives the frames of one turn. Implementations must tolerate
// emission after the consumer is gone (writes become no-ops rather than
// panics) and must preserve per-message emission order.
//
// Contract per turn: zero or more EmitDelta calls sharing one message id,
// then exactly one of EmitFinal or Fail, then Close.
type Sink interface {
	// EmitDelta publishes the accumulated content so far for messageID.
	EmitDelta(messageID, content string)
	// EmitFinal publishes the completed message with turn metadata.
	EmitFinal(messageID, content string, md Metadata)
	// Fail publishes a terminal error frame, distinct from normal completion.
	Fail(messageID string, err error)
	// Close signals end-of-stream. Idempotent.
	Close()
}

// ChannelSink is the production Sink: frames go onto a buffered channel the
// transport drains concurrently. Writes after Close are dropped, and writes
// never block: once the consumer stops draining and the buffer fills,
// further frames are discarded so the producing turn can still finish.
type ChannelSink struct {
	ch     chan Frame
	mu     sync.Mutex
	closed bool
}

// NewChannelSink constructs a sink with the given frame buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan Frame, buffer)}
}

// Frames returns the receive side drained by the transport. The channel is
// closed when the turn is over.
func (s *ChannelSink) Frames() <-chan Frame { return s.ch }

// EmitDelta implements Sink.
func (s *ChannelSink) EmitDelta(messageID, content string) {
	s.send(Frame{ID: messageID, Role: "assistant", Content: content, Metadata: &Metadata{Thinking: true}})
}

// EmitFinal implements Sink.
func (s *ChannelSink) EmitFinal(messageID, content string, md Metadata) {
	md.Thinking = false
	s.send(Frame{ID: messageID, Role: "assistant", Content: content, Metadata: &md})
}

// Fail implements Sink.
func (s *ChannelSink) Fail(messageID string, err error) {
	s.send(Frame{ID: messageID, Role: "assistant", Error: err.Error()})
}

// Close implements Sink.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	select {
	case s.ch <- Frame{Done: true}:
	default:
	}
	close(s.ch)
}

// send drops the frame when the buffer is full. Delta frames carry the
// accumulated content so far, so a consumer that catches up later loses
// nothing it cannot reconstruct; an abandoned consumer must not be able to
// wedge the turn.
func (s *ChannelSink) send(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- f:
	default:
	}
}

// BufferSink collects frames in memory. Useful in tests and synchronous
// callers that only care about the final result.
type BufferSink struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
}

// NewBufferSink constructs an empty BufferSink.
func NewBufferSink() *BufferSink { return &BufferSink{} }

// EmitDelta implements Sink.
func (s *BufferSink) EmitDelta(messageID, content string) {
	s.append(Frame{ID: messageID, Role: "assistant", Content: content, Metadata: &Metadata{Thinking: true}})
}

// EmitFinal implements Sink.
func (s *BufferSink) EmitFinal(messageID, content string, md Metadata) {
	md.Thinking = false
	s.append(Frame{ID: messageID, Role: "assistant", Content: content, Metadata: &md})
}

// Fail implements Sink.
func (s *BufferSink) Fail(messageID string, err error) {
	s.append(Frame{ID: messageID, Role: "assistant", Error: err.Error()})
}

// Close implements Sink.
func (s *BufferSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.frames = append(s.frames, Frame{Done: true})
}

// Frames returns a copy of everything received so far.
func (s *BufferSink) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Final returns the final content frame (non-delta, non-error), if any.
func (s *BufferSink) Final() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.frames {
		if f.Done || f.Error != "" {
			continue
		}
		if f.Metadata != nil && !f.Metadata.Thinking {
			return f, true
		}
	}
	return Frame{}, false
}

// Err returns the error frame, if any.
func (s *BufferSink) Err() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.frames {
		if f.Error != "" {
			return f, true
		}
	}
	return Frame{}, false
}

func (s *BufferSink) append(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frames = append(s.frames, f)
}
