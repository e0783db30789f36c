package modelclient

import "context"

// Fake is a scripted Client for tests: each call to Stream consumes the
// next Script entry (a fixed sequence of StepChunks), regardless of the
// history or tools passed in. It never inspects tool results; scripting a
// multi-step conversation means pre-composing every step's chunks.
type Fake struct {
	// Scripts is consumed in FIFO order: one []StepChunk per call to
	// Stream. If exhausted, Stream returns a single FinishStop chunk.
	Scripts [][]StepChunk
	calls   int

	// Captured records the (history, tools) passed to each Stream call,
	// for assertions in tests.
	Captured []FakeCall
}

// FakeCall records one invocation of Fake.Stream.
type FakeCall struct {
	History []Message
	Tools   []ToolSchema
}

// Stream implements Client.
func (f *Fake) Stream(ctx context.Context, history []Message, tools []ToolSchema) (Stream, error) {
	f.Captured = append(f.Captured, FakeCall{History: history, Tools: tools})

	var chunks []StepChunk
	if f.calls < len(f.Scripts) {
		chunks = f.Scripts[f.calls]
	} else {
		chunks = []StepChunk{{Done: true, Reason: FinishStop}}
	}
	f.calls++

	return &fakeStream{chunks: chunks}, nil
}

type fakeStream struct {
	chunks []StepChunk
	idx    int
	closed bool
}

func (s *fakeStream) Next(ctx context.Context) (StepChunk, bool) {
	select {
	case <-ctx.Done():
		return StepChunk{Done: true, Reason: FinishCancelled, Err: ctx.Err()}, true
	default:
	}

	if s.idx >= len(s.chunks) {
		return StepChunk{}, false
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, true
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}
