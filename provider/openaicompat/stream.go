package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	anuris "github.com/anuris-ai/anuris"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// thinkParser routes streamed assistant text between the answer and the
// reasoning accumulators, extracting inline think tags. A tag may be split
// across any number of chunks: the parser holds back only the longest buffer
// suffix that could still start the tag it is waiting for, so no text is ever
// emitted twice and the tags themselves never reach the answer.
type thinkParser struct {
	content   strings.Builder
	reasoning strings.Builder
	pending   string
	inThink   bool

	onContent   func(string)
	onReasoning func(string)
}

func (p *thinkParser) feed(chunk string) {
	p.pending += chunk
	for {
		tag := thinkOpen
		if p.inThink {
			tag = thinkClose
		}
		if i := strings.Index(p.pending, tag); i >= 0 {
			p.emit(p.pending[:i])
			p.pending = p.pending[i+len(tag):]
			p.inThink = !p.inThink
			continue
		}
		hold := tagHoldback(p.pending, tag)
		p.emit(p.pending[:len(p.pending)-hold])
		p.pending = p.pending[len(p.pending)-hold:]
		return
	}
}

// feedReasoning appends provider-native reasoning, bypassing tag scanning.
func (p *thinkParser) feedReasoning(chunk string) {
	if chunk == "" {
		return
	}
	p.reasoning.WriteString(chunk)
	if p.onReasoning != nil {
		p.onReasoning(chunk)
	}
}

// flush releases any held-back text. An unterminated partial tag at end of
// stream is ordinary text.
func (p *thinkParser) flush() {
	p.emit(p.pending)
	p.pending = ""
}

func (p *thinkParser) emit(s string) {
	if s == "" {
		return
	}
	if p.inThink {
		p.reasoning.WriteString(s)
		if p.onReasoning != nil {
			p.onReasoning(s)
		}
		return
	}
	p.content.WriteString(s)
	if p.onContent != nil {
		p.onContent(s)
	}
}

// tagHoldback returns the length of the longest proper prefix of tag that is
// a suffix of s.
func tagHoldback(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(s, tag[:k]) {
			return k
		}
	}
	return 0
}

// ExtractThink splits complete assistant text into answer and reasoning by
// inline think tags.
func ExtractThink(text string) (content, reasoning string) {
	if !strings.Contains(text, thinkOpen) && !strings.Contains(text, thinkClose) {
		return text, ""
	}
	var p thinkParser
	p.feed(text)
	p.flush()
	return p.content.String(), p.reasoning.String()
}

// readStream consumes an SSE body carrying either OpenAI-style deltas or
// Anthropic-style events and returns the accumulated result. Cancellation of
// ctx stops consumption and returns what has arrived with Interrupted set.
func readStream(ctx context.Context, body io.Reader, onContent, onReasoning func(string)) (anuris.StreamResult, error) {
	parser := &thinkParser{onContent: onContent, onReasoning: onReasoning}
	// Per-lane lengths of already-emitted reasoning_details running prefixes.
	detailSeen := map[int]int{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			parser.flush()
			return anuris.StreamResult{
				Content:     parser.content.String(),
				Reasoning:   parser.reasoning.String(),
				Interrupted: true,
			}, nil
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			continue
		}
		consumeFrame(frame, parser, detailSeen)
	}
	parser.flush()

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return anuris.StreamResult{
				Content:     parser.content.String(),
				Reasoning:   parser.reasoning.String(),
				Interrupted: true,
			}, nil
		}
		return anuris.StreamResult{}, err
	}

	return anuris.StreamResult{
		Content:   parser.content.String(),
		Reasoning: parser.reasoning.String(),
	}, nil
}

func consumeFrame(frame streamFrame, parser *thinkParser, detailSeen map[int]int) {
	// OpenAI-style delta chunk.
	if len(frame.Choices) > 0 {
		delta := frame.Choices[0].Delta
		if delta == nil {
			return
		}
		parser.feedReasoning(delta.Reasoning)
		for i, detail := range delta.ReasoningDetails {
			seen := detailSeen[i]
			if len(detail.Text) > seen {
				parser.feedReasoning(detail.Text[seen:])
				detailSeen[i] = len(detail.Text)
			}
		}
		if delta.Content != "" {
			parser.feed(delta.Content)
		}
		return
	}

	// Anthropic-style event frame.
	switch frame.Type {
	case "message_start":
		if frame.Message == nil {
			return
		}
		for _, block := range frame.Message.Content {
			consumeBlock(block, parser)
		}
	case "content_block_start":
		if frame.ContentBlock != nil {
			consumeBlock(*frame.ContentBlock, parser)
		}
	case "content_block_delta":
		if frame.Delta == nil {
			return
		}
		switch frame.Delta.Type {
		case "text_delta":
			parser.feed(frame.Delta.Text)
		case "thinking_delta":
			parser.feedReasoning(frame.Delta.Thinking)
		case "signature_delta":
			// Integrity signature, not user-visible output.
		}
	}
}

func consumeBlock(block contentBlock, parser *thinkParser) {
	switch block.Type {
	case "text":
		parser.feed(block.Text)
	case "thinking", "redacted_thinking":
		parser.feedReasoning(block.Thinking)
	}
}
