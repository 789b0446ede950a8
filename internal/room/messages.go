package room

import (
	"context"
	"html"
	"strconv"
	"strings"
)

// MaxMessageRing bounds how many messages Recent returns (the newest
// ones) and is the default message keep count of the retention service;
// the session hub (C4) keeps its own separate in-memory event ring for
// SSE replay (spec.md §4.5).
const MaxMessageRing = 256

// nextSeq allocates a monotone sequence number via compare_and_put on a
// dedicated counter key, so concurrent broadcasts never collide
// (spec.md §4.5 "messages are totally ordered").
func (r *Room) nextSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := r.transact(ctx, keyMessageSeq, func(cur []byte) ([]byte, error) {
		if cur == nil {
			seq = 1
		} else {
			n, perr := strconv.ParseUint(string(cur), 10, 64)
			if perr != nil {
				n = 0
			}
			seq = n + 1
		}
		return []byte(strconv.FormatUint(seq, 10)), nil
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// extractMentions finds "@name" tokens in content, matching agent names
// made of letters, digits, underscore and hyphen (spec.md §4.5).
func extractMentions(content string) []string {
	var mentions []string
	seen := make(map[string]bool)
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return r != '@' && !isMentionRune(r)
	})
	for _, f := range fields {
		if !strings.HasPrefix(f, "@") {
			continue
		}
		name := strings.TrimPrefix(f, "@")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		mentions = append(mentions, name)
	}
	return mentions
}

func isMentionRune(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// Broadcast appends a message visible to every subscriber of the room,
// keeping the raw UTF-8 content for storage and computing an
// HTML-escaped RenderedContent for any downstream web viewer (spec.md
// §4.5). It publishes a "message" event to every subscriber plus a
// "mention" event targeted at the mentioned agents, and returns the
// stored Message.
func (r *Room) Broadcast(ctx context.Context, sender, content string) (*Message, error) {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return nil, err
	}
	mentions := extractMentions(content)
	msg := Message{
		Seq:             seq,
		Sender:          sender,
		Content:         content,
		RenderedContent: html.EscapeString(content),
		Mentions:        mentions,
		Timestamp:       r.now(),
	}
	if err := r.backend.Put(ctx, messageKey(seq), encodeJSON(msg), 0); err != nil {
		return nil, err
	}

	r.publish(ctx, "message", msg)
	if len(mentions) > 0 {
		r.publish(ctx, "mention", msg, mentions...)
	}
	return &msg, nil
}

// Recent returns up to MaxMessageRing messages with Seq > afterSeq, in
// ascending sequence order (spec.md §4.5 "replay since").
func (r *Room) Recent(ctx context.Context, afterSeq uint64) ([]Message, error) {
	entries, err := r.backend.Scan(ctx, prefixMessage)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	for _, e := range entries {
		if e.Key == keyMessageSeq {
			continue
		}
		m, derr := decodeJSON[Message](e.Value)
		if derr != nil {
			continue
		}
		if m.Seq > afterSeq {
			msgs = append(msgs, *m)
		}
	}
	sortMessages(msgs)
	if len(msgs) > MaxMessageRing {
		msgs = msgs[len(msgs)-MaxMessageRing:]
	}
	return msgs, nil
}

func sortMessages(msgs []Message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j-1].Seq > msgs[j].Seq; j-- {
			msgs[j-1], msgs[j] = msgs[j], msgs[j-1]
		}
	}
}
