package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/ashureev/chat-widget/internal/chat"
	"github.com/ashureev/chat-widget/internal/render"
)

// transcript prints answers and indicators as snapshots arrive.
type transcript struct {
	mu           sync.Mutex
	out          io.Writer
	conversation string
	shown        map[int]string
	typing       bool
	coding       bool
	satisfaction bool
}

func newTranscript(out io.Writer) *transcript {
	return &transcript{out: out, shown: make(map[int]string)}
}

// update prints whatever changed since the previous snapshot.
func (t *transcript) update(snap chat.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.ConversationID != t.conversation {
		t.conversation = snap.ConversationID
		t.shown = make(map[int]string)
		if snap.ConversationID != "" && snap.Profile != nil {
			fmt.Fprintf(t.out, "Signed in as %s <%s>\n", snap.Profile.Name, snap.Profile.Email)
		}
	}

	if snap.Typing && !t.typing {
		fmt.Fprintln(t.out, "bot is typing...")
	}
	t.typing = snap.Typing

	if snap.Coding && !t.coding {
		fmt.Fprintln(t.out, "building your prototype...")
	}
	t.coding = snap.Coding

	for i, ex := range snap.Exchanges {
		if ex.Answer == "" || t.shown[i] == ex.Answer {
			continue
		}
		t.shown[i] = ex.Answer
		if ex.IsStatus() {
			fmt.Fprintf(t.out, "-- %s --\n", render.Format(ex.Answer))
			continue
		}
		fmt.Fprintf(t.out, "bot> %s\n", render.Format(ex.Answer))
	}

	if snap.SatisfactionVisible && !t.satisfaction {
		fmt.Fprintln(t.out, "How was this chat? Rate it with /rate 1-5")
	}
	t.satisfaction = snap.SatisfactionVisible
}

// replay prints the restored transcript, questions included.
func (t *transcript) replay(snap chat.Snapshot) {
	t.mu.Lock()
	for i, ex := range snap.Exchanges {
		if ex.Question != "" {
			fmt.Fprintf(t.out, "you> %s\n", ex.Question)
		}
		if ex.Answer != "" {
			fmt.Fprintf(t.out, "bot> %s\n", render.Format(ex.Answer))
			t.shown[i] = ex.Answer
		}
	}
	t.conversation = snap.ConversationID
	t.mu.Unlock()
}
