package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type transitions struct {
	mu  sync.Mutex
	got []bool
}

func (tr *transitions) record(typing bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.got = append(tr.got, typing)
}

func (tr *transitions) all() []bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]bool(nil), tr.got...)
}

func TestTypingIndicator_ExpiresAfterQuietPeriod(t *testing.T) {
	tr := &transitions{}
	ti := NewTypingIndicator(30*time.Millisecond, tr.record)
	defer ti.Close()

	ti.Keystroke()
	ti.Keystroke()
	ti.Keystroke()
	assert.True(t, ti.IsTyping())

	assert.Eventually(t, func() bool { return !ti.IsTyping() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, tr.all())
}

func TestTypingIndicator_KeystrokesExtendTheFlag(t *testing.T) {
	ti := NewTypingIndicator(80*time.Millisecond, nil)
	defer ti.Close()

	for i := 0; i < 4; i++ {
		ti.Keystroke()
		time.Sleep(30 * time.Millisecond)
	}
	assert.True(t, ti.IsTyping())
}

func TestTypingIndicator_ClearAndClose(t *testing.T) {
	tr := &transitions{}
	ti := NewTypingIndicator(time.Hour, tr.record)

	ti.Clear()
	assert.Empty(t, tr.all(), "clearing an idle indicator is silent")

	ti.Keystroke()
	ti.Clear()
	assert.Equal(t, []bool{true, false}, tr.all())

	ti.Keystroke()
	ti.Close()
	ti.Keystroke()
	assert.False(t, ti.IsTyping())
	assert.Equal(t, []bool{true, false, true}, tr.all())
}
