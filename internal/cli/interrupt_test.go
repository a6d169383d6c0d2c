package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterruptHandler_Message(t *testing.T) {
	tests := []struct {
		name string
		hint string
		want []string
		not  []string
	}{
		{
			name: "with hint",
			hint: "Queued files keep importing; check with: zenny batch status b-1",
			want: []string{"Interrupted!", "zenny batch status b-1"},
		},
		{
			name: "without hint",
			want: []string{"Interrupted!"},
			not:  []string{"zenny batch"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			h := NewInterruptHandler(&out, tt.hint)
			h.interrupt()

			assert.True(t, h.WasInterrupted())
			for _, s := range tt.want {
				assert.Contains(t, out.String(), s)
			}
			for _, s := range tt.not {
				assert.NotContains(t, out.String(), s)
			}
		})
	}
}

func TestInterruptHandler_MessageOnce(t *testing.T) {
	var out bytes.Buffer
	h := NewInterruptHandler(&out, "")
	h.interrupt()
	h.interrupt()
	assert.Equal(t, 1, strings.Count(out.String(), "Interrupted!"))
}

func TestInterruptHandler_ParentCancel(t *testing.T) {
	var out bytes.Buffer
	h := NewInterruptHandler(&out, "")

	parent, cancel := context.WithCancel(context.Background())
	ctx := h.HandleInterrupts(parent)
	cancel()
	<-ctx.Done()

	assert.False(t, h.WasInterrupted(), "a parent cancel is not an interrupt")
	assert.Empty(t, out.String())
}

func TestNewInterruptHandler_DefaultWriter(t *testing.T) {
	h := NewInterruptHandler(nil, "")
	assert.NotNil(t, h.writer)
}
