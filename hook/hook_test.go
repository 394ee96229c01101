package hook

import "testing"

func TestHookConstants(t *testing.T) {
	tests := []struct {
		hook     Hook
		expected string
	}{
		{Init, "init"},
		{BeforeStart, "before_start"},
		{Start, "start"},
		{Shutdown, "shutdown"},
	}

	for _, tt := range tests {
		if string(tt.hook) != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, tt.hook)
		}
	}
}

func TestRegistry_Emit(t *testing.T) {
	var r Registry[*[]string]
	var calls []string

	r.Add(Start, func(c *[]string) { *c = append(*c, "first") })
	r.Add(Start, func(c *[]string) { *c = append(*c, "second") })
	r.Add(Shutdown, func(c *[]string) { *c = append(*c, "shutdown") })

	r.Emit(Start, &calls)

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestRegistry_EmitWithoutCallbacks(t *testing.T) {
	var r Registry[int]
	r.Emit(Init, 1)
}

func TestRegistry_AddDuringEmit(t *testing.T) {
	var r Registry[int]
	n := 0
	r.Add(Init, func(int) {
		n++
		r.Add(Init, func(int) { n++ })
	})

	r.Emit(Init, 0)
	if n != 1 {
		t.Errorf("expected callbacks added during emit to wait for the next emit, got %d calls", n)
	}
}
