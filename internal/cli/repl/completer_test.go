package repl

import (
	"reflect"
	"testing"
)

func TestCompleter(t *testing.T) {
	c := NewCompleter("list", "lock", "get", "list", "")

	tests := []struct {
		prefix string
		want   []string
	}{
		{"l", []string{"list", "lock"}},
		{"li", []string{"list"}},
		{"h", []string{"history"}},
		{"z", nil},
	}
	for _, tt := range tests {
		if got := c.Complete(tt.prefix); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Complete(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}

	if !c.Known("lock") || !c.Known("exit") || c.Known("lo") {
		t.Error("Known() mismatch")
	}
	if got := c.Suggest("lst"); !reflect.DeepEqual(got, []string{"list", "lock"}) {
		t.Errorf("Suggest(lst) = %v", got)
	}
	if got := c.Suggest("xyz"); got != nil {
		t.Errorf("Suggest(xyz) = %v, want nil", got)
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	for _, line := range []string{"a", "b", "b", "c", "d"} {
		h.Add(line)
	}
	if got := h.Entries(); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Errorf("Entries() = %v", got)
	}
	if h.Get(0) != "d" || h.Get(2) != "b" || h.Get(3) != "" || h.Get(-1) != "" {
		t.Error("Get() mismatch")
	}
	if NewHistory(0).maxSize != DefaultHistorySize {
		t.Error("non-positive size should fall back to the default")
	}
}
