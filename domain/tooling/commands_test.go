package tooling

import (
	"encoding/json"
	"testing"
)

func TestCommandsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		names []string
	}{
		{"time", "现在几点了", []string{CommandCurrentTime}},
		{"addition", "帮我计算 3 加 4.5", []string{CommandAdd}},
		{"addition needs two numbers", "帮我计算 3", nil},
		{"file read", "请读取文件 /tmp/notes.txt", []string{CommandFileRead}},
		{"file read without path", "请读取文件", nil},
		{"time and add", "计算 1 和 2 的和，顺便告诉我时间", []string{CommandCurrentTime, CommandAdd}},
		{"nothing", "hello there", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := CommandsFor(tt.text)
			if len(got) != len(tt.names) {
				t.Fatalf("CommandsFor(%q) = %d calls, want %d", tt.text, len(got), len(tt.names))
			}
			for i, name := range tt.names {
				if got[i].Name != name {
					t.Errorf("call %d = %s, want %s", i, got[i].Name, name)
				}
			}
		})
	}
}

func TestCommandsFor_AddArguments(t *testing.T) {
	t.Parallel()

	calls := CommandsFor("计算 3 + 4.5")
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	var in struct{ A, B float64 }
	if err := json.Unmarshal(calls[0].Input, &in); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if in.A != 3 || in.B != 4.5 {
		t.Errorf("input = %+v, want a=3 b=4.5", in)
	}
}

func TestExtractPath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`读取文件 "report.md" 的内容`: "report.md",
		"cat /var/log/app.log now": "/var/log/app.log",
		`open C:\data\x.csv`:       `C:\data\x.csv`,
		"no path here":             "",
	}
	for in, want := range tests {
		if got := ExtractPath(in); got != want {
			t.Errorf("ExtractPath(%q) = %q, want %q", in, got, want)
		}
	}
}
