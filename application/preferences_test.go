package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/agent-router/application"
)

func TestExtractPreferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{"name", "你好，我叫小明", map[string]string{"name": "小明"}},
		{"likes", "我比较喜欢安静的酒店。", map[string]string{"likes": "安静的酒店"}},
		{"dislikes are not likes", "我不喜欢辣的菜", map[string]string{"dislikes": "辣的菜"}},
		{"language", "以后请用英文回答", map[string]string{"language": "英文"}},
		{"several", "我叫阿华，我喜欢徒步，请用中文交流", map[string]string{"name": "阿华", "likes": "徒步", "language": "中文"}},
		{"none", "明天天气怎么样？", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, application.ExtractPreferences(tt.text))
		})
	}
}
