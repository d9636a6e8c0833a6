package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "strict", in: `{"level":"beginner"}`, want: "beginner"},
		{name: "fenced", in: "sure:\n```json\n{\"level\":\"advanced\"}\n```\nthanks", want: "advanced"},
		{name: "fenced without tag", in: "```\n{\"level\":\"intermediate\"}\n```", want: "intermediate"},
		{name: "trailing prose", in: `here you go {"level":"beginner","note":"a } inside"} hope it helps`, want: "beginner"},
		{name: "escaped quote", in: `x {"level":"beginner","q":"say \"}\" now"} y`, want: "beginner"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ParseObject(tc.in)
			require.True(t, res.OK(), "err: %v", res.Err)
			assert.Equal(t, tc.want, res.Value["level"])
		})
	}
}

func TestParseObjectFailures(t *testing.T) {
	for _, in := range []string{"", "no braces here", `{"level": `, `{"level" "x"}`} {
		res := ParseObject(in)
		assert.False(t, res.OK(), in)
		require.NotNil(t, res.Err, in)
	}
}

func TestResultDecode(t *testing.T) {
	res := ParseObject("```json\n{\"week\": 3, \"title\": \"t\"}\n```")
	var out struct {
		Week  int    `json:"week"`
		Title string `json:"title"`
	}
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, 3, out.Week)
	assert.Equal(t, "t", out.Title)

	var pe *ParseError
	assert.True(t, errors.As(ParseObject("nope").Decode(&out), &pe))
}

func TestExtractorExtractObject(t *testing.T) {
	ex := New(CompleterFunc(func(ctx context.Context, system, user string) (string, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return "결과: {\"ok\": true}", nil
	}), time.Second)

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, ex.ExtractObject(context.Background(), "sys", "user", &out))
	assert.True(t, out.OK)
}

func TestExtractorErrors(t *testing.T) {
	var nilEx *Extractor
	_, err := nilEx.Extract(context.Background(), "s", "u")
	assert.Error(t, err)

	boom := errors.New("boom")
	ex := New(CompleterFunc(func(context.Context, string, string) (string, error) { return "", boom }), 0)
	_, err = ex.Extract(context.Background(), "s", "u")
	assert.ErrorIs(t, err, boom)

	ex = New(CompleterFunc(func(context.Context, string, string) (string, error) { return "plain words", nil }), 0)
	var out map[string]any
	err = ex.ExtractObject(context.Background(), "s", "u", &out)
	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
}

type jsonModeLLM struct {
	jsonReply  map[string]any
	jsonErr    error
	jsonSystem string
	jsonCalls  int
	textReply  string
	textSystem string
	textCalls  int
}

func (l *jsonModeLLM) GenerateText(_ context.Context, system, _ string) (string, error) {
	l.textCalls++
	l.textSystem = system
	return l.textReply, nil
}

func (l *jsonModeLLM) GenerateJSON(_ context.Context, system, _ string, _ string, _ map[string]any) (map[string]any, error) {
	l.jsonCalls++
	l.jsonSystem = system
	if l.jsonErr != nil {
		return nil, l.jsonErr
	}
	return l.jsonReply, nil
}

func TestExtractObjectPrefersJSONMode(t *testing.T) {
	llm := &jsonModeLLM{jsonReply: map[string]any{"level": "beginner"}}
	var out struct {
		Level string `json:"level"`
	}
	require.NoError(t, New(llm, time.Second).ExtractObject(context.Background(), "분석", "React", &out))

	assert.Equal(t, "beginner", out.Level)
	assert.Equal(t, 1, llm.jsonCalls)
	assert.Zero(t, llm.textCalls)
	assert.Contains(t, llm.jsonSystem, "Return exactly one JSON object")
	assert.Contains(t, llm.jsonSystem, "분석")
}

func TestExtractObjectFallsBackToText(t *testing.T) {
	llm := &jsonModeLLM{jsonErr: errors.New("format unsupported"), textReply: "```json\n{\"level\":\"advanced\"}\n```"}
	var out struct {
		Level string `json:"level"`
	}
	require.NoError(t, New(llm, 0).ExtractObject(context.Background(), "분석", "React", &out))

	assert.Equal(t, "advanced", out.Level)
	assert.Equal(t, 1, llm.jsonCalls)
	assert.Equal(t, 1, llm.textCalls)
	assert.Contains(t, llm.textSystem, "Return exactly one JSON object")
}

func TestExtractObjectAppliesJSONGuidanceToTextCompleters(t *testing.T) {
	var seen string
	ex := New(CompleterFunc(func(_ context.Context, system, _ string) (string, error) {
		seen = system
		return `{"ok":true}`, nil
	}), 0)
	var out map[string]any
	require.NoError(t, ex.ExtractObject(context.Background(), "sys", "user", &out))
	assert.Contains(t, seen, "Return exactly one JSON object")
	assert.NotContains(t, seen, "Answer in Korean unless")
}
