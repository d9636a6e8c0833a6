package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/learnmate-backend/internal/platform/promptstyle"
)

// Completer is the text-completion boundary. openai.Client satisfies it.
type Completer interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

// ObjectCompleter is implemented by completion services with a native JSON
// output mode. A nil schema asks for any single JSON object.
type ObjectCompleter interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, system string, user string) (string, error)

func (f CompleterFunc) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return f(ctx, system, user)
}

// Extractor sends prompt pairs to a completion service and parses the replies.
type Extractor struct {
	llm     Completer
	timeout time.Duration
}

// New returns an Extractor. A non-positive timeout leaves the caller's deadline in charge.
func New(llm Completer, timeout time.Duration) *Extractor {
	return &Extractor{llm: llm, timeout: timeout}
}

func (e *Extractor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return ctx, func() {}
}

// Extract returns the raw completion text.
func (e *Extractor) Extract(ctx context.Context, system, user string) (string, error) {
	if e == nil || e.llm == nil {
		return "", fmt.Errorf("completion service not configured")
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	text, err := e.llm.GenerateText(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("completion: empty text")
	}
	return text, nil
}

// ExtractObject decodes one JSON object reply into out. The system prompt gets
// the JSON guidance block. Services with a JSON mode are asked through it
// first; when that call fails the text reply is parsed with ParseObject.
// Transport failures and *ParseError are both returned as errors.
func (e *Extractor) ExtractObject(ctx context.Context, system, user string, out any) error {
	if e == nil || e.llm == nil {
		return fmt.Errorf("completion service not configured")
	}
	system = promptstyle.ApplySystem(system, "json")

	if oc, ok := e.llm.(ObjectCompleter); ok {
		err := e.extractNative(ctx, oc, system, user, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	text, err := e.Extract(ctx, system, user)
	if err != nil {
		return err
	}
	res := ParseObject(text)
	if !res.OK() {
		return res.Err
	}
	return res.Decode(out)
}

func (e *Extractor) extractNative(ctx context.Context, oc ObjectCompleter, system, user string, out any) error {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()
	obj, err := oc.GenerateJSON(ctx, system, user, "", nil)
	if err != nil {
		return fmt.Errorf("completion json: %w", err)
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ParseError{Reason: "decode: " + err.Error(), Snippet: snippet(string(raw))}
	}
	return nil
}
