package tools

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"
	"github.com/tmc/langchaingo/tools"
)

var _ Handler = (*LangchainHandler)(nil)

// LangchainHandler adapts a langchaingo tool into a Handler. Arguments are
// passed as a JSON object string; a JSON object reply becomes structured
// Data, anything else is kept as plain text.
type LangchainHandler struct {
	Tool tools.Tool
}

func (h *LangchainHandler) Invoke(ctx context.Context, args map[string]any, call CallContext) (*Result, error) {
	if args == nil {
		args = map[string]any{}
	}

	input, err := json.Marshal(args)
	if err != nil {
		return nil, oops.Code(CodeValidation).Wrapf(err, "failed to encode arguments for %s", h.Tool.Name())
	}

	output, err := h.Tool.Call(ctx, string(input))
	if err != nil {
		return nil, oops.With("tool", h.Tool.Name()).Wrapf(err, "tool call failed")
	}

	var structured map[string]any
	if json.Unmarshal([]byte(output), &structured) == nil {
		if sel := parseSelection(structured); sel != nil {
			return &Result{NeedsSelection: sel}, nil
		}
		return &Result{Data: structured}, nil
	}

	return &Result{Data: output}, nil
}

// parseSelection recognizes the needs_selection outcome shape in a raw
// handler payload.
func parseSelection(payload map[string]any) *Selection {
	raw, ok := payload["needs_selection"]
	if !ok {
		return nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}

	var sel Selection
	if err := json.Unmarshal(encoded, &sel); err != nil || len(sel.Options) == 0 {
		return nil
	}

	return &sel
}
