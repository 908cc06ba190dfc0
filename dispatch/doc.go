// Package dispatch turns raw language-model output into application actions.
//
// # Overview
//
// The model is prompted to emit a structured call either between sentinel
// markers (<|function_call|> ... <|end_function_call|>) or as a bare JSON
// object anywhere in its reply. Extractor scans a reply for the first such
// call and returns a validated Call descriptor; Dispatcher resolves the
// descriptor's name against a registry of handlers, merges caller-injected
// context into the parsed arguments, and invokes the handler.
//
// Pipeline: model text → Extractor.Extract → Call → Dispatcher.Dispatch →
// handler result or sentinel error.
//
// # Failure policy
//
// Nothing on this path escalates into the conversation loop. A reply with no
// call is the ordinary negative outcome and is not logged. Malformed JSON is
// logged and treated as "no call". An unknown name or a failing handler is
// logged and surfaced as a sentinel error the caller checks with errors.Is;
// the conversation then continues as plain narrative.
//
// # Example
//
//	d := dispatch.NewDispatcher()
//	d.Register("start_adventure", func(ctx context.Context, args map[string]any) (any, error) {
//	    return beginFor(args["user_id"].(string)), nil
//	})
//	if call, ok := dispatch.NewExtractor(nil).Extract(reply); ok {
//	    res, err := d.Dispatch(ctx, call, map[string]any{"user_id": uid})
//	    ...
//	}
package dispatch
