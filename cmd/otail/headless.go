package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/frank-taylor-lieder/otail/internal/config"
	"github.com/frank-taylor-lieder/otail/internal/core"
	"github.com/frank-taylor-lieder/otail/internal/view"
)

// runHeadless is the narrow, out-of-scope-by-design presentation layer:
// the core specifies what a front end consumes (Stats/Line/Truncated/
// FileError over a View), not how it is rendered. This prints the
// content pane (and, if a filter was installed, the filter pane) to
// stdout as lines arrive, tagging lines matched by an enabled colouring
// rule with that rule's rendered pattern and mode instead of actually
// colouring them.
func runHeadless(ctx context.Context, cmd *cobra.Command, cfg config.Config, content *view.View, filterView *view.View) {
	out := cmd.OutOrStdout()

	// A nil filterView yields a nil channel here, which simply never
	// becomes ready — the select below degrades to the content-only case
	// without any extra branching.
	var filterResponses <-chan core.Response
	if filterView != nil {
		filterResponses = filterView.Responses()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case resp, ok := <-content.Responses():
			if !ok {
				return
			}
			content.HandleResponse(resp)
			printResponse(out, "content", resp, cfg)

		case resp, ok := <-filterResponses:
			if !ok {
				return
			}
			filterView.HandleResponse(resp)
			printResponse(out, "filter", resp, cfg)
		}
	}
}

func printResponse(out io.Writer, pane string, resp core.Response, cfg config.Config) {
	switch {
	case resp.IsLine():
		tag := ""
		for _, rule := range cfg.Colouring {
			if rule.Enabled && rule.Spec.Matches(resp.Line.Content) {
				tag = " [" + rule.Spec.Render() + "]"
				break
			}
		}
		fmt.Fprintf(out, "%s:%d:%s%s\n", pane, resp.Line.LineNo, resp.Line.Content, tag)

	case resp.IsFileError():
		fmt.Fprintf(out, "%s: File error: %s\n", pane, resp.ErrReason)
	}
}
