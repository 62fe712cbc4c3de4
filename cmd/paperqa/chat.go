package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"paperqa/internal/service"
)

const exitKeyword = "exit"

type asker interface {
	Ask(ctx context.Context, query string) service.Result
}

// runChat reads one query per line until EOF or the exit keyword.
func runChat(ctx context.Context, in io.Reader, out io.Writer, a asker) error {
	sc := bufio.NewScanner(in)
	fmt.Fprintf(out, "Ask about the papers, a word or a calculation. Type %q to quit.\n", exitKeyword)
	for {
		fmt.Fprint(out, "You: ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		q := strings.TrimSpace(sc.Text())
		if q == "" {
			continue
		}
		if strings.EqualFold(q, exitKeyword) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		res := a.Ask(ctx, q)
		fmt.Fprintln(out, agentLine(res))
		fmt.Fprintln(out, res.Render())
	}
}

func agentLine(r service.Result) string {
	line := "[Agent] Category: " + string(r.Category)
	switch {
	case r.Target != "":
		line += " | Target: " + r.Target
	case r.Expression != "":
		line += " | Expression: " + r.Expression
	}
	return line
}
