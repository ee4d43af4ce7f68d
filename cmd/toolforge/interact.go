package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"toolforge/internal/llm"
	"toolforge/internal/tool"
	"toolforge/internal/workflow"
)

// ConsoleInteractor answers the engine's decision points from a terminal.
type ConsoleInteractor struct {
	in  *bufio.Reader
	out io.Writer
}

func NewConsoleInteractor(in io.Reader, out io.Writer) *ConsoleInteractor {
	return &ConsoleInteractor{in: bufio.NewReader(in), out: out}
}

func (c *ConsoleInteractor) ConfirmPlan(plan *llm.PlanResponse) (bool, string, error) {
	fmt.Fprintln(c.out, "\nProposed plan:")
	for i, step := range plan.Steps {
		fmt.Fprintf(c.out, "  %d. %s\n", i+1, step)
	}
	if len(plan.NeededTools) > 0 {
		fmt.Fprintln(c.out, "Tools:")
		for _, t := range plan.NeededTools {
			fmt.Fprintf(c.out, "  - %s: %s\n", t.Name, t.Description)
		}
	}
	if plan.Explanation != "" {
		fmt.Fprintf(c.out, "Approach: %s\n", plan.Explanation)
	}

	answer, err := c.prompt("Accept plan? [Y/n/feedback] ")
	if err != nil {
		return false, "", err
	}
	switch strings.ToLower(answer) {
	case "", "y", "yes":
		return true, "", nil
	case "n", "no":
		return false, "", nil
	}
	// Anything else is feedback for the next planning round.
	return false, answer, nil
}

func (c *ConsoleInteractor) ReviewTool(t *tool.Description, review *llm.ReviewResponse) (workflow.ReviewDecision, error) {
	fmt.Fprintf(c.out, "\nReviewer wants to change tool %q:\n", t.Name)
	if review.Issues != "" {
		fmt.Fprintf(c.out, "Issues: %s\n", review.Issues)
	}
	fmt.Fprintln(c.out, "\nUpdated code:")
	fmt.Fprintln(c.out, review.UpdatedCode)

	for {
		answer, err := c.prompt("Accept update, reject tool, or abort run? [A/r/q] ")
		if err != nil {
			return workflow.ReviewAbort, err
		}
		switch strings.ToLower(answer) {
		case "", "a", "accept":
			return workflow.ReviewAccept, nil
		case "r", "reject":
			return workflow.ReviewReject, nil
		case "q", "quit", "abort":
			return workflow.ReviewAbort, nil
		}
		fmt.Fprintln(c.out, "Please answer a, r or q.")
	}
}

func (c *ConsoleInteractor) prompt(question string) (string, error) {
	fmt.Fprint(c.out, question)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read console input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
