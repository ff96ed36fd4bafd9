package chatbot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Chat is the interactive terminal loop. Besides plain queries it understands
// a few commands:
//
//	quit                    exit the loop
//	@folders                read the papers://folders resource
//	@<topic>                read the papers://<topic> resource
//	/prompts                list prompt templates across sessions
//	/prompt <name> k=v ...  render a prompt template and run it as a query
type Chat struct {
	engine  *Engine
	manager *Manager
	in      io.Reader
	out     io.Writer
}

// NewChat creates a chat loop over the engine and session manager.
func NewChat(engine *Engine, manager *Manager, in io.Reader, out io.Writer) *Chat {
	c := &Chat{
		engine:  engine,
		manager: manager,
		in:      in,
		out:     out,
	}
	engine.OnText = func(text string) {
		fmt.Fprintln(c.out, text)
	}
	engine.OnToolCall = func(name, arguments string) {
		fmt.Fprintf(c.out, "Calling tool %s with %s\n", name, arguments)
	}
	return c
}

// Run processes input until EOF or the quit command. Query failures are
// printed and the loop continues.
func (c *Chat) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, "MCP Chatbot Started")
	fmt.Fprintln(c.out, "Enter queries or type 'quit' to exit")

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "\nQuery: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") {
			return nil
		}

		if err := c.handle(ctx, line); err != nil {
			fmt.Fprintf(c.out, "\nError: %s\n", err.Error())
		}
	}
}

func (c *Chat) handle(ctx context.Context, line string) error {
	switch {
	case strings.HasPrefix(line, "@"):
		return c.showResource(ctx, strings.TrimPrefix(line, "@"))
	case line == "/prompts":
		return c.listPrompts(ctx)
	case strings.HasPrefix(line, "/prompt "):
		return c.runPrompt(ctx, strings.TrimPrefix(line, "/prompt "))
	default:
		_, err := c.engine.ProcessQuery(ctx, line)
		return err
	}
}

// showResource reads papers://<name> from the first session that serves it.
func (c *Chat) showResource(ctx context.Context, name string) error {
	uri := "papers://" + name

	var lastErr error
	for _, session := range c.manager.Sessions() {
		resp, err := session.Client.ReadResource(ctx, uri)
		if err != nil {
			lastErr = err
			continue
		}
		for _, content := range resp.Contents {
			fmt.Fprintln(c.out, content.Text)
		}
		return nil
	}
	if lastErr != nil {
		return errors.WithMessagef(lastErr, "failed to read %s", uri)
	}
	return errors.Errorf("no session serves %s", uri)
}

func (c *Chat) listPrompts(ctx context.Context) error {
	found := false
	for _, session := range c.manager.Sessions() {
		prompts, err := session.Client.ListPrompts(ctx)
		if err != nil {
			continue
		}
		for _, prompt := range prompts {
			found = true
			fmt.Fprintf(c.out, "- %s: %s\n", prompt.Name, prompt.Description)
			for _, arg := range prompt.Arguments {
				required := ""
				if arg.Required {
					required = " (required)"
				}
				fmt.Fprintf(c.out, "    %s%s: %s\n", arg.Name, required, arg.Description)
			}
		}
	}
	if !found {
		fmt.Fprintln(c.out, "No prompts available.")
	}
	return nil
}

// runPrompt renders the named template and feeds the resulting text through
// the engine as a regular query.
func (c *Chat) runPrompt(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return errors.New("usage: /prompt <name> [key=value ...]")
	}
	name := fields[0]

	arguments := make(map[string]string)
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return errors.Errorf("invalid argument %q, expected key=value", field)
		}
		arguments[key] = value
	}

	for _, session := range c.manager.Sessions() {
		resp, err := session.Client.GetPrompt(ctx, name, arguments)
		if err != nil {
			continue
		}
		var sb strings.Builder
		for _, msg := range resp.Messages {
			if msg.Content != nil && msg.Content.TextContent != nil {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(msg.Content.TextContent.Text)
			}
		}
		_, err = c.engine.ProcessQuery(ctx, sb.String())
		return err
	}
	return errors.Errorf("unknown prompt: %s", name)
}
