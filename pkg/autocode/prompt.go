package autocode

import (
	"fmt"
	"strings"
)

// SystemPrompt is the instruction part shared by the built-in agents.
const SystemPrompt = `Generate Go code that meets the following conditions:
- Reply with a single Go source file in one ` + "```go" + ` code block.
- The file defines exactly the requested top-level function; helper functions and types are allowed.
- Use the package clause "package main". Do not define func main.
- Only import pure standard library packages (strings, strconv, fmt, math, sort, slices, maps, regexp, time, encoding/json, ...). Never import os, os/exec, net, syscall, unsafe or third-party modules.
- Parameters appear in this order: positional parameters, named parameters, then "extra map[string]T" when extra keyword arguments are requested, then "rest ...T" when extra positional arguments are requested.
- Return the requested type, optionally followed by an error. Return an error instead of panicking on bad input.
- It should be gofmt formatted, efficient and idiomatic.
- Add a doc comment based on the provided description.
- Comments should say why the code is written this way, not what it does.
- These rules are strict, but the provided description is more important than the rules.
`

// BuildPrompt renders the user prompt for gc.
func BuildPrompt(gc GenerationContext) string {
	var b strings.Builder

	if gc.Name != "" {
		fmt.Fprintf(&b, "### Function Name\n%s\n\n", gc.Name)
	}
	if gc.ID != "" {
		fmt.Fprintf(&b, "### ID\n%s\n\n", gc.ID)
	}
	if gc.Description != "" {
		fmt.Fprintf(&b, "### Function Description\n%s\n\n", gc.Description)
	}
	if gc.Docstring != "" {
		fmt.Fprintf(&b, "### Docstring\n%s\n\n", gc.Docstring)
	}

	b.WriteString("### Parameters\n")
	if len(gc.Args) == 0 {
		b.WriteString("- No positional arguments\n")
	}
	for _, v := range gc.Args {
		writeVariable(&b, v)
	}
	if len(gc.Kwargs) == 0 {
		b.WriteString("- No named arguments\n")
	}
	for _, v := range gc.Kwargs {
		writeVariable(&b, v)
	}
	if gc.UseExtraKwargs {
		fmt.Fprintf(&b, "- extra: map[string]%s (extra keyword arguments)\n", gc.extraKwargsType())
	}
	if gc.UseExtraArgs {
		fmt.Fprintf(&b, "- rest: ...%s (extra positional arguments)\n", gc.extraArgsType())
	}
	fmt.Fprintf(&b, "\nSignature: %s\n", gc.Decl())

	if gc.ReturnType != "" {
		fmt.Fprintf(&b, "\n### Returns\n%s\n", gc.ReturnType)
	}

	if len(gc.Feedbacks) > 0 {
		b.WriteString("\n### Feedbacks\n")
		for _, fb := range gc.Feedbacks {
			writeFeedback(&b, fb)
		}
	}

	return strings.TrimSpace(b.String())
}

func writeVariable(b *strings.Builder, v Variable) {
	fmt.Fprintf(b, "- %s: %s", v.Name, v.goType())
	if v.Default != nil {
		fmt.Fprintf(b, " = %#v", v.Default)
	}
	if v.Description != "" {
		fmt.Fprintf(b, " (%s)", v.Description)
	}
	b.WriteString("\n")
}

func writeFeedback(b *strings.Builder, fb Feedback) {
	switch fb.Kind {
	case FeedbackHuman:
		if fb.PreviousSource != "" {
			fmt.Fprintf(b, "- Previous Code:\n```go\n%s\n```\n", strings.TrimSpace(fb.PreviousSource))
		}
		fmt.Fprintf(b, "- Human: %s\n", fb.Comment)
	default:
		if fb.PreviousSource != "" {
			fmt.Fprintf(b, "- Previous Code:\n```go\n%s\n```\n", strings.TrimSpace(fb.PreviousSource))
		}
		fmt.Fprintf(b, "- Error: %s\n", fb.Message)
		if fb.Detail != "" {
			fmt.Fprintf(b, "  %s\n", fb.Detail)
		}
	}
}

// ExtractCode pulls Go source out of a model reply. Replies without a fence
// are returned trimmed; an unterminated fence runs to the end of the reply.
func ExtractCode(reply string) string {
	for _, fence := range []string{"```go\n", "```go\r\n", "```golang\n", "```\n"} {
		idx := strings.Index(reply, fence)
		if idx == -1 {
			continue
		}
		start := idx + len(fence)
		if end := strings.Index(reply[start:], "```"); end != -1 {
			return strings.TrimSpace(reply[start:start+end]) + "\n"
		}
		return strings.TrimSpace(reply[start:]) + "\n"
	}
	return strings.TrimSpace(reply) + "\n"
}
