package autocode

import (
	"fmt"
	"strings"

	"autocode/internal/compiler"
)

// Variable describes one parameter of the requested function.
type Variable struct {
	Name string
	// Type is a Go type expression such as "int" or "[]string"; empty means any.
	Type        string
	Description string
	// Default is used for a named parameter that the caller does not supply.
	Default any
}

// Var is shorthand for a Variable without a default.
func Var(name, typ, description string) Variable {
	return Variable{Name: name, Type: typ, Description: description}
}

func (v Variable) goType() string {
	if v.Type == "" {
		return "any"
	}
	return v.Type
}

// FeedbackKind classifies why an attempt failed.
type FeedbackKind int

const (
	FeedbackAgentError FeedbackKind = iota
	FeedbackCompileError
	FeedbackHuman
)

func (k FeedbackKind) String() string {
	switch k {
	case FeedbackAgentError:
		return "agent error"
	case FeedbackCompileError:
		return "compile error"
	case FeedbackHuman:
		return "human"
	default:
		return "unknown"
	}
}

// Feedback records one failed attempt and is shown to the agent on the
// next one.
type Feedback struct {
	Kind           FeedbackKind
	Attempt        int
	PreviousSource string
	Message        string
	Detail         string
	// Comment is the reviewer's text for human rejections.
	Comment string
}

func (f Feedback) String() string {
	msg := f.Message
	if f.Kind == FeedbackHuman && f.Comment != "" {
		msg = f.Comment
	}
	return fmt.Sprintf("attempt %d: %s: %s", f.Attempt, f.Kind, msg)
}

// GenerationContext is everything an agent is told about the function to
// write. It is a value: the assistant hands agents copies and never mutates
// one after passing it on.
type GenerationContext struct {
	Description string
	Docstring   string
	Name        string

	Args       []Variable
	Kwargs     []Variable
	ReturnType string

	UseExtraArgs    bool
	ExtraArgsType   string
	UseExtraKwargs  bool
	ExtraKwargsType string

	ID       string
	Location string

	// Feedbacks of the current generation, oldest first.
	Feedbacks []Feedback
}

// withFeedback returns a copy with fb appended, leaving gc untouched.
func (gc GenerationContext) withFeedback(fb Feedback) GenerationContext {
	next := gc
	next.Feedbacks = make([]Feedback, 0, len(gc.Feedbacks)+1)
	next.Feedbacks = append(next.Feedbacks, gc.Feedbacks...)
	next.Feedbacks = append(next.Feedbacks, fb)
	return next
}

func (gc GenerationContext) params() []Variable {
	out := make([]Variable, 0, len(gc.Args)+len(gc.Kwargs))
	out = append(out, gc.Args...)
	return append(out, gc.Kwargs...)
}

func (gc GenerationContext) extraArgsType() string {
	if gc.ExtraArgsType == "" {
		return "any"
	}
	return gc.ExtraArgsType
}

func (gc GenerationContext) extraKwargsType() string {
	if gc.ExtraKwargsType == "" {
		return "any"
	}
	return gc.ExtraKwargsType
}

// signature is what the compiler checks generated source against.
func (gc GenerationContext) signature() compiler.Signature {
	sig := compiler.Signature{
		Name:        gc.Name,
		ExtraKwargs: gc.UseExtraKwargs,
		ExtraArgs:   gc.UseExtraArgs,
		Result:      gc.ReturnType,
	}
	for _, v := range gc.params() {
		sig.Params = append(sig.Params, compiler.Param{Name: v.Name, Type: v.Type})
	}
	return sig
}

// Decl renders the Go declaration the generated function must have, e.g.
// "func Add(a int, b int) (int, error)".
func (gc GenerationContext) Decl() string {
	var parts []string
	for _, v := range gc.params() {
		parts = append(parts, v.Name+" "+v.goType())
	}
	if gc.UseExtraKwargs {
		parts = append(parts, "extra map[string]"+gc.extraKwargsType())
	}
	if gc.UseExtraArgs {
		parts = append(parts, "rest ..."+gc.extraArgsType())
	}

	name := gc.Name
	if name == "" {
		name = "<Name>"
	}
	decl := fmt.Sprintf("func %s(%s)", name, strings.Join(parts, ", "))
	if gc.ReturnType != "" {
		decl += " " + gc.ReturnType
	}
	return decl
}
