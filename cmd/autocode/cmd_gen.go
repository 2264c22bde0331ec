package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"autocode/pkg/autocode"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	genID          string
	genName        string
	genLocation    string
	genDoc         string
	genArgs        []string
	genKwargs      []string
	genDefaults    map[string]string
	genReturns     string
	genExtraArgs   string
	genExtraKwargs string
	genRegenerate  bool
	genInteractive bool
	genAttempts    int
	genOverride    string
	genDryValue    string
	genCall        string
	genCallKwargs  string
)

// genCmd generates (or loads from cache) a function
var genCmd = &cobra.Command{
	Use:   "gen [description]",
	Short: "Generate a function, or load it from the cache",
	Long: `Generates a Go function from a description and prints its source.
With --id, or --name plus --location, the result is cached and later runs
load it without calling the model.

Parameters are given as name:type[:description]:
  autocode gen "add two numbers" --id add --arg a:int --arg b:int --returns int --call '[2,3]'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGen,
}

func init() {
	genCmd.Flags().StringVar(&genID, "id", "", "Cache id")
	genCmd.Flags().StringVar(&genName, "name", "", "Function name")
	genCmd.Flags().StringVar(&genLocation, "location", "cli", "Location used with --name for the cache key")
	genCmd.Flags().StringVar(&genDoc, "doc", "", "Extra documentation for the model")
	genCmd.Flags().StringArrayVar(&genArgs, "arg", nil, "Positional parameter name:type[:description] (repeatable)")
	genCmd.Flags().StringArrayVar(&genKwargs, "kwarg", nil, "Named parameter name:type[:description] (repeatable)")
	genCmd.Flags().StringToStringVar(&genDefaults, "default", nil, "Default for a named parameter as name=<json>")
	genCmd.Flags().StringVar(&genReturns, "returns", "", "Result type")
	genCmd.Flags().StringVar(&genExtraArgs, "extra-args", "", "Accept extra positional arguments of this type")
	genCmd.Flags().StringVar(&genExtraKwargs, "extra-kwargs", "", "Accept extra keyword arguments of this type")
	genCmd.Flags().BoolVar(&genRegenerate, "regenerate", false, "Ignore the cache and generate again")
	genCmd.Flags().BoolVarP(&genInteractive, "interactive", "i", false, "Review the code before it is used")
	genCmd.Flags().IntVar(&genAttempts, "max-attempts", 0, "Attempt budget (default from config)")
	genCmd.Flags().StringVar(&genOverride, "override", "", "Use path/to/file.go:Func instead of generating")
	genCmd.Flags().StringVar(&genDryValue, "dry-run-value", "", "Dry run: skip generation and return this JSON value")
	genCmd.Flags().StringVar(&genCall, "call", "", "Call the function with this JSON array of arguments")
	genCmd.Flags().StringVar(&genCallKwargs, "kwargs", "", "Keyword arguments for --call as a JSON object")
}

func runGen(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	description := strings.Join(args, " ")
	opts, err := genOptions(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := autocode.New(cfg, autocode.UseOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Debug("Generating", zap.String("description", description), zap.String("id", genID), zap.String("name", genName))
	art, err := a.Autocode(ctx, description, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch fn := art.(type) {
	case *autocode.CompiledFunc:
		fmt.Fprintf(cmd.ErrOrStderr(), "# generated in %d attempt(s) %s\n", fn.Attempts, fn.Path)
	case *autocode.CachedFunc:
		fmt.Fprintf(cmd.ErrOrStderr(), "# cached %s\n", fn.Path)
	}
	if genCall == "" {
		if src := art.Source(); src != "" {
			fmt.Fprint(out, src)
		}
		return nil
	}

	callArgs, callKwargs, err := parseCall(genCall, genCallKwargs)
	if err != nil {
		return err
	}
	res, err := art.Invoke(callArgs, callKwargs)
	if err != nil {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func genOptions(cmd *cobra.Command) ([]autocode.Option, error) {
	var opts []autocode.Option
	if genID != "" {
		opts = append(opts, autocode.WithID(genID))
	}
	if genName != "" {
		opts = append(opts, autocode.WithName(genName))
	}
	opts = append(opts, autocode.WithLocation(genLocation))
	if genDoc != "" {
		opts = append(opts, autocode.WithDocstring(genDoc))
	}

	positional, err := parseVars(genArgs, nil)
	if err != nil {
		return nil, err
	}
	named, err := parseVars(genKwargs, genDefaults)
	if err != nil {
		return nil, err
	}
	opts = append(opts, autocode.WithArgs(positional...), autocode.WithKwargs(named...))

	if genReturns != "" {
		opts = append(opts, autocode.WithReturnType(genReturns))
	}
	if cmd.Flags().Changed("extra-args") {
		opts = append(opts, autocode.WithExtraArgs(genExtraArgs))
	}
	if cmd.Flags().Changed("extra-kwargs") {
		opts = append(opts, autocode.WithExtraKwargs(genExtraKwargs))
	}
	if genRegenerate {
		opts = append(opts, autocode.WithRegenerate(true))
	}
	if genInteractive {
		opts = append(opts, autocode.WithInteractive(true))
	}
	if verbose {
		opts = append(opts, autocode.WithVerbose(true))
	}
	if genAttempts > 0 {
		opts = append(opts, autocode.WithMaxAttempts(genAttempts))
	}
	if genOverride != "" {
		opts = append(opts, autocode.WithOverride(genOverride))
	}
	if cmd.Flags().Changed("dry-run-value") {
		var v any
		if err := json.Unmarshal([]byte(genDryValue), &v); err != nil {
			return nil, fmt.Errorf("invalid --dry-run-value: %w", err)
		}
		opts = append(opts, autocode.WithDryRun(true), autocode.WithDryRunStub(autocode.ReturnValueVerbose(v, cmd.ErrOrStderr())))
	}
	return opts, nil
}

// parseVars parses name:type[:description] specs.
func parseVars(specs []string, defaults map[string]string) ([]autocode.Variable, error) {
	vars := make([]autocode.Variable, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, ":", 3)
		if parts[0] == "" {
			return nil, fmt.Errorf("invalid parameter %q: want name:type[:description]", spec)
		}
		v := autocode.Variable{Name: parts[0]}
		if len(parts) > 1 {
			v.Type = parts[1]
		}
		if len(parts) > 2 {
			v.Description = parts[2]
		}
		if raw, ok := defaults[v.Name]; ok {
			if err := json.Unmarshal([]byte(raw), &v.Default); err != nil {
				return nil, fmt.Errorf("invalid default for %s: %w", v.Name, err)
			}
		}
		vars = append(vars, v)
	}
	return vars, nil
}

func parseCall(rawArgs, rawKwargs string) ([]any, map[string]any, error) {
	var args []any
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return nil, nil, fmt.Errorf("invalid --call (want a JSON array): %w", err)
	}
	var kwargs map[string]any
	if rawKwargs != "" {
		if err := json.Unmarshal([]byte(rawKwargs), &kwargs); err != nil {
			return nil, nil, fmt.Errorf("invalid --kwargs (want a JSON object): %w", err)
		}
	}
	return args, kwargs, nil
}
