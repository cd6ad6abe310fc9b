package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type runFlags struct {
	flow      string
	input     string
	runID     string
	vars      map[string]string
	history   []string
	knowledge map[string]string
	mock      string
	output    string
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a flow once and print its answer",
		Long: `Execute a flow once and print its answer.

--flow takes a flow file or a numeric flow id looked up in --flows (or in
postgres when --postgres is set). When --input is omitted the input is read
from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.output != "text" && f.output != "json" {
				return fmt.Errorf("unknown output format %q", f.output)
			}
			ctx := cmd.Context()
			a, err := setup(ctx, cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			ref, err := parseFlowRef(f.flow)
			if err != nil {
				return err
			}
			input := f.input
			if !cmd.Flags().Changed("input") {
				if input, err = readInput(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			history, err := parseHistory(f.history)
			if err != nil {
				return err
			}
			if err := indexKnowledge(cmd, a, f.knowledge); err != nil {
				return err
			}

			client, err := a.llmClient(ctx, cmd.Flags().Changed("mock-response"), f.mock)
			if err != nil {
				return err
			}
			e := a.engine(flowstudio.Dependencies{LLM: client})

			opts := []flowstudio.RunOption{flowstudio.WithHistory(history...)}
			if f.runID != "" {
				opts = append(opts, flowstudio.WithRunID(f.runID))
			}
			if len(f.vars) > 0 {
				vars := make(map[string]any, len(f.vars))
				for k, val := range f.vars {
					vars[k] = val
				}
				opts = append(opts, flowstudio.WithVars(vars))
			}

			var res *flowstudio.RunResult
			var runErr error
			if ref.path != "" {
				g, err := a.graph(ctx, ref)
				if err != nil {
					return err
				}
				res, runErr = e.RunGraph(ctx, g, input, opts...)
			} else {
				res, runErr = e.RunFlow(ctx, ref.id, input, opts...)
			}
			if res != nil {
				if err := printResult(cmd.OutOrStdout(), res, f.output); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.flow, "flow", "", "flow file or flow id")
	fl.StringVar(&f.input, "input", "", "user input; read from stdin when omitted")
	fl.StringVar(&f.runID, "run-id", "", "run id; generated when empty")
	fl.StringToStringVar(&f.vars, "var", nil, "extra template variable, key=value (repeatable)")
	fl.StringArrayVar(&f.history, "history", nil, "prior turn, role:content (repeatable)")
	fl.StringToStringVar(&f.knowledge, "knowledge", nil, "index a text file for retrieval, document-id=path (repeatable)")
	fl.StringVar(&f.mock, "mock-response", "", "answer every LLM call with this text instead of calling a provider")
	fl.StringVarP(&f.output, "output", "o", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("flow")
	return cmd
}

func readInput(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func parseHistory(turns []string) ([]flowstudio.Turn, error) {
	out := make([]flowstudio.Turn, 0, len(turns))
	for _, t := range turns {
		role, content, ok := strings.Cut(t, ":")
		if !ok {
			return nil, fmt.Errorf("history %q: want role:content", t)
		}
		r := flowstudio.Role(strings.ToLower(strings.TrimSpace(role)))
		if r != flowstudio.RoleUser && r != flowstudio.RoleAssistant {
			return nil, fmt.Errorf("history %q: role must be user or assistant", t)
		}
		out = append(out, flowstudio.Turn{Role: r, Content: strings.TrimSpace(content)})
	}
	return out, nil
}

// indexKnowledge splits each file into paragraphs and indexes them under
// the given document id.
func indexKnowledge(cmd *cobra.Command, a *app, files map[string]string) error {
	for key, path := range files {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("knowledge %q: document id must be numeric", key)
		}
		chunks, err := readParagraphs(path)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			return fmt.Errorf("knowledge %s: no text", path)
		}
		if err := a.indexer(cmd.Context(), id, chunks...); err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		a.logger.Debug("indexed knowledge", "document_id", id, "path", path, "chunks", len(chunks))
	}
	return nil
}

// readParagraphs returns the blank-line separated paragraphs of a file.
func readParagraphs(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge: %w", err)
	}
	defer file.Close()

	var chunks []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur = nil
		}
	}
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read knowledge: %w", err)
	}
	flush()
	return chunks, nil
}

func printResult(w io.Writer, res *flowstudio.RunResult, format string) error {
	switch format {
	case "json":
		data, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "text":
		fmt.Fprintf(w, "run:    %s\n", res.RunID)
		fmt.Fprintf(w, "status: %s\n", res.Status)
		for _, rec := range res.Failed() {
			msg := "failed"
			if rec.Err != nil {
				msg = rec.Err.Error()
			}
			fmt.Fprintf(w, "node %d (%s): %s\n", rec.NodeID, rec.Type, msg)
		}
		if res.AnswerReached {
			fmt.Fprintf(w, "answer: %s\n", res.Answer)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
