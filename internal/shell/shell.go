// Package shell is the interactive terminal front end: PQL lines print their
// parse tree and canonical form, JSON lines are converted back to PQL.
package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/dcc-portal/pqlservice/internal/event"
	"github.com/dcc-portal/pqlservice/internal/repl/autocomplete"
	"github.com/dcc-portal/pqlservice/internal/repl/meta"
	"github.com/dcc-portal/pqlservice/internal/repl/planner"
	"github.com/dcc-portal/pqlservice/internal/repl/pql"
	"github.com/dcc-portal/pqlservice/internal/repl/schema"
	"github.com/dcc-portal/pqlservice/internal/repl/session"
	"github.com/dcc-portal/pqlservice/internal/usage"
)

const (
	prompt             = "pql> "
	continuationPrompt = "...> "
)

// Shell evaluates input lines. Eval is independent of the terminal so the
// same logic serves Run and tests.
type Shell struct {
	tr       *pql.Translator
	planner  *planner.Planner
	complete *autocomplete.Engine
	meta     *meta.Handler
	sess     *session.Session
	rec      *event.Recorder
	tracker  *usage.Tracker
}

// Options configures a Shell. Publisher and Tracker are optional.
type Options struct {
	Registry   *schema.Registry
	Translator *pql.Translator
	Publisher  event.Publisher
	Tracker    *usage.Tracker // enables :stats
}

// New creates a shell.
func New(opts Options) *Shell {
	rec := event.NewRecorder("shell")
	if opts.Publisher != nil {
		rec.SetPublisher(opts.Publisher)
	}
	return &Shell{
		tr:       opts.Translator,
		planner:  planner.New(opts.Registry),
		complete: autocomplete.New(opts.Registry),
		meta:     meta.New(opts.Registry),
		sess:     session.NewSession(),
		rec:      rec,
		tracker:  opts.Tracker,
	}
}

// Eval runs one complete input and returns what to print. clearScreen
// reports a :clear request.
func (s *Shell) Eval(input string) (out string, clearScreen bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}

	if cmd, args, ok := meta.Parse(input); ok {
		switch cmd {
		case "validate":
			return s.validate(strings.Join(args, " ")), false
		case "stats":
			return s.stats(), false
		}
		res, err := s.meta.Execute(s.sess, cmd, args)
		if err != nil {
			return "error: " + err.Error(), false
		}
		return res.Output, res.Clear
	}

	s.sess.AddHistory(input)
	if input[0] == '{' || input[0] == '[' || input[0] == '"' {
		return s.serialize(input), false
	}
	return s.parse(input), false
}

func (s *Shell) parse(text string) string {
	start := time.Now()
	res := s.tr.TryParse(text)
	if !res.IsValid {
		s.rec.Record(context.Background(), event.KindParse, nil, errors.New(res.ErrorMessage), start)
		return "error: " + res.ErrorMessage
	}
	s.rec.Record(context.Background(), event.KindParse, res.Result, nil, start)

	data, err := json.MarshalIndent(res.Result, "", "  ")
	if err != nil {
		return "error: " + err.Error()
	}
	return string(data) + "\n=> " + s.tr.ToPQL(res.Result)
}

func (s *Shell) serialize(text string) string {
	start := time.Now()
	tree, err := pql.DecodeTree([]byte(text))
	if err != nil {
		s.rec.Record(context.Background(), event.KindSerialize, nil, err, start)
		return "error: invalid parse tree: " + err.Error()
	}
	s.rec.Record(context.Background(), event.KindSerialize, tree, nil, start)
	return "=> " + s.tr.ToPQL(tree)
}

func (s *Shell) validate(text string) string {
	if text == "" {
		return "usage: :validate <pql>"
	}
	start := time.Now()
	tree, err := s.tr.FromPQL(text)
	if err != nil {
		s.rec.Record(context.Background(), event.KindValidate, nil, err, start)
		return "error: " + err.Error()
	}
	plan, err := s.planner.Plan(tree)
	s.rec.Record(context.Background(), event.KindValidate, tree, err, start)
	if err != nil {
		return "invalid: " + err.Error()
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "error: " + err.Error()
	}
	return string(data)
}

func (s *Shell) stats() string {
	if s.tracker == nil {
		return "(stats disabled)"
	}
	data, err := json.MarshalIndent(s.tracker.Snapshot(5), "", "  ")
	if err != nil {
		return "error: " + err.Error()
	}
	return string(data)
}

// Complete returns the full replacement lines for tab completion of line.
func (s *Shell) Complete(line string) []string {
	if strings.HasPrefix(strings.TrimSpace(line), ":") {
		var out []string
		for _, c := range []string{"validate", "stats"} {
			if strings.HasPrefix(":"+c, strings.TrimSpace(line)) {
				out = append(out, ":"+c)
			}
		}
		for _, item := range s.complete.Complete(line, len(line)) {
			out = append(out, item.Label)
		}
		return out
	}

	head := line[:wordStart(line)]
	var out []string
	for _, item := range s.complete.Complete(line, len(line)) {
		text := item.InsertText
		if text == "" {
			text = item.Label
		}
		out = append(out, head+text)
	}
	return out
}

// wordStart returns the offset of the word being typed at the end of line.
// An open quote belongs to the word.
func wordStart(line string) int {
	i := strings.LastIndexAny(line, "(, \t")
	start := i + 1
	if start < len(line) && (line[start] == '"' || line[start] == '\'') {
		start++
	}
	return start
}

// needsMoreInput reports whether text has unclosed parentheses or quotes.
func needsMoreInput(text string) bool {
	depth := 0
	var quote rune
	escaped := false
	for _, r := range text {
		switch {
		case escaped:
			escaped = false
		case quote != 0:
			if r == '\\' {
				escaped = true
			} else if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			depth--
		}
	}
	return depth > 0 || quote != 0
}

// Run drives the shell on the terminal until EOF or "exit". History is read
// from and saved to historyFile when it is not empty.
func (s *Shell) Run(out io.Writer, historyFile string) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(s.Complete)

	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			if f, err := os.Create(historyFile); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}()
	}

	fmt.Fprintln(out, "PQL shell. Type :help for commands, exit or Ctrl+D to quit.")

	var buf strings.Builder
	for {
		p := prompt
		if buf.Len() > 0 {
			p = continuationPrompt
		}
		input, err := line.Prompt(p)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				buf.Reset()
				fmt.Fprintln(out, "^C")
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		trimmed := strings.TrimSpace(input)
		if buf.Len() == 0 && (trimmed == "exit" || trimmed == "quit") {
			return nil
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(input)
		full := buf.String()
		if !strings.HasPrefix(strings.TrimSpace(full), ":") && needsMoreInput(full) {
			continue
		}
		buf.Reset()

		if strings.TrimSpace(full) != "" {
			line.AppendHistory(full)
		}
		result, clearScreen := s.Eval(full)
		if clearScreen {
			fmt.Fprint(out, "\033[H\033[2J")
			continue
		}
		if result != "" {
			fmt.Fprintln(out, result)
		}
	}
}
