package pql

import "fmt"

// Translator is the entry point UI collaborators use to move between PQL
// text and parse trees. It holds no per-call state and is safe for
// concurrent use.
type Translator struct {
	log Logger
}

// Option configures a Translator.
type Option func(*Translator)

// WithLogger sets the logger parse failures and shape warnings go to.
func WithLogger(l Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.log = l
		}
	}
}

// New creates a Translator. By default diagnostics go to the standard
// logger at warning level.
func New(opts ...Option) *Translator {
	t := &Translator{log: NewStdLogger(nil, LevelWarn)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ParseResult is the never-failing outcome of TryParse.
type ParseResult struct {
	IsValid      bool   `json:"isValid"`
	Result       Tree   `json:"result,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// FromPQL parses text into a tree. Failures are logged and returned as
// *ParseError.
func (t *Translator) FromPQL(text string) (Tree, error) {
	tree, err := Parse(text)
	if err != nil {
		t.log.Errorf("pql: failed to parse %q: %s", text, err.Error())
		return nil, err
	}
	return tree, nil
}

// TryParse parses text and reports the outcome as a value.
func (t *Translator) TryParse(text string) ParseResult {
	tree, err := t.FromPQL(text)
	if err != nil {
		return ParseResult{IsValid: false, ErrorMessage: err.Error()}
	}
	return ParseResult{IsValid: true, Result: tree}
}

// ParseOrDefault parses text, returning def when it is not valid PQL.
func (t *Translator) ParseOrDefault(text string, def Tree) Tree {
	res := t.TryParse(text)
	if !res.IsValid {
		return def
	}
	return res.Result
}

// ToPQL serializes a tree. It never fails: shapes with no PQL form are
// logged and produce "".
func (t *Translator) ToPQL(tree Tree) string {
	return Serialize(tree, t.log)
}

// ToPQLJSON decodes a tree in its JSON wire shape and serializes it. Only
// malformed JSON is an error.
func (t *Translator) ToPQLJSON(data []byte) (string, error) {
	tree, err := DecodeTree(data)
	if err != nil {
		return "", fmt.Errorf("decoding parse tree: %w", err)
	}
	return t.ToPQL(tree), nil
}
