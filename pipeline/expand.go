package pipeline

import (
	"cmp"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Only the braced form is a reference. A bare $NAME, $$ or $5 is left as
// written for the shell or the request body to interpret.
var referencePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Substituted values shorter than this are not redacted.
const minRedactLen = 8

// expander substitutes ${NAME} references. It remembers every value it
// substituted and every reference it could not resolve.
type expander struct {
	lookup  LookupFunc
	missing map[string]struct{}
	values  map[string]struct{}
}

func newExpander(lookup LookupFunc) *expander {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &expander{
		lookup:  lookup,
		missing: map[string]struct{}{},
		values:  map[string]struct{}{},
	}
}

func (x *expander) expand(s string) string {
	return referencePattern.ReplaceAllStringFunc(s, func(ref string) string {
		key := ref[2 : len(ref)-1]
		v, ok := x.lookup(key)
		if !ok || v == "" {
			x.missing[key] = struct{}{}
			return ""
		}
		if len(v) >= minRedactLen {
			x.values[v] = struct{}{}
		}
		return v
	})
}

func (x *expander) expandAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = x.expand(s)
	}
	return out
}

func (x *expander) expandMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = x.expand(v)
	}
	return out
}

func (x *expander) err() error {
	if len(x.missing) == 0 {
		return nil
	}
	keys := make([]string, 0, len(x.missing))
	for k := range x.missing {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return fmt.Errorf("%w: %s", ErrMissingSecret, strings.Join(keys, ", "))
}

func (x *expander) secrets() []string {
	out := make([]string, 0, len(x.values))
	for v := range x.values {
		out = append(out, v)
	}
	// Longest first so that a value containing another is hidden whole.
	slices.SortFunc(out, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})
	return out
}

const redacted = "***"

type redactor struct {
	r *strings.Replacer
}

func newRedactor(secrets []string) *redactor {
	if len(secrets) == 0 {
		return &redactor{}
	}
	pairs := make([]string, 0, len(secrets)*2)
	for _, s := range secrets {
		pairs = append(pairs, s, redacted)
	}
	return &redactor{r: strings.NewReplacer(pairs...)}
}

func (r *redactor) String(s string) string {
	if r == nil || r.r == nil {
		return s
	}
	return r.r.Replace(s)
}

func (r *redactor) Strings(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = r.String(s)
	}
	return out
}

type redactedError struct {
	err error
	msg string
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func (r *redactor) Error(err error) error {
	if err == nil || r == nil || r.r == nil {
		return err
	}
	msg := r.String(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{err: err, msg: msg}
}
