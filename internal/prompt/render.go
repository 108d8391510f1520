package prompt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 256

// compiled is a parsed template plus the top-level parameters it references.
type compiled struct {
	tmpl   *template.Template
	fields map[string]struct{}
}

// Renderer renders prompt templates strictly: a referenced parameter that is
// not supplied fails, and so does a supplied parameter that the template
// never references. Parsed templates are cached by content.
//
// A Renderer is safe for concurrent use.
type Renderer struct {
	cache   *lru.Cache[string, *compiled]
	funcMap template.FuncMap
}

// NewRenderer creates a renderer with the default cache size.
func NewRenderer() *Renderer {
	return NewRendererWithCacheSize(defaultCacheSize)
}

// NewRendererWithCacheSize creates a renderer whose cache holds at most size templates.
func NewRendererWithCacheSize(size int) *Renderer {
	if size <= 0 {
		size = defaultCacheSize
	}
	// lru.New only fails for a non-positive size
	cache, _ := lru.New[string, *compiled](size)
	return &Renderer{
		cache:   cache,
		funcMap: funcMap(),
	}
}

// Render executes text with params. name is only used in error messages.
func (r *Renderer) Render(name, text string, params map[string]any) (string, error) {
	c, err := r.compile(name, text)
	if err != nil {
		return "", err
	}

	var surplus []string
	for key := range params {
		if _, ok := c.fields[key]; !ok {
			surplus = append(surplus, key)
		}
	}
	if len(surplus) > 0 {
		sort.Strings(surplus)
		return "", NewTemplateRenderError(name, fmt.Errorf("parameters not referenced by template: %s", strings.Join(surplus, ", ")))
	}

	data := params
	if data == nil {
		data = map[string]any{}
	}

	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return "", NewTemplateRenderError(name, err)
	}
	return buf.String(), nil
}

// Parameters returns the sorted top-level parameter names text references.
func (r *Renderer) Parameters(name, text string) ([]string, error) {
	c, err := r.compile(name, text)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(c.fields))
	for f := range c.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Renderer) compile(name, text string) (*compiled, error) {
	sum := sha256.Sum256([]byte(text))
	key := hex.EncodeToString(sum[:])

	if c, ok := r.cache.Get(key); ok {
		return c, nil
	}

	tmpl, err := template.New(name).Funcs(r.funcMap).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, NewTemplateRenderError(name, err)
	}

	fields := make(map[string]struct{})
	for _, t := range tmpl.Templates() {
		if t.Tree != nil {
			collectFields(t.Tree.Root, fields)
		}
	}

	c := &compiled{tmpl: tmpl, fields: fields}
	r.cache.Add(key, c)
	return c, nil
}

// collectFields records the first identifier of every field reference
// (".objective", "$.objective", ".feedback.value") reachable from node.
func collectFields(node parse.Node, fields map[string]struct{}) {
	switch n := node.(type) {
	case nil:
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, fields)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, fields)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			collectFields(cmd, fields)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			collectFields(arg, fields)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			fields[n.Ident[0]] = struct{}{}
		}
	case *parse.VariableNode:
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			fields[n.Ident[1]] = struct{}{}
		}
	case *parse.ChainNode:
		collectFields(n.Node, fields)
	case *parse.IfNode:
		collectBranch(&n.BranchNode, fields)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, fields)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, fields)
	case *parse.TemplateNode:
		collectFields(n.Pipe, fields)
	}
}

func collectBranch(b *parse.BranchNode, fields map[string]struct{}) {
	collectFields(b.Pipe, fields)
	collectFields(b.List, fields)
	collectFields(b.ElseList, fields)
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
		"quote": func(s string) string {
			return fmt.Sprintf("%q", s)
		},
		"toJSON": func(v any) (string, error) {
			data, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
		"indent": func(spaces int, s string) string {
			pad := strings.Repeat(" ", spaces)
			return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
		},
	}
}
