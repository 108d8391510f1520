package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/zero-day-ai/crucible/internal/types"
)

//go:embed builtin
var builtinFS embed.FS

// Builtin prompt names, as "<group>/<name>".
const (
	BuiltinRedTeamChatbot  = "attack/red_team_chatbot"
	BuiltinCrescendo       = "attack/crescendo"
	BuiltinAttackerTurn    = "attack/attacker_turn"
	BuiltinDirect          = "attack/direct"
	BuiltinFeedback        = "attack/feedback"
	BuiltinTrueFalseSystem = "score/true_false_system"
	BuiltinLikertSystem    = "score/likert_system"
	BuiltinVariation       = "transform/variation"
	BuiltinTranslation     = "transform/translation"
)

var (
	builtinOnce    sync.Once
	builtinPrompts map[string]*SeedPrompt
	builtinErr     error
)

func loadBuiltins() {
	builtinPrompts = make(map[string]*SeedPrompt)
	builtinErr = fs.WalkDir(builtinFS, "builtin", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".yaml" {
			return nil
		}
		data, err := builtinFS.ReadFile(p)
		if err != nil {
			return err
		}
		sp, err := ParseSeedPrompt(data, p)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(strings.TrimPrefix(p, "builtin/"), ".yaml")
		builtinPrompts[name] = sp
		return nil
	})
}

// Builtin returns a copy of the named builtin prompt.
func Builtin(name string) (*SeedPrompt, error) {
	builtinOnce.Do(loadBuiltins)
	if builtinErr != nil {
		return nil, fmt.Errorf("failed to load builtin prompts: %w", builtinErr)
	}

	sp, ok := builtinPrompts[name]
	if !ok {
		return nil, types.NewError(ErrCodeBuiltinNotFound, "builtin prompt not found: "+name)
	}
	cp := *sp
	return &cp, nil
}

// MustBuiltin is like Builtin but panics if the prompt does not exist.
// Use it only with the Builtin* constants.
func MustBuiltin(name string) *SeedPrompt {
	sp, err := Builtin(name)
	if err != nil {
		panic(err)
	}
	return sp
}

// BuiltinNames lists all builtin prompt names, sorted.
func BuiltinNames() []string {
	builtinOnce.Do(loadBuiltins)
	names := make([]string, 0, len(builtinPrompts))
	for name := range builtinPrompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
