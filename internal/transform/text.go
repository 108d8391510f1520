package transform

import (
	"context"
	"encoding/base64"
	"math/rand"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zero-day-ai/crucible/internal/types"
)

// Base64Transformer encodes text with standard base64.
type Base64Transformer struct {
	textTransformer
}

// NewBase64Transformer creates a base64 transformer.
func NewBase64Transformer() *Base64Transformer {
	return &Base64Transformer{textTransformer{name: "Base64Transformer"}}
}

func (t *Base64Transformer) Apply(ctx context.Context, content string, dt types.DataType) (Result, error) {
	if err := t.check(dt); err != nil {
		return Result{}, err
	}
	return textResult(base64.StdEncoding.EncodeToString([]byte(content))), nil
}

// ROT13Transformer rotates ASCII letters by 13 places.
type ROT13Transformer struct {
	textTransformer
}

// NewROT13Transformer creates a ROT13 transformer.
func NewROT13Transformer() *ROT13Transformer {
	return &ROT13Transformer{textTransformer{name: "ROT13Transformer"}}
}

func (t *ROT13Transformer) Apply(ctx context.Context, content string, dt types.DataType) (Result, error) {
	if err := t.check(dt); err != nil {
		return Result{}, err
	}
	return textResult(strings.Map(rot13, content)), nil
}

func rot13(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z':
		return 'a' + (r-'a'+13)%26
	case r >= 'A' && r <= 'Z':
		return 'A' + (r-'A'+13)%26
	default:
		return r
	}
}

// DefaultLeetSubstitutions maps lower-case letters to their leetspeak form.
var DefaultLeetSubstitutions = map[rune]string{
	'a': "4",
	'b': "8",
	'e': "3",
	'g': "9",
	'i': "1",
	'l': "1",
	'o': "0",
	's': "5",
	't': "7",
	'z': "2",
}

// LeetspeakTransformer replaces letters with look-alike digits. Matching is
// case-insensitive.
type LeetspeakTransformer struct {
	textTransformer
	substitutions map[rune]string
}

// NewLeetspeakTransformer creates a leetspeak transformer. A nil map uses
// DefaultLeetSubstitutions.
func NewLeetspeakTransformer(substitutions map[rune]string) *LeetspeakTransformer {
	if substitutions == nil {
		substitutions = DefaultLeetSubstitutions
	}
	return &LeetspeakTransformer{
		textTransformer: textTransformer{name: "LeetspeakTransformer"},
		substitutions:   substitutions,
	}
}

func (t *LeetspeakTransformer) Apply(ctx context.Context, content string, dt types.DataType) (Result, error) {
	if err := t.check(dt); err != nil {
		return Result{}, err
	}

	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if sub, ok := t.substitutions[unicode.ToLower(r)]; ok {
			b.WriteString(sub)
			continue
		}
		b.WriteRune(r)
	}
	return textResult(b.String()), nil
}

var (
	circleEmoji = map[rune][]string{
		'a': {"🅐", "🅰️"}, 'b': {"🅑", "🅱️"}, 'c': {"🅒", "🅲"}, 'd': {"🅓", "🅳"}, 'e': {"🅔", "🅴"},
		'f': {"🅕", "🅵"}, 'g': {"🅖", "🅶"}, 'h': {"🅗", "🅷"}, 'i': {"🅘", "🅸"}, 'j': {"🅙", "🅹"},
		'k': {"🅚", "🅺"}, 'l': {"🅛", "🅻"}, 'm': {"🅜", "🅼"}, 'n': {"🅝", "🅽"}, 'o': {"🅞", "🅾️"},
		'p': {"🅟", "🅿️"}, 'q': {"🅠", "🆀"}, 'r': {"🅡", "🆁"}, 's': {"🅢", "🆂"}, 't': {"🅣", "🆃"},
		'u': {"🅤", "🆄"}, 'v': {"🅥", "🆅"}, 'w': {"🅦", "🆆"}, 'x': {"🅧", "🆇"}, 'y': {"🅨", "🆈"},
		'z': {"🅩", "🆉"},
	}
	squareEmoji = map[rune][]string{
		'a': {"🄰"}, 'b': {"🄱"}, 'c': {"🄲"}, 'd': {"🄳"}, 'e': {"🄴"},
		'f': {"🄵"}, 'g': {"🄶"}, 'h': {"🄷"}, 'i': {"🄸"}, 'j': {"🄹"},
		'k': {"🄺"}, 'l': {"🄻"}, 'm': {"🄼"}, 'n': {"🄽"}, 'o': {"🄾"},
		'p': {"🄿"}, 'q': {"🅀"}, 'r': {"🅁"}, 's': {"🅂"}, 't': {"🅃"},
		'u': {"🅄"}, 'v': {"🅅"}, 'w': {"🅆"}, 'x': {"🅇"}, 'y': {"🅈"},
		'z': {"🅉"},
	}
)

// EmojiTransformer lower-cases text and swaps each letter for a randomly
// chosen circled or squared letter emoji.
type EmojiTransformer struct {
	textTransformer
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEmojiTransformer creates an emoji transformer seeded with seed.
func NewEmojiTransformer(seed int64) *EmojiTransformer {
	return &EmojiTransformer{
		textTransformer: textTransformer{name: "EmojiTransformer"},
		rng:             rand.New(rand.NewSource(seed)),
	}
}

func (t *EmojiTransformer) Apply(ctx context.Context, content string, dt types.DataType) (Result, error) {
	if err := t.check(dt); err != nil {
		return Result{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	for _, r := range strings.ToLower(content) {
		set := squareEmoji
		if t.rng.Float64() < 0.5 {
			set = circleEmoji
		}
		choices, ok := set[r]
		if !ok {
			b.WriteRune(r)
			continue
		}
		b.WriteString(choices[t.rng.Intn(len(choices))])
	}
	return textResult(b.String()), nil
}

// CaseMode selects the casing applied by CaseTransformer.
type CaseMode string

const (
	CaseUpper CaseMode = "upper"
	CaseLower CaseMode = "lower"
	CaseTitle CaseMode = "title"
)

// CaseTransformer changes the case of text using language-aware rules.
type CaseTransformer struct {
	textTransformer
	mode CaseMode
	tag  language.Tag
}

// NewCaseTransformer creates a case transformer. tag selects the language
// rules; language.Und is a safe default.
func NewCaseTransformer(mode CaseMode, tag language.Tag) (*CaseTransformer, error) {
	switch mode {
	case CaseUpper, CaseLower, CaseTitle:
	default:
		return nil, types.NewError(ErrCodeInvalidSpec, "unknown case mode: "+string(mode))
	}
	return &CaseTransformer{
		textTransformer: textTransformer{name: "CaseTransformer"},
		mode:            mode,
		tag:             tag,
	}, nil
}

func (t *CaseTransformer) Identifier() types.Identifier {
	return t.textTransformer.Identifier().With("mode", string(t.mode))
}

func (t *CaseTransformer) Apply(ctx context.Context, content string, dt types.DataType) (Result, error) {
	if err := t.check(dt); err != nil {
		return Result{}, err
	}
	// a Caser carries state, so each call gets its own
	var caser cases.Caser
	switch t.mode {
	case CaseUpper:
		caser = cases.Upper(t.tag)
	case CaseLower:
		caser = cases.Lower(t.tag)
	default:
		caser = cases.Title(t.tag)
	}
	return textResult(caser.String(content)), nil
}

// StringJoinTransformer inserts a separator between the characters of
// every word: "test me" becomes "t-e-s-t m-e".
type StringJoinTransformer struct {
	textTransformer
	separator string
}

// NewStringJoinTransformer creates a string join transformer. An empty
// separator defaults to "-".
func NewStringJoinTransformer(separator string) *StringJoinTransformer {
	if separator == "" {
		separator = "-"
	}
	return &StringJoinTransformer{
		textTransformer: textTransformer{name: "StringJoinTransformer"},
		separator:       separator,
	}
}

func (t *StringJoinTransformer) Apply(ctx context.Context, content string, dt types.DataType) (Result, error) {
	if err := t.check(dt); err != nil {
		return Result{}, err
	}

	words := strings.Split(content, " ")
	for i, w := range words {
		chars := make([]string, 0, len(w))
		for _, r := range w {
			chars = append(chars, string(r))
		}
		words[i] = strings.Join(chars, t.separator)
	}
	return textResult(strings.Join(words, " ")), nil
}
