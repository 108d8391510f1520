package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zero-day-ai/crucible/internal/types"
)

// SeedPrompt is an externally authored prompt definition. Value is a
// text/template body for text prompts and a path or URL otherwise.
type SeedPrompt struct {
	ID             types.ID          `yaml:"id,omitempty" json:"id,omitempty"`
	Value          string            `yaml:"value" json:"value"`
	DataType       types.DataType    `yaml:"data_type,omitempty" json:"data_type"`
	Name           string            `yaml:"name,omitempty" json:"name,omitempty"`
	DatasetName    string            `yaml:"dataset_name,omitempty" json:"dataset_name,omitempty"`
	HarmCategories []string          `yaml:"harm_categories,omitempty" json:"harm_categories,omitempty"`
	Description    string            `yaml:"description,omitempty" json:"description,omitempty"`
	Authors        []string          `yaml:"authors,omitempty" json:"authors,omitempty"`
	Groups         []string          `yaml:"groups,omitempty" json:"groups,omitempty"`
	Source         string            `yaml:"source,omitempty" json:"source,omitempty"`
	DateAdded      *time.Time        `yaml:"date_added,omitempty" json:"date_added,omitempty"`
	AddedBy        string            `yaml:"added_by,omitempty" json:"added_by,omitempty"`
	Metadata       map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Parameters     []string          `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	PromptGroupID  string            `yaml:"prompt_group_id,omitempty" json:"prompt_group_id,omitempty"`
	Sequence       *int              `yaml:"sequence,omitempty" json:"sequence,omitempty"`
}

// Validate checks the seed prompt has a value and a known data type.
// An empty data type is treated as text.
func (p *SeedPrompt) Validate() error {
	if p.Value == "" {
		return NewInvalidSeedError(p.Name, "value is required")
	}
	if p.DataType == "" {
		p.DataType = types.DataTypeText
	}
	if !p.DataType.IsValid() {
		return NewInvalidSeedError(p.Name, fmt.Sprintf("unknown data type %q", p.DataType))
	}
	return nil
}

// Render renders the prompt's value with params. Only text prompts are
// templates; passing parameters to any other data type is an error.
func (p *SeedPrompt) Render(r *Renderer, params map[string]any) (string, error) {
	dt := p.DataType
	if dt == "" {
		dt = types.DataTypeText
	}
	if dt != types.DataTypeText {
		if len(params) > 0 {
			return "", NewTemplateRenderError(p.displayName(), fmt.Errorf("data type %s does not take parameters", dt))
		}
		return p.Value, nil
	}

	if len(p.Parameters) > 0 {
		declared := make(map[string]struct{}, len(p.Parameters))
		for _, name := range p.Parameters {
			declared[name] = struct{}{}
		}
		for key := range params {
			if _, ok := declared[key]; !ok {
				return "", NewTemplateRenderError(p.displayName(), fmt.Errorf("parameter %q is not declared", key))
			}
		}
	}
	return r.Render(p.displayName(), p.Value, params)
}

// CheckParameters reports whether Render would accept exactly names as
// parameters, without rendering. Callers that always pass the same keys use
// it to reject a template when it is loaded rather than on first use.
func (p *SeedPrompt) CheckParameters(r *Renderer, names ...string) error {
	if p.DataType != "" && p.DataType != types.DataTypeText {
		if len(names) > 0 {
			return NewTemplateRenderError(p.displayName(), fmt.Errorf("data type %s does not take parameters", p.DataType))
		}
		return nil
	}

	referenced, err := r.Parameters(p.displayName(), p.Value)
	if err != nil {
		return err
	}
	supplied := make(map[string]bool, len(names))
	for _, n := range names {
		supplied[n] = true
	}

	var missing, surplus []string
	for _, ref := range referenced {
		if !supplied[ref] {
			missing = append(missing, ref)
		}
		delete(supplied, ref)
	}
	for n := range supplied {
		surplus = append(surplus, n)
	}
	sort.Strings(surplus)

	switch {
	case len(missing) > 0:
		return NewTemplateRenderError(p.displayName(), fmt.Errorf("template references parameters that are never supplied: %s", strings.Join(missing, ", ")))
	case len(surplus) > 0:
		return NewTemplateRenderError(p.displayName(), fmt.Errorf("template must reference parameters: %s", strings.Join(surplus, ", ")))
	}

	if len(p.Parameters) > 0 {
		declared := make(map[string]bool, len(p.Parameters))
		for _, d := range p.Parameters {
			declared[d] = true
		}
		for _, n := range names {
			if !declared[n] {
				return NewTemplateRenderError(p.displayName(), fmt.Errorf("parameter %q is not declared", n))
			}
		}
	}
	return nil
}

func (p *SeedPrompt) displayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.ID != "" {
		return p.ID.String()
	}
	return "seed"
}

// SeedPromptGroup is a set of prompts sent together, ordered by sequence.
type SeedPromptGroup struct {
	Prompts []SeedPrompt
}

// NewSeedPromptGroup builds a group from prompts. Every prompt must carry a
// sequence; the group is sorted ascending by it.
func NewSeedPromptGroup(prompts []SeedPrompt) (*SeedPromptGroup, error) {
	for _, p := range prompts {
		if p.Sequence == nil {
			return nil, types.NewError(ErrCodeMissingSequence,
				fmt.Sprintf("all prompts in a group must have a sequence number (missing on %q)", p.displayName()))
		}
	}

	sorted := make([]SeedPrompt, len(prompts))
	copy(sorted, prompts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return *sorted[i].Sequence < *sorted[j].Sequence
	})
	return &SeedPromptGroup{Prompts: sorted}, nil
}

// GroupID returns the shared prompt group id of the first member.
func (g *SeedPromptGroup) GroupID() string {
	if len(g.Prompts) == 0 {
		return ""
	}
	return g.Prompts[0].PromptGroupID
}

// SeedPromptDataset is a named collection of seed prompts as loaded from a
// YAML file. Dataset-level descriptive fields are copied into prompts that
// do not set their own.
type SeedPromptDataset struct {
	Name           string         `yaml:"dataset_name,omitempty"`
	Description    string         `yaml:"description,omitempty"`
	HarmCategories []string       `yaml:"harm_categories,omitempty"`
	Authors        []string       `yaml:"authors,omitempty"`
	Groups         []string       `yaml:"groups,omitempty"`
	Source         string         `yaml:"source,omitempty"`
	DataType       types.DataType `yaml:"data_type,omitempty"`
	Prompts        []SeedPrompt   `yaml:"prompts"`
}

func (d *SeedPromptDataset) applyDefaults() {
	for i := range d.Prompts {
		p := &d.Prompts[i]
		if p.ID == "" {
			p.ID = types.NewID()
		}
		if p.DatasetName == "" {
			p.DatasetName = d.Name
		}
		if len(p.HarmCategories) == 0 {
			p.HarmCategories = d.HarmCategories
		}
		if len(p.Authors) == 0 {
			p.Authors = d.Authors
		}
		if len(p.Groups) == 0 {
			p.Groups = d.Groups
		}
		if p.Source == "" {
			p.Source = d.Source
		}
		if p.DataType == "" {
			p.DataType = d.DataType
		}
	}
}

// Validate validates every prompt in the dataset.
func (d *SeedPromptDataset) Validate() error {
	for i := range d.Prompts {
		if err := d.Prompts[i].Validate(); err != nil {
			return fmt.Errorf("prompt at index %d: %w", i, err)
		}
	}
	return nil
}

// PromptGroups returns the dataset's prompts grouped by prompt group id, in order
// of first appearance. Prompts without a group id are not included.
func (d *SeedPromptDataset) PromptGroups() ([]*SeedPromptGroup, error) {
	var order []string
	byID := make(map[string][]SeedPrompt)
	for _, p := range d.Prompts {
		if p.PromptGroupID == "" {
			continue
		}
		if _, seen := byID[p.PromptGroupID]; !seen {
			order = append(order, p.PromptGroupID)
		}
		byID[p.PromptGroupID] = append(byID[p.PromptGroupID], p)
	}

	groups := make([]*SeedPromptGroup, 0, len(order))
	for _, id := range order {
		g, err := NewSeedPromptGroup(byID[id])
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", id, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// Values returns the raw value of every prompt, in file order.
func (d *SeedPromptDataset) Values() []string {
	out := make([]string, len(d.Prompts))
	for i, p := range d.Prompts {
		out[i] = p.Value
	}
	return out
}
