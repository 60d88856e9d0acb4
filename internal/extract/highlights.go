package extract

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// HighlightRule tags a product with a label when any of its keywords
// appears in the title or page text.
type HighlightRule struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Highlighter derives short selling-point labels from page content.
type Highlighter struct {
	rules []HighlightRule
}

// defaultHighlightRules covers the common supplement selling points. A
// rules file replaces, not extends, this table.
var defaultHighlightRules = []HighlightRule{
	{Label: "高濃度", Keywords: []string{"高濃度", "高單位", "高劑量"}},
	{Label: "rTG型式", Keywords: []string{"rtg", "r-tg"}},
	{Label: "素食可", Keywords: []string{"素食", "全素", "vegan"}},
	{Label: "無添加", Keywords: []string{"無添加", "無香料", "無色素", "無防腐劑"}},
	{Label: "專利原料", Keywords: []string{"專利", "patented"}},
	{Label: "檢驗合格", Keywords: []string{"檢驗", "sgs", "認證"}},
	{Label: "緩釋型", Keywords: []string{"緩釋", "長效"}},
	{Label: "益生菌", Keywords: []string{"益生菌", "probiotic"}},
}

// NewHighlighter builds a Highlighter from a YAML rules file. An empty
// path falls back to the built-in rule table.
func NewHighlighter(rulesPath string) (*Highlighter, error) {
	if rulesPath == "" {
		return &Highlighter{rules: defaultHighlightRules}, nil
	}

	raw, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read highlight rules %s", rulesPath)
	}

	var rules []HighlightRule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, eris.Wrap(err, "extract: parse highlight rules")
	}
	if len(rules) == 0 {
		return nil, eris.Errorf("extract: highlight rules %s is empty", rulesPath)
	}

	return &Highlighter{rules: rules}, nil
}

// Highlights returns the labels whose keywords appear in the title or page
// text, in rule order, each label at most once.
func (h *Highlighter) Highlights(title, pageText string) []string {
	haystack := strings.ToLower(title + "\n" + pageText)

	var labels []string
	for _, rule := range h.rules {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
				labels = append(labels, rule.Label)
				break
			}
		}
	}
	return labels
}
