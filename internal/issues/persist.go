package issues

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/model"
)

// Snapshot is the persisted issue-tracker document for one run.
type Snapshot struct {
	RunID       string                   `json:"run_id"`
	GeneratedAt time.Time                `json:"generated_at"`
	Metrics     map[string]*model.BrandMetrics `json:"parse_metrics"`
	Tickets     []model.IssueTicket      `json:"tickets"`
}

// Persist writes the snapshot twice: a timestamped file for history and
// issues_latest.json for dashboards that want a stable path. A markdown
// summary sits alongside for humans.
func Persist(dir string, snap Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "issues: create dir %s", dir)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "issues: marshal snapshot")
	}

	stamped := filepath.Join(dir, fmt.Sprintf("issues_%s.json", snap.GeneratedAt.Format("20060102_150405")))
	if err := os.WriteFile(stamped, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "issues: write %s", stamped)
	}

	latest := filepath.Join(dir, "issues_latest.json")
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "issues: write %s", latest)
	}

	summary := filepath.Join(dir, "issues_latest.md")
	if err := os.WriteFile(summary, []byte(renderMarkdown(snap)), 0o644); err != nil {
		return "", eris.Wrapf(err, "issues: write %s", summary)
	}

	zap.L().Info("issue snapshot persisted",
		zap.String("path", stamped),
		zap.Int("tickets", len(snap.Tickets)),
	)
	return stamped, nil
}

func renderMarkdown(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run issues %s\n\n", snap.GeneratedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Run `%s`, %d ticket(s).\n\n", snap.RunID, len(snap.Tickets))

	if len(snap.Tickets) == 0 {
		b.WriteString("No issues detected.\n")
		return b.String()
	}

	b.WriteString("| Severity | Brand | Stage | Problem | Action |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, tk := range snap.Tickets {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			tk.Severity, tk.Brand, tk.Stage, tk.Problem, tk.Action)
	}
	return b.String()
}
