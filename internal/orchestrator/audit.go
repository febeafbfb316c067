package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/oppscan/oppscan/internal/domain"
)

// auditRecord is the full per-run audit document (§6): the run's own
// fields plus the phase timing breakdown already carried on PipelineRun.
type auditRecord struct {
	Run *domain.PipelineRun `json:"run"`
}

// rankedOpportunity is one line of the ranked-opportunity output,
// trimmed to the fields a human reviewer scans first.
type rankedOpportunity struct {
	Rank        int                 `json:"rank"`
	ProductID   domain.ProductID    `json:"product_id"`
	FinalScore  int                 `json:"final_score"`
	Window      domain.WindowLabel  `json:"window"`
	Urgency     domain.UrgencyLevel `json:"urgency"`
	RiskValue   float64             `json:"risk_adjusted_value"`
	Thesis      string              `json:"thesis"`
	Action      string              `json:"action"`
	Shortlisted bool                `json:"shortlisted"`
}

// writeAuditArtifacts writes the run's audit JSON and, when artifacts
// were produced, a ranked-opportunity JSON, both named by run id. An empty
// artifactDir disables the write entirely (used by tests that never
// touch the filesystem).
func writeAuditArtifacts(artifactDir string, run *domain.PipelineRun, artifacts []domain.OpportunityArtifact, shortlist *domain.ShortlistSnapshot) error {
	if artifactDir == "" {
		return nil
	}
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return fmt.Errorf("audit: create artifact dir: %w", err)
	}

	if err := writeIndentedJSON(filepath.Join(artifactDir, fmt.Sprintf("run-%s.json", run.ID)), auditRecord{Run: run}); err != nil {
		return fmt.Errorf("audit: write run record: %w", err)
	}

	if len(artifacts) == 0 {
		return nil
	}
	ranked := buildRankedOpportunities(artifacts, shortlist)
	if err := writeIndentedJSON(filepath.Join(artifactDir, fmt.Sprintf("opportunities-%s.json", run.ID)), ranked); err != nil {
		return fmt.Errorf("audit: write ranked opportunities: %w", err)
	}
	return nil
}

// buildRankedOpportunities orders every non-rejected artifact by
// RankScore descending — broader than the shortlist itself, since the
// audit trail should show why products just outside the cutoff didn't
// make it.
func buildRankedOpportunities(artifacts []domain.OpportunityArtifact, shortlist *domain.ShortlistSnapshot) []rankedOpportunity {
	var shortlisted map[domain.ProductID]bool
	if shortlist != nil {
		shortlisted = make(map[domain.ProductID]bool, len(shortlist.ProductIDs))
		for _, id := range shortlist.ProductIDs {
			shortlisted[id] = true
		}
	}

	eligible := make([]domain.OpportunityArtifact, 0, len(artifacts))
	for _, a := range artifacts {
		if !a.Rejected {
			eligible = append(eligible, a)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Economics.RankScore > eligible[j].Economics.RankScore
	})

	out := make([]rankedOpportunity, 0, len(eligible))
	for i, a := range eligible {
		out = append(out, rankedOpportunity{
			Rank:        i + 1,
			ProductID:   a.ProductID,
			FinalScore:  a.FinalScore,
			Window:      a.Window,
			Urgency:     a.Urgency,
			RiskValue:   a.Economics.RiskAdjustedValue,
			Thesis:      a.Thesis,
			Action:      a.Action,
			Shortlisted: shortlisted[a.ProductID],
		})
	}
	return out
}

func writeIndentedJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
