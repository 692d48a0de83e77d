// Package analysis derives rankings, groupings, and correlations from an
// experiment's evaluations. Everything here is a pure function over loaded
// records: nothing is persisted and repeated runs give identical output.
package analysis

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/PedramNavid/styleval/internal/model"
	"github.com/PedramNavid/styleval/internal/store"
)

// Record joins a job with its successful result (if any) and that result's
// evaluation (if submitted). One record exists per matrix cell.
type Record struct {
	Job    model.GenerationJob
	Result *model.GenerationResult
	Eval   *model.EvaluationEntry
}

// Scored reports whether the record carries an evaluation.
func (r Record) Scored() bool { return r.Eval != nil }

// Collect loads one record per job of the experiment, joining in the
// succeeded result row and its evaluation. Order is the store's job order, so
// repeated collections are identical.
func Collect(ctx context.Context, st store.Store, experimentID string) ([]Record, error) {
	jobs, err := st.ListJobs(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	results, err := st.ListSucceededResults(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	evals, err := st.ListEvaluations(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	byJob := make(map[string]*model.GenerationResult, len(results))
	for i := range results {
		byJob[results[i].JobID] = &results[i]
	}
	byResult := make(map[string]*model.EvaluationEntry, len(evals))
	for i := range evals {
		byResult[evals[i].ResultID] = &evals[i]
	}

	records := make([]Record, 0, len(jobs))
	for _, j := range jobs {
		rec := Record{Job: j}
		if res := byJob[j.ID]; res != nil {
			rec.Result = res
			rec.Eval = byResult[res.ID]
		}
		records = append(records, rec)
	}
	return records, nil
}

// DimensionMeans holds the mean of each score dimension over a set of
// evaluations.
type DimensionMeans struct {
	VoiceMatch float64 `json:"voice_match"`
	Coherence  float64 `json:"coherence"`
	Engagement float64 `json:"engagement"`
	BriefFit   float64 `json:"brief_fit"`
	Overall    float64 `json:"overall"`
}

// GroupStat aggregates evaluations sharing a grouping key.
type GroupStat struct {
	Key             string         `json:"key"`
	Evaluated       int            `json:"evaluated"`
	Means           DimensionMeans `json:"means"`
	Composite       float64        `json:"composite"`
	PublishRate     float64        `json:"publish_rate"`
	MeanEditMinutes float64        `json:"mean_edit_minutes"`
	MeanCostUSD     float64        `json:"mean_cost_usd"`
	MeanLatencyMS   float64        `json:"mean_latency_ms"`
}

// Summary is the experiment-level analysis result.
type Summary struct {
	ExperimentID string         `json:"experiment_id"`
	TotalJobs    int            `json:"total_jobs"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	Evaluated    int            `json:"evaluated"`
	Partial      bool           `json:"partial"`
	Means        DimensionMeans `json:"means"`
	Best         *GroupStat     `json:"best"`
	Worst        *GroupStat     `json:"worst"`
	TotalCostUSD float64        `json:"total_cost_usd"`
	AvgLatencyMS float64        `json:"avg_latency_ms"`
	PublishRate  float64        `json:"publish_rate"`
}

// Options controls summary behavior.
type Options struct {
	// RequireComplete turns a partially evaluated pool into an error instead
	// of a Partial-flagged summary.
	RequireComplete bool
}

// Summarize computes the experiment summary. Zero evaluations yield
// ErrInsufficientData.
func Summarize(experimentID string, records []Record, opts Options) (*Summary, error) {
	s := &Summary{ExperimentID: experimentID, TotalJobs: len(records)}

	var scored []Record
	for _, r := range records {
		switch {
		case r.Result != nil:
			s.Succeeded++
			s.TotalCostUSD += r.Result.CostUSD
		case r.Job.Status == model.JobStatusFailed:
			s.Failed++
		}
		if r.Scored() {
			scored = append(scored, r)
		}
	}
	s.Evaluated = len(scored)
	if s.Evaluated == 0 {
		return nil, eris.Wrapf(model.ErrInsufficientData, "analysis: experiment %s", experimentID)
	}
	s.Partial = s.Evaluated < s.Succeeded
	if s.Partial && opts.RequireComplete {
		return nil, eris.Wrapf(model.ErrInsufficientData, "analysis: %d of %d pool items evaluated", s.Evaluated, s.Succeeded)
	}

	s.Means = dimensionMeans(scored)
	s.PublishRate = publishRate(scored)

	var latencySum float64
	for _, r := range scored {
		latencySum += r.Result.LatencyMS
	}
	s.AvgLatencyMS = latencySum / float64(len(scored))

	combos := ByModelStrategy(records)
	if len(combos) > 0 {
		s.Best = &combos[0]
		s.Worst = &combos[len(combos)-1]
	}
	return s, nil
}

// ByModel groups evaluations by provider/model, ranked best first.
func ByModel(records []Record) []GroupStat {
	return groupBy(records, func(r Record) string { return r.Job.Model.String() })
}

// ByStrategy groups evaluations by prompt strategy, ranked best first.
func ByStrategy(records []Record) []GroupStat {
	return groupBy(records, func(r Record) string { return string(r.Job.Strategy) })
}

// ByModelStrategy groups evaluations by (model, strategy) combination, ranked
// best first. This is the heatmap cell granularity.
func ByModelStrategy(records []Record) []GroupStat {
	return groupBy(records, func(r Record) string {
		return r.Job.Model.String() + "|" + string(r.Job.Strategy)
	})
}

// TaskStat is the per-task breakdown with the winning combination.
type TaskStat struct {
	TaskID      string     `json:"task_id"`
	Evaluated   int        `json:"evaluated"`
	Composite   float64    `json:"composite"`
	PublishRate float64    `json:"publish_rate"`
	Best        *GroupStat `json:"best,omitempty"`
}

// ByTask breaks evaluations down per task, naming the best (model, strategy)
// combination within each.
func ByTask(records []Record) []TaskStat {
	byTask := make(map[string][]Record)
	for _, r := range records {
		if r.Scored() {
			byTask[r.Job.TaskID] = append(byTask[r.Job.TaskID], r)
		}
	}

	ids := make([]string, 0, len(byTask))
	for id := range byTask {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]TaskStat, 0, len(ids))
	for _, id := range ids {
		recs := byTask[id]
		ts := TaskStat{
			TaskID:      id,
			Evaluated:   len(recs),
			Composite:   meanComposite(recs),
			PublishRate: publishRate(recs),
		}
		if combos := ByModelStrategy(recs); len(combos) > 0 {
			ts.Best = &combos[0]
		}
		out = append(out, ts)
	}
	return out
}

// Correlations holds Pearson r between the composite score and generation
// cost/latency. Descriptive only; no significance testing.
type Correlations struct {
	CompositeCost    float64 `json:"composite_cost"`
	CompositeLatency float64 `json:"composite_latency"`
	N                int     `json:"n"`
}

// Correlate computes score/cost and score/latency correlations over the
// scored records.
func Correlate(records []Record) Correlations {
	var composites, costs, latencies []float64
	for _, r := range records {
		if !r.Scored() {
			continue
		}
		composites = append(composites, r.Eval.Scores.Composite())
		costs = append(costs, r.Result.CostUSD)
		latencies = append(latencies, r.Result.LatencyMS)
	}
	return Correlations{
		CompositeCost:    pearson(composites, costs),
		CompositeLatency: pearson(composites, latencies),
		N:                len(composites),
	}
}

func groupBy(records []Record, key func(Record) string) []GroupStat {
	groups := make(map[string][]Record)
	for _, r := range records {
		if r.Scored() {
			groups[key(r)] = append(groups[key(r)], r)
		}
	}

	out := make([]GroupStat, 0, len(groups))
	for k, recs := range groups {
		var editSum, costSum, latencySum float64
		for _, r := range recs {
			editSum += float64(r.Eval.EditMinutes)
			costSum += r.Result.CostUSD
			latencySum += r.Result.LatencyMS
		}
		n := float64(len(recs))
		out = append(out, GroupStat{
			Key:             k,
			Evaluated:       len(recs),
			Means:           dimensionMeans(recs),
			Composite:       meanComposite(recs),
			PublishRate:     publishRate(recs),
			MeanEditMinutes: editSum / n,
			MeanCostUSD:     costSum / n,
			MeanLatencyMS:   latencySum / n,
		})
	}

	// Rank: composite desc, then fewer edit minutes, then cheaper, then key
	// for a total order.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		if a.MeanEditMinutes != b.MeanEditMinutes {
			return a.MeanEditMinutes < b.MeanEditMinutes
		}
		if a.MeanCostUSD != b.MeanCostUSD {
			return a.MeanCostUSD < b.MeanCostUSD
		}
		return a.Key < b.Key
	})
	return out
}

func dimensionMeans(recs []Record) DimensionMeans {
	var m DimensionMeans
	if len(recs) == 0 {
		return m
	}
	for _, r := range recs {
		s := r.Eval.Scores
		m.VoiceMatch += float64(s.VoiceMatch)
		m.Coherence += float64(s.Coherence)
		m.Engagement += float64(s.Engagement)
		m.BriefFit += float64(s.BriefFit)
		m.Overall += float64(s.Overall)
	}
	n := float64(len(recs))
	m.VoiceMatch /= n
	m.Coherence /= n
	m.Engagement /= n
	m.BriefFit /= n
	m.Overall /= n
	return m
}

func meanComposite(recs []Record) float64 {
	if len(recs) == 0 {
		return 0
	}
	var sum float64
	for _, r := range recs {
		sum += r.Eval.Scores.Composite()
	}
	return sum / float64(len(recs))
}

// publishRate counts yes and with_edits verdicts as publishable.
func publishRate(recs []Record) float64 {
	if len(recs) == 0 {
		return 0
	}
	publishable := 0
	for _, r := range recs {
		if r.Eval.Verdict == model.PublishYes || r.Eval.Verdict == model.PublishWithEdits {
			publishable++
		}
	}
	return float64(publishable) / float64(len(recs))
}

// pearson computes the Pearson correlation coefficient, or 0 when either
// series has no variance or fewer than two points.
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
