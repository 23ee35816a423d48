package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/siteaudit/internal/audit"
	"github.com/JakeFAU/siteaudit/internal/fetch"
)

// ErrMalformedScore is returned when the scoring API answers with a body that
// is not valid JSON.
var ErrMalformedScore = errors.New("psi: malformed JSON response")

type psiCategory struct {
	Score *float64 `json:"score"`
}

type psiFieldMetric struct {
	Category      string            `json:"category"`
	Percentile    *float64          `json:"percentile"`
	Distributions []json.RawMessage `json:"distributions"`
}

type psiExperience struct {
	Metrics map[string]psiFieldMetric `json:"metrics"`
}

type psiResponse struct {
	LighthouseResult struct {
		Categories map[string]psiCategory `json:"categories"`
		Audits     map[string]struct {
			NumericValue *float64 `json:"numericValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
	LoadingExperience       *psiExperience `json:"loadingExperience"`
	OriginLoadingExperience *psiExperience `json:"originLoadingExperience"`
}

type cwvMetric struct {
	Category      string            `json:"category"`
	P75           *float64          `json:"p75"`
	Distributions []json.RawMessage `json:"distributions"`
}

type psiScores struct {
	Performance   *float64 `json:"performance"`
	Accessibility *float64 `json:"accessibility"`
	BestPractices *float64 `json:"best_practices"`
	SEO           *float64 `json:"seo"`
}

type psiField struct {
	LCP *cwvMetric `json:"lcp"`
	INP *cwvMetric `json:"inp"`
	CLS *cwvMetric `json:"cls"`
}

type psiLab struct {
	LCP *float64 `json:"lcp_ms"`
	TTI *float64 `json:"inp_ms"`
	TBT *float64 `json:"tbt_ms"`
	CLS *float64 `json:"cls"`
	SI  *float64 `json:"si_ms"`
	FCP *float64 `json:"fcp_ms"`
}

// strategyReport is the parsed outcome of one strategy run.
type strategyReport struct {
	Scores psiScores    `json:"scores"`
	Field  psiField     `json:"cwv_field"`
	Lab    psiLab       `json:"lab"`
	Status audit.Status `json:"status"`
}

func (r psiResponse) score(category string) *float64 {
	return r.LighthouseResult.Categories[category].Score
}

func (r psiResponse) lab(id string) *float64 {
	return r.LighthouseResult.Audits[id].NumericValue
}

// field returns the first field metric found among keys, preferring page
// data over origin data.
func (r psiResponse) field(keys ...string) *cwvMetric {
	for _, exp := range []*psiExperience{r.LoadingExperience, r.OriginLoadingExperience} {
		if exp == nil {
			continue
		}
		for _, k := range keys {
			if m, ok := exp.Metrics[k]; ok {
				return &cwvMetric{Category: m.Category, P75: m.Percentile, Distributions: m.Distributions}
			}
		}
	}
	return nil
}

func parseStrategy(r psiResponse) strategyReport {
	rep := strategyReport{
		Scores: psiScores{
			Performance:   r.score("performance"),
			Accessibility: r.score("accessibility"),
			BestPractices: r.score("best-practices"),
			SEO:           r.score("seo"),
		},
		Field: psiField{
			LCP: r.field("LARGEST_CONTENTFUL_PAINT_MS"),
			INP: r.field("INTERACTION_TO_NEXT_PAINT", "EXPERIMENTAL_INTERACTION_TO_NEXT_PAINT"),
			CLS: r.field("CUMULATIVE_LAYOUT_SHIFT_SCORE"),
		},
		Lab: psiLab{
			LCP: r.lab("largest-contentful-paint"),
			TTI: r.lab("interactive"),
			TBT: r.lab("total-blocking-time"),
			CLS: r.lab("cumulative-layout-shift"),
			SI:  r.lab("speed-index"),
			FCP: r.lab("first-contentful-paint"),
		},
	}
	rep.Status = strategyStatus(rep)
	return rep
}

// strategyStatus passes when every present field metric is GOOD or the lab
// performance score is at least 0.90, and warns from 0.60.
func strategyStatus(rep strategyReport) audit.Status {
	perf := rep.Scores.Performance
	haveField := false
	allGood := true
	for _, m := range []*cwvMetric{rep.Field.LCP, rep.Field.INP, rep.Field.CLS} {
		if m == nil {
			continue
		}
		haveField = true
		allGood = allGood && m.Category == "GOOD"
	}

	switch {
	case haveField && allGood:
		return audit.StatusPass
	case perf != nil && *perf >= 0.90:
		return audit.StatusPass
	case perf != nil && *perf >= 0.60:
		return audit.StatusWarn
	case !haveField:
		return audit.StatusFail
	default:
		return audit.StatusWarn
	}
}

func (e *Env) runStrategy(ctx context.Context, root, strategy string) (strategyReport, error) {
	q := url.Values{}
	q.Set("url", root)
	q.Set("strategy", strategy)
	if e.settings.Scoring.APIKey != "" {
		q.Set("key", e.settings.Scoring.APIKey)
	}
	out, err := e.deps.Scoring.Fetch(ctx, fetch.Request{URL: e.settings.Scoring.Endpoint, Query: q})
	if err != nil {
		return strategyReport{}, err
	}
	if out.StatusCode != http.StatusOK {
		return strategyReport{}, fmt.Errorf("PSI HTTP %d: %s", out.StatusCode, clip(out.Text(), 200))
	}
	var resp psiResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return strategyReport{}, ErrMalformedScore
	}
	return parseStrategy(resp), nil
}

func (e *Env) pageSpeed(ctx context.Context, root string) (audit.Result, error) {
	strategies := e.settings.Scoring.Strategies
	if len(strategies) == 0 {
		strategies = []string{"mobile", "desktop"}
	}

	reports := map[string]*strategyReport{}
	checked := []string{}
	errs := map[string]string{}
	var failures []string
	var statuses []audit.Status
	for _, strategy := range strategies {
		rep, err := e.runStrategy(ctx, root, strategy)
		if err != nil {
			errs[strategy] = err.Error()
			failures = append(failures, strategy+": "+err.Error())
			e.logger.Warn("psi strategy failed", zap.String("strategy", strategy), zap.Error(err))
			continue
		}
		reports[strategy] = &rep
		checked = append(checked, strategy)
		statuses = append(statuses, rep.Status)
	}

	res := audit.NewResult("psi", audit.StatusError)
	if len(statuses) > 0 {
		res.Status = audit.Worst(statuses...)
	} else {
		res.Error = "all strategies failed: " + strings.Join(failures, "; ")
	}
	res.Metrics["strategies_checked"] = checked
	res.Metrics["errors"] = errs
	res.Metrics["mobile_performance"] = performanceOf(reports["mobile"])
	res.Metrics["desktop_performance"] = performanceOf(reports["desktop"])
	res.Samples["mobile"] = reports["mobile"]
	res.Samples["desktop"] = reports["desktop"]
	for strategy, rep := range reports {
		res.Samples[strategy] = rep
	}
	res.FixHint = "Focus on Core Web Vitals: LCP (<=2.5s), INP (<=200ms), CLS (<=0.1). Lazy-load and compress images (WebP/AVIF), preconnect, and remove render-blocking JS."
	return res, nil
}

func performanceOf(rep *strategyReport) *float64 {
	if rep == nil {
		return nil
	}
	return rep.Scores.Performance
}
