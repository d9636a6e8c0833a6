package steps

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/policy"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/platform/vectorsearch"
	"github.com/yungbote/learnmate-backend/internal/platform/websearch"
)

type ResourceCollectDeps struct {
	Log            *logger.Logger
	Vector         vectorsearch.Searcher
	Web            websearch.WebSearcher
	Policy         *policy.Policy
	CallTimeout    time.Duration
	KMOOCNamespace string
	DocsNamespace  string
}

type ResourceCollectInput struct {
	Topic   string
	Modules []state.DetailedModule
}

type ResourceCollectOutput struct {
	Basic  []state.Resource                 `json:"basic"`
	ByWeek map[string]state.ModuleResources `json:"by_week"`
}

// CollectResources gathers curriculum-level web results and, for every module
// concurrently, K-MOOC courses, documents and document-like web links. Each
// source degrades to an empty list on its own.
func CollectResources(ctx context.Context, deps ResourceCollectDeps, in ResourceCollectInput) (ResourceCollectOutput, error) {
	if deps.Log == nil || deps.Policy == nil {
		return ResourceCollectOutput{}, fmt.Errorf("resource_collect: missing deps")
	}
	log := deps.Log.With("step", "resource_collect")
	pol := deps.Policy.Resources
	topK := pol.TopK
	if topK <= 0 {
		topK = 5
	}

	out := ResourceCollectOutput{ByWeek: make(map[string]state.ModuleResources, len(in.Modules))}
	buckets := make([]state.ModuleResources, len(in.Modules))

	var g errgroup.Group
	g.Go(func() error {
		q := strings.TrimSpace(in.Topic + " " + pol.BasicQuerySuffix)
		res, err := webSearch(ctx, deps, q, pol.BasicResults)
		if err != nil {
			log.Warn("basic resource search failed", "error", err)
			return nil
		}
		out.Basic = webResources(res, "web")
		return nil
	})
	for i := range in.Modules {
		g.Go(func() error {
			m := in.Modules[i]
			err := guard("resource_collect", func() error {
				buckets[i] = collectModule(ctx, deps, log, in.Topic, m, topK)
				return nil
			})
			if err != nil {
				log.Warn("module resource collection failed", "week", m.Week, "error", err)
				buckets[i] = emptyBucket()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return ResourceCollectOutput{}, err
	}
	if out.Basic == nil {
		out.Basic = []state.Resource{}
	}
	for i, m := range in.Modules {
		out.ByWeek[state.WeekKey(m.Week)] = buckets[i]
	}
	return out, nil
}

func collectModule(ctx context.Context, deps ResourceCollectDeps, log *logger.Logger, topic string, m state.DetailedModule, topK int) state.ModuleResources {
	query := moduleQuery(topic, m)
	var videos, docs, links []state.Resource

	var g errgroup.Group
	g.Go(func() error {
		return guard("kmooc", func() error {
			var err error
			videos, err = SearchCourses(ctx, deps, query, topK)
			if err != nil {
				log.Debug("kmooc search failed", "week", m.Week, "error", err)
			}
			return nil
		})
	})
	g.Go(func() error {
		return guard("documents", func() error {
			docs = searchDocuments(ctx, deps, log, query, topK)
			return nil
		})
	})
	g.Go(func() error {
		return guard("web_links", func() error {
			var err error
			links, err = searchDocumentLinks(ctx, deps, query, topK)
			if err != nil {
				log.Debug("web link search failed", "week", m.Week, "error", err)
			}
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		log.Warn("resource collector panicked", "week", m.Week, "error", err)
	}
	return Bucket(videos, docs, links)
}

// Bucket assembles a module aggregate and its coverage counters.
func Bucket(videos, docs, links []state.Resource) state.ModuleResources {
	b := state.ModuleResources{
		Videos:    nonNil(videos),
		Documents: nonNil(docs),
		WebLinks:  nonNil(links),
	}
	for _, list := range [][]state.Resource{b.Videos, b.Documents, b.WebLinks} {
		for _, r := range list {
			b.TotalResources++
			if strings.TrimSpace(r.Content) != "" || strings.TrimSpace(r.Description) != "" {
				b.ResourcesWithContent++
			}
		}
	}
	b.ContentCoverage = float64(b.ResourcesWithContent) / float64(max(b.TotalResources, 1))
	return b
}

func emptyBucket() state.ModuleResources { return Bucket(nil, nil, nil) }

func nonNil(in []state.Resource) []state.Resource {
	if in == nil {
		return []state.Resource{}
	}
	return in
}

func moduleQuery(topic string, m state.DetailedModule) string {
	parts := []string{topic, m.Title}
	parts = append(parts, firstN(m.KeyConcepts, 2)...)
	return strings.Join(cleanStrings(parts), " ")
}

// SearchCourses queries the K-MOOC namespace. A nil searcher yields no results.
func SearchCourses(ctx context.Context, deps ResourceCollectDeps, query string, topK int) ([]state.Resource, error) {
	if deps.Vector == nil {
		return nil, nil
	}
	cctx, cancel := withTimeout(ctx, deps.CallTimeout)
	defer cancel()
	resp, err := deps.Vector.Search(cctx, vectorsearch.Request{
		Query:           query,
		TopK:            topK,
		Namespace:       deps.KMOOCNamespace,
		IncludeMetadata: true,
		Rerank:          true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]state.Resource, 0, len(resp.Results))
	for _, h := range resp.Results {
		out = append(out, CourseResource(h))
	}
	return out, nil
}

// searchDocuments merges a vector search and a web search, dedupes by (title,
// source) keeping the higher score, and returns the top 2*topK.
func searchDocuments(ctx context.Context, deps ResourceCollectDeps, log *logger.Logger, query string, topK int) []state.Resource {
	var vec, web []state.Resource
	var g errgroup.Group
	if deps.Vector != nil {
		g.Go(func() error {
			cctx, cancel := withTimeout(ctx, deps.CallTimeout)
			defer cancel()
			resp, err := deps.Vector.Search(cctx, vectorsearch.Request{
				Query:           query,
				TopK:            topK,
				Namespace:       deps.DocsNamespace,
				IncludeMetadata: true,
			})
			if err != nil {
				log.Debug("document vector search failed", "error", err)
				return nil
			}
			for _, h := range resp.Results {
				vec = append(vec, state.Resource{
					Title:       orDefault(metaString(h.Metadata, "title", "name"), h.ID),
					URL:         metaString(h.Metadata, "url", "link"),
					Description: truncateRunes(metaString(h.Metadata, "description", "summary"), 300),
					Source:      orDefault(metaString(h.Metadata, "source"), "vector"),
					Type:        "document",
					Score:       h.Score,
					Content:     truncateRunes(metaString(h.Metadata, "text", "content"), 2000),
				})
			}
			return nil
		})
	}
	g.Go(func() error {
		res, err := webSearch(ctx, deps, query+" 문서 자료", topK)
		if err != nil {
			log.Debug("document web search failed", "error", err)
			return nil
		}
		web = webResources(res, "web")
		for i := range web {
			web[i].Type = "document"
		}
		return nil
	})
	_ = g.Wait()
	return MergeDocuments(append(vec, web...), 2*topK)
}

// MergeDocuments dedupes by (title, source), keeps the higher score and returns
// at most limit results ordered by score.
func MergeDocuments(in []state.Resource, limit int) []state.Resource {
	type key struct{ title, source string }
	best := map[key]int{}
	out := make([]state.Resource, 0, len(in))
	for _, r := range in {
		k := key{strings.ToLower(strings.TrimSpace(r.Title)), r.Source}
		if idx, ok := best[k]; ok {
			if r.Score > out[idx].Score {
				out[idx] = r
			}
			continue
		}
		best[k] = len(out)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func searchDocumentLinks(ctx context.Context, deps ResourceCollectDeps, query string, topK int) ([]state.Resource, error) {
	res, err := webSearch(ctx, deps, query+" filetype:pdf", 2*topK)
	if err != nil {
		return nil, err
	}
	var kept []websearch.Result
	for _, r := range res {
		if deps.Policy.IsDocumentURL(r.URL) {
			kept = append(kept, r)
		}
	}
	return webResources(kept, "web"), nil
}

func webSearch(ctx context.Context, deps ResourceCollectDeps, q string, k int) ([]websearch.Result, error) {
	if deps.Web == nil {
		return nil, nil
	}
	cctx, cancel := withTimeout(ctx, deps.CallTimeout)
	defer cancel()
	return deps.Web.Discover(cctx, q, k, nil, 0)
}

// webResources scores results by rank so they can be merged with vector hits.
func webResources(res []websearch.Result, source string) []state.Resource {
	out := make([]state.Resource, 0, len(res))
	for rank, r := range res {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, state.Resource{
			Title:       orDefault(r.Title, r.URL),
			URL:         r.URL,
			Description: r.Snippet,
			Source:      source,
			Type:        "web",
			Score:       1 / float64(rank+2),
		})
	}
	return out
}
