package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/memo"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	pkgerrors "github.com/yungbote/learnmate-backend/internal/pkg/errors"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// Querier runs a read query and returns one map per record. neo4jdb.Client satisfies it.
type Querier interface {
	Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

const (
	listSkillsCypher = `MATCH (s:Skill) RETURN s.name AS name ORDER BY name`

	skillDocumentsCypher = `
UNWIND $skills AS skill
MATCH (s:Skill {name: skill})<-[:COVERS]-(d:Document)
OPTIONAL MATCH (d)<-[:AUTHORED]-(a:Author)
RETURN skill, d.title AS title, d.url AS url, collect(DISTINCT a.name) AS authors`

	skillsCacheKey = "skills"
)

// Store answers the two graph questions the planner asks: which skills exist,
// and which documents and authors cover a set of skills.
type Store struct {
	log    *logger.Logger
	q      Querier
	skills *memo.Cache[[]string]
}

func NewStore(log *logger.Logger, q Querier, skills *memo.Cache[[]string]) *Store {
	if skills == nil {
		skills = memo.New[[]string]()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{log: log.With("service", "SkillGraph"), q: q, skills: skills}
}

// Skills returns the skill names, fetched once per process and then served from cache.
func (s *Store) Skills(ctx context.Context) ([]string, error) {
	if s == nil || s.q == nil {
		return nil, fmt.Errorf("skill graph: %w", pkgerrors.ErrUnavailable)
	}
	return s.skills.Get(ctx, skillsCacheKey, func(ctx context.Context) ([]string, error) {
		rows, err := s.q.Read(ctx, listSkillsCypher, nil)
		if err != nil {
			return nil, fmt.Errorf("list skills: %w", err)
		}
		seen := make(map[string]bool, len(rows))
		out := make([]string, 0, len(rows))
		for _, row := range rows {
			name := strings.TrimSpace(asString(row["name"]))
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("list skills: %w", pkgerrors.ErrNotFound)
		}
		s.log.Info("Skill list loaded", "count", len(out))
		return out, nil
	})
}

// DocumentsForSkills resolves documents and authors for every skill in one query.
func (s *Store) DocumentsForSkills(ctx context.Context, skills []string) (map[string][]state.Document, error) {
	if s == nil || s.q == nil {
		return nil, fmt.Errorf("skill graph: %w", pkgerrors.ErrUnavailable)
	}
	uniq := dedupe(skills)
	out := make(map[string][]state.Document, len(uniq))
	if len(uniq) == 0 {
		return out, nil
	}
	rows, err := s.q.Read(ctx, skillDocumentsCypher, map[string]any{"skills": uniq})
	if err != nil {
		return nil, fmt.Errorf("skill documents: %w", err)
	}
	for _, row := range rows {
		skill := asString(row["skill"])
		title := strings.TrimSpace(asString(row["title"]))
		if skill == "" || title == "" {
			continue
		}
		out[skill] = append(out[skill], state.Document{
			Title:   title,
			URL:     asString(row["url"]),
			Authors: asStrings(row["authors"]),
		})
	}
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asStrings(v any) []string {
	var out []string
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range t {
			if s := strings.TrimSpace(asString(item)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
