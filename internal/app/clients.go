package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/learnmate-backend/internal/config"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/graph"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/memo"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/steps"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/platform/neo4jdb"
	"github.com/yungbote/learnmate-backend/internal/platform/openai"
	"github.com/yungbote/learnmate-backend/internal/platform/pinecone"
	"github.com/yungbote/learnmate-backend/internal/platform/redisdb"
	"github.com/yungbote/learnmate-backend/internal/platform/vectorsearch"
	"github.com/yungbote/learnmate-backend/internal/platform/websearch"
	"github.com/yungbote/learnmate-backend/internal/temporalx"
)

// Clients holds the optional backends. Every field may be nil; interface
// fields are only assigned from non-nil values.
type Clients struct {
	OpenAI   openai.Client
	Redis    *goredis.Client
	Neo4j    *neo4jdb.Client
	Graph    steps.SkillGraph
	Content  steps.ContentSource
	Vector   vectorsearch.Searcher
	Web      websearch.WebSearcher
	Temporal temporalsdkclient.Client
}

// wireClients connects what is configured. A backend that is configured but
// unreachable is logged and left nil; the pipeline degrades around it.
func wireClients(log *logger.Logger, cfg *config.Config, m *observability.Metrics, withTemporal bool) (Clients, error) {
	log.Info("wiring clients...")
	var out Clients

	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		c, err := openai.NewClient(log, openai.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			EmbedModel:  cfg.OpenAI.EmbedModel,
			Timeout:     cfg.OpenAI.Timeout,
			MaxRetries:  cfg.OpenAI.MaxRetries,
			Temperature: cfg.OpenAI.Temperature,
		})
		if err != nil {
			return out, fmt.Errorf("init openai: %w", err)
		}
		out.OpenAI = c
	} else {
		log.Warn("openai api key not set; every LLM step uses its fallback")
	}

	rdb, err := redisdb.New(log, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		log.Warn("redis unavailable; using file stores", "error", err)
	} else if rdb != nil {
		out.Redis = rdb
	}

	nc, err := neo4jdb.New(log, neo4jdb.Config{
		URI:      cfg.Neo4j.URI,
		User:     cfg.Neo4j.User,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
		Timeout:  cfg.Neo4j.Timeout,
	})
	if err != nil {
		log.Warn("neo4j unavailable; procedures are skipped", "error", err)
	} else if nc != nil {
		out.Neo4j = nc
		out.Graph = instrumentGraph(graph.NewStore(log, nc, memo.New[[]string]()), m)
	}
	if dir := strings.TrimSpace(cfg.Pipeline.ContentDir); dir != "" {
		out.Content = graph.NewContentLoader(log, dir, memo.New[string]())
	}

	out.Vector = instrumentSearcher(wireVector(log, cfg, out.OpenAI), m)

	if key := cfg.WebSearch.APIKey(); key != "" {
		ws, err := websearch.NewWebSearcher(websearch.Provider(cfg.WebSearch.Provider), key, cfg.WebSearch.Timeout)
		if err != nil {
			log.Warn("web search disabled", "provider", cfg.WebSearch.Provider, "error", err)
		} else {
			out.Web = instrumentWeb(ws, m)
		}
	}

	if withTemporal && cfg.Temporal.Enabled() {
		tc, err := temporalx.NewClient(log, cfg.Temporal)
		if err != nil {
			return out, fmt.Errorf("init temporal: %w", err)
		}
		if tc != nil {
			out.Temporal = tc
		}
	}
	return out, nil
}

// wireVector prefers the search service and falls back to querying Pinecone
// directly, which needs the embedder.
func wireVector(log *logger.Logger, cfg *config.Config, embed openai.Client) vectorsearch.Searcher {
	if url := strings.TrimSpace(cfg.VectorSearch.URL); url != "" {
		s, err := vectorsearch.NewServiceClient(url, cfg.VectorSearch.Timeout)
		if err != nil {
			log.Warn("vector search service disabled", "error", err)
			return nil
		}
		return s
	}
	if !cfg.Pinecone.Enabled() {
		log.Warn("no vector search backend configured; resources come from web search only")
		return nil
	}
	if embed == nil {
		log.Warn("pinecone configured without an embedder; vector search disabled")
		return nil
	}
	pc, err := pinecone.NewClient(cfg.Pinecone.APIKey, cfg.VectorSearch.Timeout)
	if err != nil {
		log.Warn("pinecone disabled", "error", err)
		return nil
	}
	store, err := pinecone.NewVectorStore(log, pc, pinecone.StoreConfig{
		IndexHost:       cfg.Pinecone.IndexHost,
		NamespacePrefix: cfg.Pinecone.NamespacePrefix,
	})
	if err != nil {
		log.Warn("pinecone disabled", "error", err)
		return nil
	}
	s, err := vectorsearch.NewPineconeSearcher(embed, store)
	if err != nil {
		log.Warn("pinecone searcher disabled", "error", err)
		return nil
	}
	return s
}

func (c Clients) Close(ctx context.Context) {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
}
