package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hox/hox/internal/agentloop"
	"github.com/hox/hox/internal/config"
	"github.com/hox/hox/internal/conflict"
	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/oplog"
	"github.com/hox/hox/internal/querycache"
	"github.com/hox/hox/internal/revset"
	"github.com/hox/hox/internal/vcs"
)

// components bundles the shared, config-driven pieces every
// subcommand needs; each subcommand picks out what it uses.
type components struct {
	cfg      *config.Config
	gw       vcs.Gateway
	meta     metadata.Provider
	queries  *revset.Queries
	recovery *oplog.Recovery
	cache    *querycache.Cache
}

// buildComponents reads the repo's configuration and constructs the
// VCS Gateway and everything layered on top of it. Callers must call
// close() when done to release the query cache's database handle.
func buildComponents(ctx context.Context, repoRoot string) (*components, func(), error) {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	gw := vcs.Gateway(vcs.NewSubprocessGateway(ctx, cfg.VCS.Binary, repoRoot, cfg.VCS.OpTimeout, cfg.VCS.RetryAttempts, cfg.VCS.FeatureProbe))

	closer := func() {}
	if cfg.QueryCache.Enabled {
		cache, err := querycache.Open(cfg.QueryCache.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening query cache: %w", err)
		}
		gw = querycache.Wrap(gw, cache)
		closer = func() { _ = cache.Close() }
	}

	var meta metadata.Provider
	switch cfg.Metadata.Backend {
	case "native":
		meta = metadata.NewNativeProvider(gw)
	default:
		meta = metadata.NewDescriptionProvider(gw)
	}

	return &components{
		cfg:      cfg,
		gw:       gw,
		meta:     meta,
		queries:  revset.New(gw),
		recovery: oplog.NewRecovery(gw),
	}, closer, nil
}

// buildTransport selects the model transport: the real GenAI transport
// when an API key is configured, otherwise a deterministic mock so the
// core runs offline for demos and tests.
func buildTransport(ctx context.Context, cfg *config.Config) (agentloop.ModelTransport, error) {
	apiKey := os.Getenv(cfg.Model.APIKeyEnvVar)
	if apiKey == "" {
		return &agentloop.MockTransport{Responses: []agentloop.ModelResponse{
			{Thinking: "<promise>COMPLETE</promise>"},
		}}, nil
	}
	return agentloop.NewGenAITransport(ctx, apiKey, cfg.Model.Name)
}

// agentSpawner adapts a TaskRunner-shaped function so the conflict
// resolver can spawn a fresh agent loop for a semantic conflict
// (spec §4.7 "Strategise": SpawnAgent). A resolver agent has no
// pre-existing task id, so it gets its own workspace/bookmark named
// after the conflicted change.
type agentSpawner struct {
	run func(ctx context.Context, agentName, taskID string, changeID vcs.ChangeID) error
}

func (a *agentSpawner) SpawnResolver(ctx context.Context, info conflict.ConflictInfo) error {
	agentName := "resolver-" + string(info.ChangeID)
	return a.run(ctx, agentName, string(info.ChangeID), info.ChangeID)
}
