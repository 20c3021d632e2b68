package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"taskchain/internal/artifact"
	"taskchain/internal/chain"
	"taskchain/internal/config"
	"taskchain/internal/tools"
)

// Driver is the top-level chain loop: it resets chain-scoped state,
// registers the starting task and runs the state machine to a terminal
// state. One chain at a time; concurrent chains would corrupt the shared
// timers and counters.
type Driver struct {
	chain    *chain.Context
	store    *artifact.Store
	registry *tools.Registry
	llm      Completer
	cfg      config.Config
	log      zerolog.Logger
}

func NewDriver(chainCtx *chain.Context, store *artifact.Store, registry *tools.Registry, llm Completer, cfg config.Config, log zerolog.Logger) *Driver {
	return &Driver{
		chain:    chainCtx,
		store:    store,
		registry: registry,
		llm:      llm,
		cfg:      cfg,
		log:      log,
	}
}

// Solve runs one chain from startURL to completion or forced termination.
func (d *Driver) Solve(ctx context.Context, startURL string) error {
	d.chain.Reset(startURL)
	d.store.Reset()

	d.log.Info().Str("start_url", startURL).Msg("chain started")
	started := time.Now()

	m := NewMachine(d.chain, d.registry, d.llm, d.cfg.Limits, d.systemPrompt(), startURL, d.log)
	err := m.Run(ctx)

	evt := d.log.Info()
	if err != nil {
		evt = d.log.Error().Err(err)
	}
	evt.Str("start_url", startURL).Dur("took", time.Since(started)).Msg("chain finished")
	return err
}

func (d *Driver) systemPrompt() string {
	return fmt.Sprintf(`You are an autonomous quiz-solving agent. You are given a quiz URL; fetch it, solve the task on the page and submit your answer, then continue with whatever URL the grader hands back until no URL remains.

Identity for submissions:
- email: %s
- secret: %s
Include these fields in every submission payload alongside the answer.

Operational rules:
- Use the provided tools for every external action. Never fabricate URLs or answers you have not derived.
- Preserve endpoint paths exactly as given; submit to the URL the task names.
- When an answer is a file, encode it with encode_image_to_base64 and use the returned key directly as the answer value. Never paste encoded content into the conversation.
- When the grader says to retry, retry the current quiz with a corrected answer.
- When told the tasks are completed, or there is nothing left to do, reply with exactly END and nothing else.`,
		d.cfg.Identity.Email, d.cfg.Identity.Secret)
}
