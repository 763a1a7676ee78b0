package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"dimas/pkg/core"
	"dimas/pkg/transport"
	"dimas/pkg/wire"
)

const defaultSignalTimeout = 2 * time.Second

// resolveBase mirrors the original CLI's base_selector computation: a
// subcommand with no target (list, set-state) falls back to "**" (every
// agent) when --selector is unset, while one with a target (ping, shutdown)
// only prefixes it with --selector when the flag was actually given,
// leaving the bare target to match on its own otherwise.
func resolveBase(target string) string {
	switch {
	case target == "" && selector == "":
		return "**"
	case target == "":
		return selector
	case selector == "":
		return target
	default:
		return core.SelectorFrom(target, selector)
	}
}

// queryAbout sends sig to base's signal endpoint and returns one AboutEntity
// per distinct replying zid, discarding duplicates the same way the
// original's HashMap-keyed-by-zid dedup does.
func queryAbout(ctx context.Context, sess transport.Session, base string, sig wire.Signal) ([]wire.AboutEntity, error) {
	msg, err := wire.Encode(sig)
	if err != nil {
		return nil, fmt.Errorf("encoding signal: %w", err)
	}

	replies, err := sess.Get(ctx, core.SelectorFrom("signal", base), transport.GetOptions{
		Payload: msg.Bytes(),
		Timeout: defaultSignalTimeout,
		Target:  transport.TargetAll,
	})
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}

	byZid := make(map[string]wire.AboutEntity)
	for r := range replies {
		entity, err := wire.Decode[wire.AboutEntity](wire.Message(r.Sample.Payload))
		if err != nil {
			continue
		}
		byZid[entity.Zid] = entity
	}

	entities := make([]wire.AboutEntity, 0, len(byZid))
	for _, e := range byZid {
		entities = append(entities, e)
	}
	return entities, nil
}

// queryPing sends a Ping signal stamped with the current time and returns
// one PingEntity per distinct replying zid.
func queryPing(ctx context.Context, sess transport.Session, base string) ([]wire.PingEntity, error) {
	sig := wire.Signal{Kind: wire.SignalPing, SentUTCNanos: time.Now().UnixNano()}
	msg, err := wire.Encode(sig)
	if err != nil {
		return nil, fmt.Errorf("encoding signal: %w", err)
	}

	replies, err := sess.Get(ctx, core.SelectorFrom("signal", base), transport.GetOptions{
		Payload: msg.Bytes(),
		Timeout: defaultSignalTimeout,
		Target:  transport.TargetAll,
	})
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}

	byZid := make(map[string]wire.PingEntity)
	for r := range replies {
		entity, err := wire.Decode[wire.PingEntity](wire.Message(r.Sample.Payload))
		if err != nil {
			continue
		}
		byZid[entity.Zid] = entity
	}

	entities := make([]wire.PingEntity, 0, len(byZid))
	for _, e := range byZid {
		entities = append(entities, e)
	}
	return entities, nil
}

func printAboutTable(entities []wire.AboutEntity) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ZID\tKIND\tSTATE\tNAME")
	for _, e := range entities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Zid, e.Kind, e.State, e.Name)
	}
	w.Flush()
}

func printPingTable(entities []wire.PingEntity) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ZID\tTIME\tNAME")
	for _, e := range entities {
		fmt.Fprintf(w, "%s\t%.2fms\t%s\n", e.Zid, float64(e.OnewayNS)/1e6, e.Name)
	}
	w.Flush()
}
