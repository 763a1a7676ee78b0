package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"dimas/pkg/core"
	"dimas/pkg/wire"
)

func TestResolveBaseDefaultsToWildcardWithNoTargetOrSelector(t *testing.T) {
	selector = ""
	defer func() { selector = "" }()

	assert.Equal(t, "**", resolveBase(""))
}

func TestResolveBaseUsesSelectorAloneWithNoTarget(t *testing.T) {
	selector = "agents"
	defer func() { selector = "" }()

	assert.Equal(t, "agents", resolveBase(""))
}

func TestResolveBaseUsesTargetAloneWithNoSelector(t *testing.T) {
	selector = ""
	defer func() { selector = "" }()

	assert.Equal(t, "alice", resolveBase("alice"))
}

func TestResolveBasePrefixesTargetWithSelector(t *testing.T) {
	selector = "agents"
	defer func() { selector = "" }()

	assert.Equal(t, "agents/alice", resolveBase("alice"))
}

func TestRootCommandHasEveryExpectedSubcommand(t *testing.T) {
	root := newRootCommand()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"list", "ping", "scout", "set-state", "shutdown", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestPingCommandRejectsMissingTarget(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"ping"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestSetStateCommandRejectsUnknownState(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"set-state", "bogus"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestPrintAboutTableHandlesRowsAndEmpty(t *testing.T) {
	entities := []wire.AboutEntity{
		{Name: "alice", Kind: "agent", Zid: "zid-1", State: core.StateActive},
	}
	// printAboutTable writes to os.Stdout directly; this just confirms it
	// doesn't panic on a populated and an empty slice.
	printAboutTable(entities)
	printAboutTable(nil)
}

func TestPrintPingTableHandlesRowsAndEmpty(t *testing.T) {
	entities := []wire.PingEntity{
		{Name: "alice", Zid: "zid-1", OnewayNS: 1_500_000},
	}
	printPingTable(entities)
	printPingTable(nil)
}
