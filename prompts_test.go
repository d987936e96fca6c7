package main

import (
	"fmt"
	"strings"
	"testing"
)

func TestParseSpeech(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"<speech>\nHello, everyone.\n</speech>", "Hello, everyone."},
		{"Sure!\n<speech>I suspect `Bob`.</speech> trailing", "I suspect Bob."},
		{"  no tags at all  ", "no tags at all"},
		{"<speech>   </speech>", ""},
	}
	for _, tt := range tests {
		if got := parseSpeech(tt.raw); got != tt.want {
			t.Errorf("parseSpeech(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseAction(t *testing.T) {
	d, ok := parseAction("<vote><target> p3 </target><reason>Too\nquiet.</reason></vote>")
	if !ok {
		t.Fatalf("Expected a valid action")
	}
	if d.TargetID != "p3" || d.Reasoning != "Too\nquiet." {
		t.Errorf("Unexpected decision: %+v", d)
	}

	for _, raw := range []string{
		"<vote><target>p3</target></vote>",
		"<vote><reason>none</reason></vote>",
		"I vote for p3",
	} {
		if _, ok := parseAction(raw); ok {
			t.Errorf("parseAction(%q) should fail", raw)
		}
	}
}

func TestRenderContextMarksSecretsAndPack(t *testing.T) {
	s := newTestState(RoleWerewolf, RoleWerewolf, RoleVillager)
	s.Players[2].IsAlive = false
	s.addLog(privateEntry(s, "p1", "(Attack) Targeting Carol.", []string{"p1", "p2"}))
	s.addLog(chatEntry(s, "p2", "Good morning."))

	req := DecisionRequest{Actor: s.Players[0], Players: s.Players, Log: s.Log, Phase: s.Phase, Day: s.DayCount}
	out := renderContext(req)

	if !strings.Contains(out, "ID:p2 Name:Bob (fellow werewolf)") {
		t.Errorf("Packmate should be marked:\n%s", out)
	}
	if strings.Contains(out, "ID:p1 Name:Alice (fellow") {
		t.Errorf("Actor should not be marked as their own packmate")
	}
	if strings.Contains(out, "ID:p3") {
		t.Errorf("Dead players should not be listed as alive")
	}
	if !strings.Contains(out, "[Alice]: (SECRET, only you know this) (Attack)") {
		t.Errorf("Private entries should be marked secret:\n%s", out)
	}
	if !strings.Contains(out, "[Bob]: Good morning.") {
		t.Errorf("Chat should be attributed to the speaker:\n%s", out)
	}
	if !strings.Contains(out, "[GM]: The game of Werewolf begins.") {
		t.Errorf("System entries should be attributed to the GM:\n%s", out)
	}
}

func TestRenderContextKeepsRecentWindow(t *testing.T) {
	s := newTestState(RoleVillager, RoleWerewolf)
	for i := range 40 {
		s.addLog(chatEntry(s, "p1", fmt.Sprintf("line %02d", i)))
	}

	out := renderContext(DecisionRequest{Actor: s.Players[0], Players: s.Players, Log: s.Log, Day: 1})

	if strings.Contains(out, "line 09") || strings.Contains(out, "begins") {
		t.Errorf("Entries older than the window should be dropped")
	}
	if !strings.Contains(out, "line 10") || !strings.Contains(out, "line 39") {
		t.Errorf("The last %d entries should be kept", contextWindow)
	}
}

func TestActionPromptUsesRoleTag(t *testing.T) {
	s := inPhase(newTestState(RoleSeer, RoleWerewolf, RoleVillager), PhaseNightAction)
	req := DecisionRequest{Actor: s.Players[0], Players: s.Players, Log: s.Log, Phase: s.Phase, Day: 1,
		ValidTargets: []string{"p2", "p3"}}

	system, _ := actionPrompt(req)
	if !strings.Contains(system, "<divine><target>") || !strings.Contains(system, `["p2","p3"]`) {
		t.Errorf("Seer prompt should use the divine tag and list targets:\n%s", system)
	}

	req.Phase = PhaseDayVote
	system, _ = actionPrompt(req)
	if !strings.Contains(system, "<vote><target>") {
		t.Errorf("Day prompt should use the vote tag:\n%s", system)
	}
}

func TestSeerStrategyChangesAfterFirstDay(t *testing.T) {
	if strategyFor(RoleSeer, 1) == strategyFor(RoleSeer, 2) {
		t.Errorf("Seer should get first-day advice")
	}
	for _, role := range roleOrder {
		if strategyFor(role, 1) == "" || strategyFor(role, 3) == "" {
			t.Errorf("%s has no strategy in the role table", role)
		}
	}
	if strategyFor(RoleMedium, 2) == strategyFor(RoleVillager, 2) {
		t.Errorf("Medium should get its own advice")
	}
}
