package main

import (
	"fmt"
	"regexp"
	"strings"
)

// contextWindow is how many of the most recent visible entries a prompt carries.
const contextWindow = 30

const discussionRules = `This is a simulation of the fictional party game "Werewolf".
Stay in character at all times.

Rules for your answer:
- Read the latest remarks in the log and keep the conversation flowing.
- If someone asked you a question, answer it.
- Speak in one or two short, casual sentences. No speeches.
- Your output is parsed by a program. Answer in XML only.

Output template:
<speech>
what you say goes here
</speech>`

// strategyFor returns role-specific play advice from the role table.
func strategyFor(role Role, day int) string {
	info := role.info()
	if day <= 1 && info.FirstDayStrategy != "" {
		return info.FirstDayStrategy
	}
	return info.Strategy
}

// renderContext formats the alive roster and the tail of the visible log
// from the actor's point of view.
func renderContext(req DecisionRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current situation:\nDay: %d\nPhase: %s\n\n", req.Day, req.Phase)

	b.WriteString("Alive players:\n")
	for _, p := range req.Players {
		if !p.IsAlive {
			continue
		}
		fmt.Fprintf(&b, "ID:%s Name:%s", p.ID, p.Name)
		if req.Actor.Role.IsWerewolf() && p.Role.IsWerewolf() && p.ID != req.Actor.ID {
			b.WriteString(" (fellow werewolf)")
		}
		b.WriteString("\n")
	}

	entries := req.Log
	if len(entries) > contextWindow {
		entries = entries[len(entries)-contextWindow:]
	}

	b.WriteString("\nRecent log (public information and your own memories):\n")
	for _, e := range entries {
		when := "day"
		if e.Phase == PhaseNightAction {
			when = "night"
		}
		prefix := fmt.Sprintf("[Day %d/%s]", e.Day, when)

		if e.Type == EntrySystem && e.SpeakerID == GameMasterID || e.Type == EntryDeath {
			fmt.Fprintf(&b, "%s [GM]: %s\n", prefix, e.Content)
			continue
		}

		speaker := "unknown"
		for _, p := range req.Players {
			if p.ID == e.SpeakerID {
				speaker = p.Name
				break
			}
		}
		secret := ""
		if !isPublic(e) {
			secret = "(SECRET, only you know this) "
		}
		fmt.Fprintf(&b, "%s [%s]: %s%s\n", prefix, speaker, secret, e.Content)
	}

	return b.String()
}

// discussionPrompt returns the system and human messages for a speech turn.
func discussionPrompt(req DecisionRequest) (system, human string) {
	actor := req.Actor
	info := actor.Role.info()

	system = fmt.Sprintf(`You are playing as %q.

Character:
Role: %s
Personality: %s
%s

%s

%s`, actor.Name, info.Label, actor.Personality, info.Description, strategyFor(actor.Role, req.Day), discussionRules)

	human = fmt.Sprintf("%s\nBased on the log above, speak as %s. Follow your strategy and play your role as well as you can.",
		renderContext(req), actor.Name)
	return system, human
}

// actionTag returns the XML element an actor answers with in this phase.
func actionTag(req DecisionRequest) (tag, task string) {
	if req.Phase == PhaseDayVote {
		return "vote", "Choose one player to execute. Pick the most suspicious player based on the discussion and give a short reason."
	}
	info := req.Actor.Role.info()
	return info.ActionTag, info.NightTask
}

// actionPrompt returns the system and human messages for a vote or night action.
func actionPrompt(req DecisionRequest) (system, human string) {
	actor := req.Actor
	tag, task := actionTag(req)

	system = fmt.Sprintf(`You are %q.
Role: %s

Valid target IDs:
[%s]

%s

Task:
%s

Answer with the XML template only.
<%s><target>target ID</target><reason>reason</reason></%s>`,
		actor.Name, actor.Role.info().Label, quoteIDs(req.ValidTargets),
		strategyFor(actor.Role, req.Day), task, tag, tag)

	human = renderContext(req) + "\nDecide your action."
	return system, human
}

func quoteIDs(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return strings.Join(quoted, ",")
}

var (
	speechRe = regexp.MustCompile(`(?s)<speech>(.*?)</speech>`)
	targetRe = regexp.MustCompile(`<target>(.*?)</target>`)
	reasonRe = regexp.MustCompile(`(?s)<reason>(.*?)</reason>`)
)

// cleanText drops backticks and surrounding whitespace.
func cleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "`", ""))
}

// parseSpeech extracts the <speech> body, or the whole answer when the tag
// is missing.
func parseSpeech(raw string) string {
	if m := speechRe.FindStringSubmatch(raw); m != nil {
		return cleanText(m[1])
	}
	return cleanText(raw)
}

// parseAction extracts target and reason. Both tags are required.
func parseAction(raw string) (ActionDecision, bool) {
	t := targetRe.FindStringSubmatch(raw)
	r := reasonRe.FindStringSubmatch(raw)
	if t == nil || r == nil {
		return ActionDecision{}, false
	}
	return ActionDecision{TargetID: cleanText(t[1]), Reasoning: cleanText(r[1])}, true
}
