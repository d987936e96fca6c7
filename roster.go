package main

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoPlayers        = errors.New("no players configured")
	ErrInvalidRoleCount = errors.New("invalid role count")
	ErrUnknownRole      = errors.New("unknown role")
)

// RoleCounts maps each role to the number of seats holding it.
type RoleCounts map[Role]int

func defaultRoleCounts() RoleCounts {
	return RoleCounts{
		RoleVillager:  3,
		RoleWerewolf:  1,
		RoleSeer:      1,
		RoleBodyguard: 0,
		RoleMedium:    0,
	}
}

// Total returns the number of seats the counts describe.
func (rc RoleCounts) Total() int {
	total := 0
	for _, n := range rc {
		total += n
	}
	return total
}

func (rc RoleCounts) validate() error {
	for role, n := range rc {
		if !role.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
		if n < 0 {
			return fmt.Errorf("%w: %s=%d is negative", ErrInvalidRoleCount, role, n)
		}
	}
	if rc.Total() == 0 {
		return ErrNoPlayers
	}
	return nil
}

// String renders counts as "villager=3,werewolf=1" in role order.
func (rc RoleCounts) String() string {
	var parts []string
	for _, role := range roleOrder {
		if n := rc[role]; n > 0 {
			parts = append(parts, strings.ToLower(string(role))+"="+strconv.Itoa(n))
		}
	}
	return strings.Join(parts, ",")
}

// parseRoleCounts parses "villager=3,werewolf=1,seer=1".
func parseRoleCounts(s string) (RoleCounts, error) {
	counts := RoleCounts{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q, expected role=count", ErrInvalidRoleCount, part)
		}
		role := Role(strings.ToUpper(strings.TrimSpace(name)))
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRole, name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRoleCount, part, err)
		}
		counts[role] += n
	}
	return counts, nil
}

// PersonaPools are the finite pools seats draw their identity from.
type PersonaPools struct {
	Names         []string `yaml:"names"`
	Avatars       []string `yaml:"avatars"`
	Personalities []string `yaml:"personalities"`
}

const fallbackPersonality = "Ordinary. No particular traits."

func defaultPersonaPools() PersonaPools {
	pools := PersonaPools{
		Names: []string{
			"Sato", "Suzuki", "Takahashi", "Tanaka", "Ito", "Watanabe",
			"Yamamoto", "Nakamura", "Kobayashi", "Kato", "Yoshida", "Yamada",
		},
		Personalities: []string{
			"Logical and calm. Focuses on facts.",
			"Emotional and aggressive. Quick to suspect others.",
			"Quiet and observant. Says little but hits the point.",
			"Chaotic and unpredictable. Changes opinions often.",
			"A natural leader who tries to bring the group together.",
			"Suspicious of everyone. Trusts no one.",
			"Friendly but defensive. Wants to keep the peace.",
			"Analytical. Good at spotting contradictions.",
			"Intuitive. Hunts werewolves by gut feeling.",
			"Cautious. Avoids voting until there is certainty.",
		},
	}
	for i := 1; i <= 12; i++ {
		pools.Avatars = append(pools.Avatars, fmt.Sprintf("https://picsum.photos/seed/p%d/100/100", i))
	}
	return pools
}

// loadPersonaPools reads pools from a YAML file. Pools missing from the
// file keep their defaults.
func loadPersonaPools(path string) (PersonaPools, error) {
	pools := defaultPersonaPools()
	if path == "" {
		return pools, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pools, fmt.Errorf("read persona pools: %w", err)
	}
	var overlay PersonaPools
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return pools, fmt.Errorf("parse persona pools %s: %w", path, err)
	}
	if len(overlay.Names) > 0 {
		pools.Names = overlay.Names
	}
	if len(overlay.Avatars) > 0 {
		pools.Avatars = overlay.Avatars
	}
	if len(overlay.Personalities) > 0 {
		pools.Personalities = overlay.Personalities
	}
	return pools, nil
}

// drawFrom removes and returns a random element of pool.
func drawFrom(rng *rand.Rand, pool []string) (string, []string, bool) {
	if len(pool) == 0 {
		return "", pool, false
	}
	i := rng.Intn(len(pool))
	v := pool[i]
	rest := append(pool[:i:i], pool[i+1:]...)
	return v, rest, true
}

// buildRoster seats one player per requested role, shuffles the roles and
// returns the opening snapshot of a new game.
func buildRoster(counts RoleCounts, maxRounds int, pools PersonaPools, model string, rng *rand.Rand) (GameState, error) {
	if err := counts.validate(); err != nil {
		return GameState{}, err
	}

	var roles []Role
	for _, role := range roleOrder {
		for i := 0; i < counts[role]; i++ {
			roles = append(roles, role)
		}
	}
	rng.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })

	names := append([]string(nil), pools.Names...)
	avatars := append([]string(nil), pools.Avatars...)
	personalities := append([]string(nil), pools.Personalities...)
	used := map[string]bool{}

	players := make([]Player, len(roles))
	for i, role := range roles {
		name, rest, ok := drawFrom(rng, names)
		names = rest
		if !ok || used[name] {
			name = fmt.Sprintf("Player %d", i+1)
		}
		used[name] = true

		avatar, rest, ok := drawFrom(rng, avatars)
		avatars = rest
		if !ok {
			avatar = "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
		}

		personality, rest, ok := drawFrom(rng, personalities)
		personalities = rest
		if !ok {
			personality = fallbackPersonality
		}

		players[i] = Player{
			ID:          uuid.NewString(),
			Name:        name,
			Role:        role,
			IsAlive:     true,
			Avatar:      avatar,
			Personality: personality,
			Model:       model,
		}
	}

	state := newSetupState(maxRounds)
	state.GameID = uuid.NewString()
	state.Players = players
	state.DayCount = 1
	state.addLog(systemEntry(state, fmt.Sprintf(
		"The game of Werewolf begins. There are %d players. Everyone, check your role.", len(players))))
	state.Phase = PhaseDayDiscussion

	log.Printf("Game %s built with %d players (%s)", state.GameID, len(players), counts)
	return state, nil
}

// roleCensus counts the roster's roles, for display and tests.
func roleCensus(players []Player) RoleCounts {
	census := RoleCounts{}
	for _, p := range players {
		census[p.Role]++
	}
	return census
}
