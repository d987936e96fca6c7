package main

// Role is a seat's fixed identity for the whole game.
type Role string

const (
	RoleVillager  Role = "VILLAGER"
	RoleWerewolf  Role = "WEREWOLF"
	RoleSeer      Role = "SEER"
	RoleBodyguard Role = "BODYGUARD"
	RoleMedium    Role = "MEDIUM"
)

// Team a role plays for
const (
	TeamVillager = "villager"
	TeamWerewolf = "werewolf"
)

// roleInfo holds everything that differs between roles.
type roleInfo struct {
	Label       string
	Emoji       string
	Team        string
	NightAction bool
	Description string
	// ActionTag is the XML element the model answers with at night ("" = no ability)
	ActionTag string
	NightTask string
	// Strategy is the play advice in every prompt; FirstDayStrategy replaces
	// it on day 1 when set.
	Strategy         string
	FirstDayStrategy string
}

// roleOrder is the fixed order roles are expanded in when building a roster.
var roleOrder = []Role{RoleVillager, RoleWerewolf, RoleSeer, RoleBodyguard, RoleMedium}

var roleTable = map[Role]roleInfo{
	RoleVillager: {
		Label:       "Villager",
		Emoji:       "🧑‍🌾",
		Team:        TeamVillager,
		Description: "You are a Villager. You have no special ability. Find the werewolves through discussion.",
		Strategy:    `Villager strategy:
- Look for players who hide information or contradict themselves.
- Quiet players draw suspicion, so speak up enough to show you are innocent.
- If two players claim to be the seer, weigh both claims carefully.`,
	},
	RoleWerewolf: {
		Label:       "Werewolf",
		Emoji:       "🐺",
		Team:        TeamWerewolf,
		NightAction: true,
		Description: "You are a Werewolf. Hide your identity and bring the village to defeat.",
		ActionTag:   "attack",
		NightTask:   "Choose one player to attack tonight. The seer and sharp villagers are the usual targets.",
		Strategy:    `Werewolf strategy:
- Never let anyone realize you are a werewolf.
- Pretend to be a villager and mislead with plausible reasoning.
- If the real seer comes out, a counter-claim ("I am the seer") is a valid way to sow confusion.
- Defending your fellow werewolves too openly is suspicious. Sometimes you must vote against them.`,
	},
	RoleSeer: {
		Label:       "Seer",
		Emoji:       "🔮",
		Team:        TeamVillager,
		NightAction: true,
		Description: "You are the Seer. Find the werewolves. Each night you may divine one player.",
		ActionTag:   "divine",
		NightTask:   "Choose one player to divine tonight. Prefer players whose alignment is still unclear.",
		Strategy:    `Seer strategy:
- Report last night's divination result right away.
- If someone else claims to be the seer, argue logically that you are the real one.`,
		FirstDayStrategy: `Seer strategy (important):
- Reveal that you are the seer early, today or tomorrow at the latest.
- State clearly who you divined and the result (white = human, black = werewolf).
- Staying hidden hurts the village.`,
	},
	RoleBodyguard: {
		Label:       "Bodyguard",
		Emoji:       "🛡️",
		Team:        TeamVillager,
		NightAction: true,
		Description: "You are the Bodyguard. Protect the village. Each night you may guard one player.",
		ActionTag:   "guard",
		NightTask:   "Choose one player to guard tonight. Protect important players such as the seer. You cannot guard yourself.",
		Strategy:    `Bodyguard strategy (critical):
- Never reveal that you are the bodyguard. The werewolves will attack you.
- Behave like an ordinary villager in the discussion.
- At night, prioritize protecting the seer you believe is genuine.`,
	},
	RoleMedium: {
		Label:       "Medium",
		Emoji:       "👻",
		Team:        TeamVillager,
		Description: "You are the Medium. You side with the village and have no night action.",
		Strategy:    `Medium strategy:
- You side with the village. Reason from who was executed and how they voted.
- Revealing yourself invites a night attack, so weigh it against what you can add.
- Back the seer claim that fits the votes best.`,
	},
}

func (r Role) info() roleInfo {
	info, ok := roleTable[r]
	if !ok {
		return roleTable[RoleVillager]
	}
	return info
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}

func (r Role) IsWerewolf() bool { return r.info().Team == TeamWerewolf }

func (r Role) HasNightAction() bool { return r.info().NightAction }

func (r Role) String() string { return r.info().Label }

// Phase of the game state machine
type Phase string

const (
	PhaseSetup         Phase = "SETUP"
	PhaseDayDiscussion Phase = "DAY_DISCUSSION"
	PhaseDayVote       Phase = "DAY_VOTE"
	PhaseNightAction   Phase = "NIGHT_ACTION"
	PhaseGameOver      Phase = "GAME_OVER"
)

// Winner of a finished game; WinnerNone while the game runs.
type Winner string

const (
	WinnerNone       Winner = ""
	WinnerVillagers  Winner = "VILLAGERS"
	WinnerWerewolves Winner = "WEREWOLVES"
)

// Log entry types
const (
	EntryChat   = "chat"
	EntrySystem = "system"
	EntryAction = "action"
	EntryDeath  = "death"
)

// GameMasterID is the speaker id of entries written by the engine itself.
const (
	GameMasterID   = "GAME_MASTER"
	GameMasterName = "Game Master"
)

type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	IsAlive      bool   `json:"is_alive"`
	Avatar       string `json:"avatar"`
	Personality  string `json:"personality"`
	Model        string `json:"model,omitempty"`
	VoteTargetID string `json:"vote_target_id,omitempty"`
	Protected    bool   `json:"protected,omitempty"`
}

// LogEntry is an immutable fact. An empty VisibleTo means public.
type LogEntry struct {
	ID        string   `json:"id"`
	Phase     Phase    `json:"phase"`
	Day       int      `json:"day"`
	SpeakerID string   `json:"speaker_id"`
	Content   string   `json:"content"`
	Type      string   `json:"type"`
	VisibleTo []string `json:"visible_to,omitempty"`
}

// GameState is one snapshot of a game. Snapshots are treated as values:
// the scheduler never writes into slices owned by a snapshot it returned.
type GameState struct {
	GameID                 string     `json:"game_id"`
	Players                []Player   `json:"players"`
	Phase                  Phase      `json:"phase"`
	DayCount               int        `json:"day_count"`
	TurnIndex              int        `json:"turn_index"`
	Log                    []LogEntry `json:"log"`
	Winner                 Winner     `json:"winner"`
	ActiveSpeakerID        string     `json:"active_speaker_id"`
	CurrentDiscussionRound int        `json:"current_discussion_round"`
	MaxDiscussionRounds    int        `json:"max_discussion_rounds"`
}

const defaultDiscussionRounds = 3

// newSetupState is the state before any roster has been built.
func newSetupState(maxRounds int) GameState {
	if maxRounds < 1 {
		maxRounds = defaultDiscussionRounds
	}
	return GameState{
		Phase:                  PhaseSetup,
		CurrentDiscussionRound: 1,
		MaxDiscussionRounds:    maxRounds,
	}
}

func (s GameState) findPlayer(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

func (s GameState) playerName(id string) string {
	if id == GameMasterID {
		return GameMasterName
	}
	if p, ok := s.findPlayer(id); ok {
		return p.Name
	}
	return "unknown"
}

func alivePlayers(players []Player) []Player {
	var alive []Player
	for _, p := range players {
		if p.IsAlive {
			alive = append(alive, p)
		}
	}
	return alive
}

// nightActors returns the living ability holders in roster order.
func nightActors(players []Player) []Player {
	var actors []Player
	for _, p := range players {
		if p.IsAlive && p.Role.HasNightAction() {
			actors = append(actors, p)
		}
	}
	return actors
}

func livingWerewolfIDs(players []Player) []string {
	var ids []string
	for _, p := range players {
		if p.IsAlive && p.Role.IsWerewolf() {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// eligibleActors is the ordered turn list for the current phase.
func (s GameState) eligibleActors() []Player {
	switch s.Phase {
	case PhaseDayDiscussion, PhaseDayVote:
		return alivePlayers(s.Players)
	case PhaseNightAction:
		return nightActors(s.Players)
	default:
		return nil
	}
}
