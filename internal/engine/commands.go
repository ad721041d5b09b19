package engine

type CommandType string

const (
	CmdSelectAvatar             CommandType = "select_avatar"
	CmdChangeOwnTeam            CommandType = "change_own_team"
	CmdAddTickets               CommandType = "add_tickets"
	CmdRemoveTicket             CommandType = "remove_ticket"
	CmdStartBattle              CommandType = "start_battle"
	CmdSubmitScore              CommandType = "submit_score"
	CmdUpdateDiscussionVote     CommandType = "update_discussion_vote"
	CmdForceReveal              CommandType = "force_reveal"
	CmdProceedNextLevel         CommandType = "proceed_next_level"
	CmdAbandonQuest             CommandType = "abandon_quest"
	CmdAttackBoss               CommandType = "attack_boss"
	CmdAttackPlayer             CommandType = "attack_player"
	CmdReviveStart              CommandType = "revive_start"
	CmdReviveCancel             CommandType = "revive_cancel"
	CmdReviveTick               CommandType = "revive_tick"
	CmdPlayerPos                CommandType = "player_pos"
	CmdPlayerJump               CommandType = "player_jump"
	CmdSendEmote                CommandType = "send_emote"
	CmdUpdateTimerSettings      CommandType = "update_timer_settings"
	CmdUpdateJiraSettings       CommandType = "update_jira_settings"
	CmdUpdateEstimationSettings CommandType = "update_estimation_settings"
)

// Command carries one client operation. PlayerID is resolved by the
// transport adapter, never trusted from the payload.
type Command struct {
	Type     CommandType
	PlayerID string

	Avatar   string
	Team     Team
	Tickets  []Ticket
	TicketID string
	Score    string
	TargetID string
	Damage   int
	X, Y     float64
	Jumping  bool
	Emote    string

	Timer      *TimerSettings
	Jira       *JiraSettings
	Estimation *EstimationSettings
}
