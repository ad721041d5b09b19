package engine

// teamConsensus reports whether every submitted score on the team is
// identical. At least one submission is required; a mix of "?" and a
// number can never agree because values are compared verbatim.
func (s *State) teamConsensus(team Team) (string, bool) {
	var value string
	count := 0
	for _, p := range s.TeamMembers(team) {
		if !p.HasSubmittedScore {
			continue
		}
		if count == 0 {
			value = p.CurrentScore
		} else if p.CurrentScore != value {
			return "", false
		}
		count++
	}
	return value, count > 0
}

// allVotesIn is the natural reveal trigger: every non-spectator has a
// submitted score.
func (s *State) allVotesIn() bool {
	players := s.nonSpectators()
	if len(players) == 0 {
		return false
	}
	for _, p := range players {
		if !p.HasSubmittedScore {
			return false
		}
	}
	return true
}

// runReveal is the battle-phase reveal: the room passes through the
// reveal phase and lands on discussion, next_level or victory depending
// on cross-team agreement. force_reveal and the natural trigger share
// this path exactly.
func (s *State) runReveal() []Event {
	events := []Event{{Type: EvtPhaseChanged, Phase: PhaseReveal}}
	s.Phase = PhaseReveal
	return append(events, s.evaluateAgreement()...)
}

// evaluateAgreement runs the cross-team agreement algorithm against the
// full current submission set. Also re-entered on every discussion vote.
func (s *State) evaluateAgreement() []Event {
	devValue, devOK := s.teamConsensus(TeamDevelopers)
	qaValue, qaOK := s.teamConsensus(TeamQA)
	devEmpty := len(s.TeamMembers(TeamDevelopers)) == 0
	qaEmpty := len(s.TeamMembers(TeamQA)) == 0

	agreed := false
	value := ""
	switch {
	case !devEmpty && !qaEmpty:
		agreed = devOK && qaOK && devValue == qaValue
		value = devValue
	case !devEmpty:
		agreed, value = devOK, devValue
	case !qaEmpty:
		agreed, value = qaOK, qaValue
	}

	if !agreed {
		return s.enterDiscussion(devEmpty, devOK, qaEmpty, qaOK)
	}
	return s.closeTicket(value, devEmpty, qaEmpty)
}

func (s *State) enterDiscussion(devEmpty, devOK, qaEmpty, qaOK bool) []Event {
	if !devEmpty && !devOK {
		s.Competition[TeamDevelopers].Streak = 0
	}
	if !qaEmpty && !qaOK {
		s.Competition[TeamQA].Streak = 0
	}
	if s.Phase == PhaseDiscussion {
		return nil
	}
	s.Phase = PhaseDiscussion
	return []Event{{Type: EvtPhaseChanged, Phase: PhaseDiscussion}}
}

// closeTicket freezes the completed ticket record, defeats the boss and
// advances the quest. The boss flips to defeated exactly once per
// instance; cosmetic attacks can never do this because they floor at 1 HP.
func (s *State) closeTicket(value string, devEmpty, qaEmpty bool) []Event {
	ticket, ok := s.CurrentTicket()
	if !ok {
		return nil
	}

	points, err := NormalizeScore(s.Estimation, value)
	if err != nil {
		// Submissions were validated against the scale on entry.
		points = 0
	}

	scores := map[Team]string{}
	if !devEmpty {
		scores[TeamDevelopers] = value
	}
	if !qaEmpty {
		scores[TeamQA] = value
	}

	s.CompletedTickets = append(s.CompletedTickets, CompletedTicket{
		TicketID: ticket.ID,
		Title:    ticket.Title,
		Scores:   scores,
		Points:   points,
	})

	var events []Event
	if s.Boss != nil {
		s.Boss.CurrentHealth = 0
		if !s.Boss.Defeated {
			s.Boss.Defeated = true
			events = append(events, Event{Type: EvtBossDefeated, Value: s.Boss.Name})
		}
	}
	events = append(events, Event{Type: EvtTicketClosed, Value: value})

	for team := range scores {
		st := s.Competition[team]
		st.StoryPoints += points
		st.TicketsWon++
		st.Streak++
		if st.Streak > st.BestStreak {
			st.BestStreak = st.Streak
		}
	}

	s.clearRoundVotes()
	s.Revivals = map[string]*RevivalSession{}
	for _, cs := range s.Combat {
		cs.ReviverID = ""
	}

	if _, more := s.CurrentTicket(); more {
		s.Phase = PhaseNextLevel
		events = append(events, Event{Type: EvtPhaseChanged, Phase: PhaseNextLevel})
		events = append(events, s.spawnBoss())
	} else {
		s.Phase = PhaseVictory
		events = append(events, Event{Type: EvtPhaseChanged, Phase: PhaseVictory})
	}
	return events
}
