// Package model defines the data models for the Discord economy bot.
package model

import "time"

// User is one ledger row per Discord user.
type User struct {
	UserID                  int64      `db:"user_id"`
	Points                  int64      `db:"points"`
	TotalSent               int64      `db:"total_sent"`
	TotalReceived           int64      `db:"total_received"`
	DailyEarned             int64      `db:"daily_earned"`
	DailyEarnedDate         *time.Time `db:"daily_earned_date"`
	LastMessageAt           *time.Time `db:"last_message_at"`
	CumulativeAttackGains   int64      `db:"cumulative_attack_gains"`
	CumulativeDefenseLosses int64      `db:"cumulative_defense_losses"`
	StashedPoints           int64      `db:"stashed_points"`
	LastRichTaxDate         *time.Time `db:"last_rich_tax_date"`
	DodgeCooldownAt         *time.Time `db:"dodge_cooldown_at"`
	CreatedAt               time.Time  `db:"created_at"`
	Profit                  Profit
	Stats                   AttackStats
}

// Wealth is the balance the daily tax is assessed on.
func (u *User) Wealth() int64 {
	return u.Points + u.StashedPoints
}

// Profit holds informational running totals per wager category.
type Profit struct {
	Attack     int64 `db:"profit_attack"`
	Defense    int64 `db:"profit_defense"`
	Dodge      int64 `db:"profit_dodge"`
	Pierce     int64 `db:"profit_pierce"`
	Beg        int64 `db:"profit_beg"`
	Trap       int64 `db:"profit_trap"`
	Prediction int64 `db:"profit_prediction"`
	GuildWar   int64 `db:"profit_guildwar"`
}

// Total sums every category.
func (p Profit) Total() int64 {
	return p.Attack + p.Defense + p.Dodge + p.Pierce + p.Beg + p.Trap + p.Prediction + p.GuildWar
}

// AttackStats are win-rate counters bucketed by stake size.
type AttackStats struct {
	AttemptsLow  int64 `db:"attack_attempts_low"`
	AttemptsHigh int64 `db:"attack_attempts_high"`
	WinsLow      int64 `db:"attack_wins_low"`
	WinsHigh     int64 `db:"attack_wins_high"`
}

// ProfitCategory names a profit_<category> column.
type ProfitCategory string

// Profit categories.
const (
	ProfitAttack     ProfitCategory = "attack"
	ProfitDefense    ProfitCategory = "defense"
	ProfitDodge      ProfitCategory = "dodge"
	ProfitPierce     ProfitCategory = "pierce"
	ProfitBeg        ProfitCategory = "beg"
	ProfitTrap       ProfitCategory = "trap"
	ProfitPrediction ProfitCategory = "prediction"
	ProfitGuildWar   ProfitCategory = "guildwar"
)

// Column returns the ledger column for the category.
func (c ProfitCategory) Column() string {
	return "profit_" + string(c)
}

// Valid reports whether c is a known category.
func (c ProfitCategory) Valid() bool {
	switch c {
	case ProfitAttack, ProfitDefense, ProfitDodge, ProfitPierce, ProfitBeg, ProfitTrap, ProfitPrediction, ProfitGuildWar:
		return true
	}
	return false
}

// AttackRecord is one row of the append-only attack audit log.
type AttackRecord struct {
	ID           int64     `db:"id"`
	AttackerID   int64     `db:"attacker_id"`
	TargetID     int64     `db:"target_id"`
	AttackType   string    `db:"attack_type"`
	Amount       int64     `db:"amount"`
	Success      bool      `db:"success"`
	PointsGained int64     `db:"points_gained"`
	PointsLost   int64     `db:"points_lost"`
	CreatedAt    time.Time `db:"created_at"`
}

// Attack types recorded in attack_history.
const (
	AttackTypeRegular = "regular"
	AttackTypeDodge   = "dodge"
	AttackTypePierce  = "pierce"
	AttackTypeBeg     = "beg"
)

// TempRole is a role granted until ExpiresAt.
type TempRole struct {
	UserID    int64     `db:"user_id"`
	RoleID    string    `db:"role_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

// ShopRole is a purchasable role.
type ShopRole struct {
	RoleID string `db:"role_id"`
	Price  int64  `db:"price"`
}

// LotteryEntry is a single paid ticket.
type LotteryEntry struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Number    int       `db:"number"`
	CreatedAt time.Time `db:"created_at"`
}

// PredictionStatus is the lifecycle state of a prediction.
type PredictionStatus string

// Prediction statuses.
const (
	PredictionBetting   PredictionStatus = "betting"
	PredictionLocked    PredictionStatus = "locked"
	PredictionResolved  PredictionStatus = "resolved"
	PredictionCancelled PredictionStatus = "cancelled"
)

// Prediction is a parimutuel question.
type Prediction struct {
	ID            int64            `db:"id"`
	Title         string           `db:"title"`
	CreatorID     int64            `db:"creator_id"`
	CreatorWasMod bool             `db:"creator_was_mod"`
	Cost          int64            `db:"cost"`
	Status        PredictionStatus `db:"status"`
	WinningChoice *int             `db:"winning_choice"`
	CreatedAt     time.Time        `db:"created_at"`
	EndsAt        time.Time        `db:"ends_at"`
	ChannelID     string           `db:"channel_id"`
	MessageID     string           `db:"message_id"`
	Choices       []PredictionChoice
}

// PredictionChoice is one numbered option.
type PredictionChoice struct {
	PredictionID int64  `db:"prediction_id"`
	Number       int    `db:"choice_number"`
	Text         string `db:"choice_text"`
}

// PredictionBet is a user's accumulated stake on one choice.
type PredictionBet struct {
	PredictionID int64 `db:"prediction_id"`
	UserID       int64 `db:"user_id"`
	ChoiceNumber int   `db:"choice_number"`
	Amount       int64 `db:"amount"`
}

// WarStatus is the lifecycle state of a guild war.
type WarStatus string

// Guild war statuses.
const (
	WarRecruiting WarStatus = "recruiting"
	WarInProgress WarStatus = "in_progress"
	WarFinished   WarStatus = "finished"
	WarCancelled  WarStatus = "cancelled"
)

// GuildWar is a two-team battle with pooled entry fees.
type GuildWar struct {
	ID          int64     `db:"id"`
	CreatorID   int64     `db:"creator_id"`
	Name        string    `db:"war_name"`
	Team1Name   string    `db:"team1_name"`
	Team2Name   string    `db:"team2_name"`
	EntryCost   int64     `db:"entry_cost"`
	Status      WarStatus `db:"status"`
	WinningTeam *int      `db:"winning_team"`
	ChannelID   string    `db:"channel_id"`
	ThreadID    string    `db:"thread_id"`
	MessageID   string    `db:"message_id"`
	CreatedAt   time.Time `db:"created_at"`
}

// TeamName returns the display name of team 1 or 2.
func (w *GuildWar) TeamName(team int) string {
	if team == 1 {
		return w.Team1Name
	}
	return w.Team2Name
}

// WarMember is a participant with their stake.
type WarMember struct {
	WarID     int64 `db:"war_id"`
	UserID    int64 `db:"user_id"`
	Team      int   `db:"team_number"`
	PointsBet int64 `db:"points_bet"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	UserID int64 `db:"user_id"`
	Value  int64 `db:"value"`
}

// LedgerDelta is a set of additive changes to one user's row, applied in a
// single statement.
type LedgerDelta struct {
	Points                  int64
	TotalSent               int64
	TotalReceived           int64
	CumulativeAttackGains   int64
	CumulativeDefenseLosses int64
	Profit                  Profit
	Stats                   AttackStats
}

// IsZero reports whether the delta changes nothing.
func (d LedgerDelta) IsZero() bool {
	return d == LedgerDelta{}
}

// Add returns the sum of two deltas.
func (d LedgerDelta) Add(o LedgerDelta) LedgerDelta {
	return LedgerDelta{
		Points:                  d.Points + o.Points,
		TotalSent:               d.TotalSent + o.TotalSent,
		TotalReceived:           d.TotalReceived + o.TotalReceived,
		CumulativeAttackGains:   d.CumulativeAttackGains + o.CumulativeAttackGains,
		CumulativeDefenseLosses: d.CumulativeDefenseLosses + o.CumulativeDefenseLosses,
		Profit: Profit{
			Attack:     d.Profit.Attack + o.Profit.Attack,
			Defense:    d.Profit.Defense + o.Profit.Defense,
			Dodge:      d.Profit.Dodge + o.Profit.Dodge,
			Pierce:     d.Profit.Pierce + o.Profit.Pierce,
			Beg:        d.Profit.Beg + o.Profit.Beg,
			Trap:       d.Profit.Trap + o.Profit.Trap,
			Prediction: d.Profit.Prediction + o.Profit.Prediction,
			GuildWar:   d.Profit.GuildWar + o.Profit.GuildWar,
		},
		Stats: AttackStats{
			AttemptsLow:  d.Stats.AttemptsLow + o.Stats.AttemptsLow,
			AttemptsHigh: d.Stats.AttemptsHigh + o.Stats.AttemptsHigh,
			WinsLow:      d.Stats.WinsLow + o.Stats.WinsLow,
			WinsHigh:     d.Stats.WinsHigh + o.Stats.WinsHigh,
		},
	}
}

// WithProfit returns p with amount added to category c.
func WithProfit(c ProfitCategory, amount int64) Profit {
	var p Profit
	switch c {
	case ProfitAttack:
		p.Attack = amount
	case ProfitDefense:
		p.Defense = amount
	case ProfitDodge:
		p.Dodge = amount
	case ProfitPierce:
		p.Pierce = amount
	case ProfitBeg:
		p.Beg = amount
	case ProfitTrap:
		p.Trap = amount
	case ProfitPrediction:
		p.Prediction = amount
	case ProfitGuildWar:
		p.GuildWar = amount
	}
	return p
}

// Actor is the user invoking a privileged operation.
type Actor struct {
	UserID int64
	IsMod  bool
}

// CanManage reports whether the actor is ownerID or a moderator.
func (a Actor) CanManage(ownerID int64) bool {
	return a.IsMod || a.UserID == ownerID
}
