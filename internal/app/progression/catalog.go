package progression

import (
	"fmt"

	"github.com/heritagescan/heritage/internal/domain"
)

// Catalog is the read-only achievement table. Build one with NewCatalog or
// use Default; callers only ever receive copies of its entries.
type Catalog struct {
	entries []domain.Achievement
	index   map[string]int
}

// NewCatalog validates defs and freezes them into a Catalog.
// Ids must be unique and non-empty.
func NewCatalog(defs []domain.Achievement) (*Catalog, error) {
	c := &Catalog{
		entries: make([]domain.Achievement, len(defs)),
		index:   make(map[string]int, len(defs)),
	}
	copy(c.entries, defs)
	for i, a := range c.entries {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: achievement %d has no id", domain.ErrInvalidInput, i)
		}
		if _, dup := c.index[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate achievement id %q", domain.ErrInvalidInput, a.ID)
		}
		if a.Points < 0 {
			return nil, fmt.Errorf("%w: achievement %q has negative reward", domain.ErrInvalidInput, a.ID)
		}
		c.index[a.ID] = i
	}
	return c, nil
}

var defaultCatalog = mustCatalog(AllAchievements())

func mustCatalog(defs []domain.Achievement) *Catalog {
	c, err := NewCatalog(defs)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the process-wide catalog built from AllAchievements.
func Default() *Catalog { return defaultCatalog }

// All returns the entries in catalog order.
func (c *Catalog) All() []domain.Achievement {
	out := make([]domain.Achievement, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup finds an entry by id.
func (c *Catalog) Lookup(id string) (domain.Achievement, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.Achievement{}, false
	}
	return c.entries[i], true
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Validate checks that every id the evaluator matches by name exists.
func (c *Catalog) Validate() error {
	for id := range customLevelTargets {
		if _, ok := c.index[id]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownAchievement, id)
		}
	}
	for _, id := range []string{earlyBirdID, nightOwlID, weekendWarriorID} {
		if _, ok := c.index[id]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownAchievement, id)
		}
	}
	return nil
}

// ─── Achievement Definitions ────────────────────────────────────────────────
// 18 achievements across 5 categories.

// AllAchievements returns the full achievement catalog.
func AllAchievements() []domain.Achievement {
	return []domain.Achievement{
		// ── Explorer (4) ───────────────────────────────────────────────
		{
			ID: "first_steps", Title: "First Steps", Icon: "🎯",
			Description: "Complete your first heritage site scan",
			Category:    domain.CatExplorer, Rarity: domain.RarityCommon, Points: 50,
			Criteria: domain.Criteria{Type: domain.CriteriaScanCount, Target: 1},
		},
		{
			ID: "site_explorer", Title: "Site Explorer", Icon: "🗺️",
			Description: "Scan 10 different heritage sites",
			Category:    domain.CatExplorer, Rarity: domain.RarityCommon, Points: 100,
			Criteria: domain.Criteria{Type: domain.CriteriaScanCount, Target: 10},
		},
		{
			ID: "heritage_hunter", Title: "Heritage Hunter", Icon: "🏛️",
			Description: "Scan 50 heritage sites",
			Category:    domain.CatExplorer, Rarity: domain.RarityRare, Points: 250,
			Criteria: domain.Criteria{Type: domain.CriteriaScanCount, Target: 50},
		},
		{
			ID: "master_guardian", Title: "Master Guardian", Icon: "👑",
			Description: "Scan 100 heritage sites",
			Category:    domain.CatExplorer, Rarity: domain.RarityLegendary, Points: 500,
			Criteria: domain.Criteria{Type: domain.CriteriaScanCount, Target: 100},
		},

		// ── Contributor (3) ────────────────────────────────────────────
		{
			ID: "data_contributor", Title: "Data Contributor", Icon: "📊",
			Description: "Submit your first detailed analysis",
			Category:    domain.CatContributor, Rarity: domain.RarityCommon, Points: 75,
			Criteria: domain.Criteria{Type: domain.CriteriaReportCount, Target: 1},
		},
		{
			ID: "quality_reporter", Title: "Quality Reporter", Icon: "📝",
			Description: "Submit 10 detailed reports",
			Category:    domain.CatContributor, Rarity: domain.RarityRare, Points: 200,
			Criteria: domain.Criteria{Type: domain.CriteriaReportCount, Target: 10},
		},
		{
			ID: "conservation_champion", Title: "Conservation Champion", Icon: "🌟",
			Description: "Submit 50 conservation reports",
			Category:    domain.CatContributor, Rarity: domain.RarityEpic, Points: 400,
			Criteria: domain.Criteria{Type: domain.CriteriaReportCount, Target: 50},
		},

		// ── Streak (3) ─────────────────────────────────────────────────
		{
			ID: "week_warrior", Title: "Week Warrior", Icon: "🔥",
			Description: "Maintain a 7-day scanning streak",
			Category:    domain.CatStreak, Rarity: domain.RarityRare, Points: 150,
			Criteria: domain.Criteria{Type: domain.CriteriaStreak, Target: 7},
		},
		{
			ID: "month_master", Title: "Month Master", Icon: "⚡",
			Description: "Maintain a 30-day scanning streak",
			Category:    domain.CatStreak, Rarity: domain.RarityEpic, Points: 350,
			Criteria: domain.Criteria{Type: domain.CriteriaStreak, Target: 30},
		},
		{
			ID: "dedication_legend", Title: "Dedication Legend", Icon: "💎",
			Description: "Maintain a 100-day scanning streak",
			Category:    domain.CatStreak, Rarity: domain.RarityLegendary, Points: 500,
			Criteria: domain.Criteria{Type: domain.CriteriaStreak, Target: 100},
		},

		// ── Special (3) ────────────────────────────────────────────────
		{
			ID: earlyBirdID, Title: "Early Bird", Icon: "🌅",
			Description: "Scan a site before 7 AM",
			Category:    domain.CatSpecial, Rarity: domain.RarityRare, Points: 100,
			Criteria: domain.Criteria{Type: domain.CriteriaTimeBased, Condition: "Scan before 7 AM"},
		},
		{
			ID: nightOwlID, Title: "Night Owl", Icon: "🦉",
			Description: "Scan a site after 10 PM",
			Category:    domain.CatSpecial, Rarity: domain.RarityRare, Points: 100,
			Criteria: domain.Criteria{Type: domain.CriteriaTimeBased, Condition: "Scan after 10 PM"},
		},
		{
			ID: weekendWarriorID, Title: "Weekend Warrior", Icon: "🎉",
			Description: "Scan 5 sites on weekends",
			Category:    domain.CatSpecial, Rarity: domain.RarityCommon, Points: 75,
			Criteria: domain.Criteria{Type: domain.CriteriaCustom, Target: 5, Condition: "Scan 5 sites on Saturday or Sunday"},
		},

		// ── Social (5) ─────────────────────────────────────────────────
		{
			ID: "top_ten", Title: "Top Ten", Icon: "🏆",
			Description: "Reach the top 10 on the leaderboard",
			Category:    domain.CatSocial, Rarity: domain.RarityEpic, Points: 300,
			Criteria: domain.Criteria{Type: domain.CriteriaRank, Target: 10},
		},
		{
			ID: "podium_finish", Title: "Podium Finish", Icon: "🥇",
			Description: "Reach the top 3 on the leaderboard",
			Category:    domain.CatSocial, Rarity: domain.RarityLegendary, Points: 500,
			Criteria: domain.Criteria{Type: domain.CriteriaRank, Target: 3},
		},
		{
			ID: "rising_star", Title: "Rising Star", Icon: "⭐",
			Description: "Reach level 5",
			Category:    domain.CatSocial, Rarity: domain.RarityRare, Points: 150,
			Criteria: domain.Criteria{Type: domain.CriteriaCustom, Target: 5, Condition: "Reach level 5"},
		},
		{
			ID: "heritage_hero", Title: "Heritage Hero", Icon: "🦸",
			Description: "Reach level 10",
			Category:    domain.CatSocial, Rarity: domain.RarityEpic, Points: 300,
			Criteria: domain.Criteria{Type: domain.CriteriaCustom, Target: 10, Condition: "Reach level 10"},
		},
		{
			ID: "legendary_guardian", Title: "Legendary Guardian", Icon: "👑",
			Description: "Reach level 20",
			Category:    domain.CatSocial, Rarity: domain.RarityLegendary, Points: 500,
			Criteria: domain.Criteria{Type: domain.CriteriaCustom, Target: 20, Condition: "Reach level 20"},
		},
	}
}
