package shop

import "github.com/kasuganosora/lifequest/server/game/apperr"

// PremiumPriceCents is the one-time price of the Adventure Pass.
const PremiumPriceCents = 999

// Perk is a benefit of the Adventure Pass.
type Perk struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var perks = []Perk{
	{"Ad-Free Experience", "Enjoy LifeQuest without any interruptions."},
	{"Unlimited Quest Refreshes", "Generate new quests whenever you want."},
	{"Exclusive Avatar Badge", "Show off your premium status."},
	{"Priority AI Coach", "Get faster, more detailed responses from your coach."},
}

// Item kinds.
const (
	KindConsumable = "consumable"
	KindCosmetic   = "cosmetic"
)

// Item is something that can be bought with coins.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Price       int64  `json:"price"`
}

// Item IDs.
const (
	ItemExtraRefresh = "extra_refresh"
	ItemGoldenBadge  = "golden_badge"
	ItemCoachTheme   = "coach_theme"
)

var catalog = []Item{
	{ItemExtraRefresh, "Extra Refresh", "One more quest refresh today.", KindConsumable, 50},
	{ItemGoldenBadge, "Golden Badge", "A shiny badge for your profile.", KindCosmetic, 300},
	{ItemCoachTheme, "Coach Theme", "A fresh look for your coach chat.", KindCosmetic, 120},
}

// maxBonusRefreshes caps extra refreshes bought per day.
const maxBonusRefreshes = 5

var (
	ErrItemNotFound     = apperr.NotFound("Item not found.")
	ErrNotEnoughCoins   = apperr.Payment("Not enough coins.")
	ErrAlreadyOwned     = apperr.Conflict("Item already owned.")
	ErrRefreshCap       = apperr.Limit("You can buy at most 5 extra refreshes per day.")
	ErrPremiumUnlimited = apperr.Conflict("Adventure Pass members already have unlimited refreshes.")
)

func findItem(id string) (Item, bool) {
	for _, it := range catalog {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}
