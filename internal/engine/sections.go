package engine

import "github.com/DoyleJ11/darkmoon-dice/internal/dice"

type Section string

const (
	SectionAction Section = "action"
	SectionCorp   Section = "corp"
	SectionTask   Section = "task"
)

var Sections = []Section{SectionAction, SectionCorp, SectionTask}

// ActionTypes are the labels an action roll may carry.
var ActionTypes = []string{
	"actions.repairShields",
	"actions.repairOutpost",
	"actions.repairLifeSupport",
	"actions.loneWolf",
}

const corpLabel = "corp yellow"

type sectionRule struct {
	minDice, maxDice int
	rangeErr         error
	singleReveal     bool
}

var sectionRules = map[Section]sectionRule{
	SectionAction: {minDice: 1, maxDice: 3, rangeErr: ErrActionDiceRange, singleReveal: true},
	SectionCorp:   {minDice: 2, maxDice: 3, rangeErr: ErrCorpDiceCount, singleReveal: true},
	SectionTask:   {minDice: 1, maxDice: 6, rangeErr: ErrTaskDiceRange},
}

func ParseSection(raw string) (Section, error) {
	s := Section(raw)
	if _, ok := sectionRules[s]; !ok {
		return "", ErrUnknownSection
	}
	return s, nil
}

// DiceCounts maps a color to how many dice of it were requested. A missing
// color counts as zero; a negative count marks a malformed value.
type DiceCounts map[dice.Color]int

// total sums the requested counts without laying any dice out. It stops
// adding once the sum passes limit, so huge counts cannot overflow.
func (c DiceCounts) total(limit int) (int, error) {
	sum := 0
	for _, color := range dice.CountColors {
		n := c[color]
		if n < 0 {
			return 0, ErrInvalidDiceCounts
		}
		if sum <= limit {
			sum += min(n, limit+1)
		}
	}
	return sum, nil
}

// expand lays the requested counts out as black dice, then red, then blue.
// Callers bound the total first.
func (c DiceCounts) expand() []dice.Color {
	var out []dice.Color
	for _, color := range dice.CountColors {
		for i := 0; i < c[color]; i++ {
			out = append(out, color)
		}
	}
	return out
}

func validAction(a string) bool {
	for _, known := range ActionTypes {
		if a == known {
			return true
		}
	}
	return false
}

// buildDice validates a roll request for section and returns its dice list
// and label.
func buildDice(section Section, cmd Command) ([]dice.Color, string, error) {
	rule := sectionRules[section]

	switch section {
	case SectionCorp:
		if cmd.DiceCount < rule.minDice || cmd.DiceCount > rule.maxDice {
			return nil, "", rule.rangeErr
		}
		list := make([]dice.Color, cmd.DiceCount)
		for i := range list {
			list[i] = dice.Yellow
		}
		return list, corpLabel, nil

	default:
		total, err := cmd.DiceCounts.total(rule.maxDice)
		if err != nil {
			return nil, "", err
		}
		label := ""
		if section == SectionAction {
			if !validAction(cmd.ActionType) {
				return nil, "", ErrInvalidAction
			}
			label = cmd.ActionType
		}
		if total < rule.minDice || total > rule.maxDice {
			return nil, "", rule.rangeErr
		}
		return cmd.DiceCounts.expand(), label, nil
	}
}
