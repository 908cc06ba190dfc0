package actions

import (
	"fmt"
	"strings"

	"github.com/NolanChai/discord-gm/internal/profile"
)

const personaPreamble = "You are Lachesis, one of the three Fates from ancient mythology. " +
	"Write in a grand, mythological style befitting an ancient Fate. " +
	"Use vivid, evocative language that creates an atmosphere of mystery. " +
	"Be concise but impactful."

func wrapSystem(instructions string) string {
	return fmt.Sprintf("<|im_start|>system\n%s\n<|im_end|>\n<|im_start|>assistant\n", instructions)
}

func adventureIntroPrompt(sheet profile.CharacterSheet) string {
	name := sheet.Name
	if name == "" {
		name = "the adventurer"
	}
	class := sheet.Class
	if class == "" {
		class = "wanderer"
	}
	return wrapSystem(fmt.Sprintf(
		"%s You are narrating an adventure. Create a compelling and vivid start to an adventure for %s, a %s. %s\n\n"+
			"Keep the adventure's start mysterious but intriguing. End with a clear decision point offering 3 distinct options "+
			"for what the character can do next. Your response must end with: \"**What will you do?**\"\n\n"+
			"The adventure should be dangerous but not immediately deadly.",
		personaPreamble, name, class, sheet.Backstory))
}

func creationQuestionPrompt(step string, data map[string]any) string {
	name, _ := data["name"].(string)
	class, _ := data["class"].(string)
	var ask string
	switch step {
	case stepName:
		ask = "Ask the user for their character's name in a mystical, fate-oriented way. " +
			"Make it feel momentous, as if their name is a thread in the tapestry of fate."
	case stepClass:
		ask = fmt.Sprintf("You are guiding the creation of a character named %s. "+
			"Ask the user to choose a class or profession. Offer 5-6 interesting suggestions that fit a fantasy world, "+
			"but make clear they can choose something not on the list.", name)
	case stepBackground:
		ask = fmt.Sprintf("You are guiding the creation of %s, a %s. "+
			"Ask the user for a brief background or motivation. What drives them? What is their past? "+
			"Encourage them to be brief but descriptive.", name, class)
	default:
		ask = fmt.Sprintf("You are guiding the creation of %s, a %s. "+
			"Ask the user for 2-3 key personality traits. What makes them unique? "+
			"What are their strengths and flaws?", name, class)
	}
	return wrapSystem(personaPreamble + "\n\n" + ask)
}

func statsPrompt(data map[string]any) string {
	get := func(key string) string {
		if v, _ := data[key].(string); v != "" {
			return v
		}
		return "Unknown"
	}
	return wrapSystem(fmt.Sprintf(
		"Generate appropriate D&D-style stats (Strength, Dexterity, Constitution, Intelligence, Wisdom, Charisma) "+
			"for a character with these attributes:\n\n- Name: %s\n- Class: %s\n- Background: %s\n- Traits: %s\n\n"+
			"Generate stats on a scale of 1-20, where 10 is average human capability. Base the stats on the character's "+
			"class and described traits and background.\n\n"+
			"Return ONLY a JSON object with the stats, like this:\n"+
			`{"strength": 14, "dexterity": 12, "constitution": 13, "intelligence": 10, "wisdom": 8, "charisma": 15}`,
		get("name"), get("class"), get("background"), get("traits")))
}

func completionPrompt(sheet profile.CharacterSheet, traits string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s The user has just completed creating a character:\n", personaPreamble)
	fmt.Fprintf(&b, "- Name: %s\n- Class: %s\n- Backstory: %s\n- Traits: %s\n", sheet.Name, sheet.Class, sheet.Backstory, traits)
	fmt.Fprintf(&b, "- Stats: Strength %d, Dexterity %d, Constitution %d, Intelligence %d, Wisdom %d, Charisma %d\n\n",
		sheet.Stats.Strength, sheet.Stats.Dexterity, sheet.Stats.Constitution,
		sheet.Stats.Intelligence, sheet.Stats.Wisdom, sheet.Stats.Charisma)
	b.WriteString("Write a dramatic and mystical completion message announcing the character is ready for adventures. " +
		"Describe how you've measured the thread of their fate. " +
		"End by explicitly suggesting they start an adventure with a phrase like \"Shall we begin your adventure now?\"")
	return wrapSystem(b.String())
}
