package characterai

import (
	"encoding/json"
	"strconv"
)

// Category is one entry of the public category list
type Category struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UserConfig is the per-user service configuration
type UserConfig struct {
	Public                bool `json:"public"`
	TrendingCarouselIndex int  `json:"trending_carousel_index"`
	Waitlist              bool `json:"waitlist"`
}

// Account is the profile attached to a user, absent until onboarding
type Account struct {
	AvatarFileName     string `json:"avatar_file_name"`
	AvatarType         string `json:"avatar_type"`
	Name               string `json:"name"`
	OnboardingComplete bool   `json:"onboarding_complete"`
}

// User is the authenticated user as reported by /chat/user/
type User struct {
	IsHuman bool   `json:"is_human"`
	Name    string `json:"name"`
	User    struct {
		Account   *Account `json:"account"`
		FirstName string   `json:"first_name"`
		ID        int      `json:"id"`
		IsStaff   bool     `json:"is_staff"`
		Username  string   `json:"username"`
	} `json:"user"`
}

// FeaturedCharacter groups featured character ids under a heading
type FeaturedCharacter struct {
	Characters []string `json:"characters"`
	Name       string   `json:"name"`
}

// Character is a character summary as listed by category
type Character struct {
	AvatarFileName             string      `json:"avatar_file_name"`
	Copyable                   bool        `json:"copyable"`
	ExternalID                 string      `json:"external_id"`
	Greeting                   string      `json:"greeting"`
	ParticipantName            string      `json:"participant__name"`
	ParticipantNumInteractions json.Number `json:"participant__num_interactions"`
	Title                      string      `json:"title"`
	UserUsername               string      `json:"user__username"`
}

// CharactersByCategory maps a category name to its characters
type CharactersByCategory map[string][]Character

// CharacterInfo is the full description of one character
type CharacterInfo struct {
	AvatarFileName          string            `json:"avatar_file_name"`
	BaseImgPrompt           string            `json:"base_img_prompt"`
	Copyable                bool              `json:"copyable"`
	Description             string            `json:"description"`
	ExternalID              string            `json:"external_id"`
	Greeting                string            `json:"greeting"`
	Identifier              string            `json:"identifier"`
	ImgGenEnabled           bool              `json:"img_gen_enabled"`
	ImgPromptRegex          string            `json:"img_prompt_regex"`
	Name                    string            `json:"name"`
	ParticipantName         string            `json:"participant__name"`
	ParticipantUserUsername string            `json:"participant__user__username"`
	Songs                   []json.RawMessage `json:"songs"`
	StripImgPromptFromMsg   bool              `json:"strip_img_prompt_from_msg"`
	Title                   string            `json:"title"`
	UserUsername            string            `json:"user__username"`
	Visibility              string            `json:"visibility"`
}

// Participant is a member of a history, human or AI
type Participant struct {
	IsHuman bool `json:"is_human"`
	User    struct {
		Username string `json:"username"`
	} `json:"user"`
}

// historyResponse is the body of the continue and create history endpoints
type historyResponse struct {
	ExternalID   string        `json:"external_id"`
	Participants []Participant `json:"participants"`
	Status       string        `json:"status"`
}

// SrcChar describes the character that produced a message or reply
type SrcChar struct {
	AvatarFileName *string `json:"avatar_file_name"`
	Participant    struct {
		Name           string  `json:"name"`
		AvatarFileName *string `json:"avatar_file_name,omitempty"`
	} `json:"participant"`
}

// Avatar returns the avatar reference wherever the service placed it
func (s SrcChar) Avatar() string {
	if s.Participant.AvatarFileName != nil {
		return *s.Participant.AvatarFileName
	}
	if s.AvatarFileName != nil {
		return *s.AvatarFileName
	}
	return ""
}

// HistoryMessage is a read-only projection of one past turn
type HistoryMessage struct {
	ID                         int       `json:"id"`
	ImagePromptText            string    `json:"image_prompt_text"`
	ImageRelPath               string    `json:"image_rel_path"`
	IsAlternative              bool      `json:"is_alternative"`
	ResponsibleUserUsername    *string   `json:"responsible_user__username"`
	SrcCharacterAvatarFileName *string   `json:"src__character__avatar_file_name"`
	SrcIsHuman                 LooseBool `json:"src__is_human"`
	SrcName                    string    `json:"src__name"`
	SrcChar                    SrcChar   `json:"src_char"`
	Text                       string    `json:"text"`
}

// LooseBool is a flag the service sends either as a JSON boolean or as a
// string. Anything else, null included, decodes as false.
type LooseBool bool

func (b *LooseBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = LooseBool(t)
	case string:
		parsed, _ := strconv.ParseBool(t)
		*b = LooseBool(parsed)
	default:
		*b = false
	}
	return nil
}

// MessageHistory is one page of a history
type MessageHistory struct {
	HasMore  bool             `json:"has_more"`
	Messages []HistoryMessage `json:"messages"`
	NextPage int              `json:"next_page"`
}

// Reply is one candidate answer inside a reply event
type Reply struct {
	ID   json.RawMessage `json:"id,omitempty"`
	Text string          `json:"text"`
}

// ReplyEvent is one decoded record of the streaming reply body. Successive
// events may refine the same answer; the one with IsFinalChunk is settled.
type ReplyEvent struct {
	Replies      []Reply         `json:"replies"`
	SrcChar      SrcChar         `json:"src_char"`
	IsFinalChunk bool            `json:"is_final_chunk"`
	Raw          json.RawMessage `json:"-"`
}

// Text returns the first candidate's text
func (e ReplyEvent) Text() string {
	if len(e.Replies) == 0 {
		return ""
	}
	return e.Replies[0].Text
}

// CharacterName is the display name of the responding character
func (e ReplyEvent) CharacterName() string {
	return e.SrcChar.Participant.Name
}

// FinalReply returns the event flagged as the final chunk, or the last event
// if none is flagged. ok is false for an empty slice.
func FinalReply(events []ReplyEvent) (ReplyEvent, bool) {
	if len(events) == 0 {
		return ReplyEvent{}, false
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].IsFinalChunk {
			return events[i], true
		}
	}
	return events[len(events)-1], true
}
