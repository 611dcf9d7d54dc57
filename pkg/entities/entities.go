package entities

import "cinedex/pkg/schema"

// Card is the compact projection rendered in grids and lists.
type Card struct {
	Title     string   `json:"title"`
	Franchise string   `json:"franchise"`
	Year      int      `json:"year,omitempty"`
	Released  string   `json:"released,omitempty"`
	Tier      string   `json:"tier,omitempty"`
	Phase     string   `json:"phase,omitempty"`
	Critic    *float64 `json:"critic,omitempty"`
	Audience  *float64 `json:"audience,omitempty"`
	Poster    string   `json:"poster"`
}

func CardOf(m schema.Movie) Card {
	return Card{
		Title:     m.Title,
		Franchise: m.Franchise,
		Year:      m.Year(),
		Released:  m.Released.String(),
		Tier:      m.Tier,
		Phase:     m.Phase,
		Critic:    m.Critic.Percent,
		Audience:  m.Audience.Percent,
		Poster:    m.Poster,
	}
}

func Cards(ms []schema.Movie) []Card {
	out := make([]Card, 0, len(ms))
	for _, m := range ms {
		out = append(out, CardOf(m))
	}
	return out
}

type Tier struct {
	Tier   string `json:"tier"`
	Movies []Card `json:"movies"`
}

type Phase struct {
	Phase  string `json:"phase"`
	Movies []Card `json:"movies"`
}

type SearchHit struct {
	Card
	Score float64 `json:"score"`
	Exact bool    `json:"exact"`
}

type Appearance struct {
	Project string `json:"project"`
	Movie   *Card  `json:"movie,omitempty"`
}

type Filmography struct {
	Character   string       `json:"character"`
	Appearances []Appearance `json:"appearances"`
}

type ViewingOrder struct {
	Title    string   `json:"title"`
	Strategy string   `json:"strategy"`
	Prequels []string `json:"prequels"`
	Order    []Card   `json:"order"`
}
