package domain

import (
	"fmt"
	"strings"
)

type VoteKind string

const (
	VoteLike    VoteKind = "like"
	VoteDislike VoteKind = "dislike"
)

func ParseVoteKind(s string) (VoteKind, error) {
	switch k := VoteKind(strings.ToLower(strings.TrimSpace(s))); k {
	case VoteLike, VoteDislike:
		return k, nil
	}
	return "", fmt.Errorf("%w: vote must be like or dislike", ErrInvalid)
}

type Vote struct {
	ID       string   `json:"id,omitempty"`
	ReviewID string   `json:"review_id"`
	VoterID  string   `json:"user_ip"`
	Kind     VoteKind `json:"vote_type"`
}

type Tally struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

func (t Tally) Score() int { return t.Likes - t.Dislikes }

// Apply moves one voter from prev ("" for none) to next, never below zero.
func (t Tally) Apply(prev, next VoteKind) Tally {
	if prev == next {
		return t
	}
	switch prev {
	case VoteLike:
		t.Likes--
	case VoteDislike:
		t.Dislikes--
	}
	switch next {
	case VoteLike:
		t.Likes++
	case VoteDislike:
		t.Dislikes++
	}
	if t.Likes < 0 {
		t.Likes = 0
	}
	if t.Dislikes < 0 {
		t.Dislikes = 0
	}
	return t
}

// Count builds a tally from an authoritative vote set.
func Count(votes []Vote) Tally {
	var t Tally
	for _, v := range votes {
		switch v.Kind {
		case VoteLike:
			t.Likes++
		case VoteDislike:
			t.Dislikes++
		}
	}
	return t
}

// VoteOutcome reports what a cast did. Changed is false when the voter
// repeated their existing vote.
type VoteOutcome struct {
	Previous VoteKind `json:"previous,omitempty"`
	Current  VoteKind `json:"current"`
	Changed  bool     `json:"changed"`
	Tally    Tally    `json:"tally"`
}
