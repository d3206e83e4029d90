package conversation

import (
	"fmt"
	"strings"
	"time"
)

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerClient Speaker = "client"
)

// ParseSpeaker accepts the transport's speaker hints ("agent", "client", "lead", "caller").
func ParseSpeaker(s string) (Speaker, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent", "realtor":
		return SpeakerAgent, nil
	case "client", "lead", "caller", "customer":
		return SpeakerClient, nil
	}
	return "", fmt.Errorf("unknown speaker %q", s)
}

// Utterance is one transcribed turn. Values are never mutated after creation.
type Utterance struct {
	Text      string    `json:"text"`
	Speaker   Speaker   `json:"speaker"`
	Timestamp time.Time `json:"timestamp"`
}

// Stage is a conversation phase. The ordered stages only move forward;
// StageObjectionHandling is an overlay reported for a single turn.
type Stage string

const (
	StageOpening           Stage = "opening"
	StageAppointment       Stage = "appointment"
	StageLocation          Stage = "location"
	StageMotivation        Stage = "motivation"
	StageClosing           Stage = "closing"
	StageObjectionHandling Stage = "objection_handling"
)

// Stages lists the forward stages in order.
var Stages = []Stage{StageOpening, StageAppointment, StageLocation, StageMotivation, StageClosing}

var stageOrder = map[Stage]int{
	StageOpening:     0,
	StageAppointment: 1,
	StageLocation:    2,
	StageMotivation:  3,
	StageClosing:     4,
}

// Rank returns the position of s in the forward ordering, or -1 for the overlay.
func (s Stage) Rank() int {
	if r, ok := stageOrder[s]; ok {
		return r
	}
	return -1
}

// ObjectionType is the closed set of lead pushbacks the detectors recognise.
type ObjectionType string

const (
	ObjectionListingAgent     ObjectionType = "listing_agent"
	ObjectionWorkingWithAgent ObjectionType = "working_with_agent"
	ObjectionQuickQuestion    ObjectionType = "quick_question"
	ObjectionPendingProperty  ObjectionType = "pending_property"
	ObjectionOutOfTown        ObjectionType = "out_of_town"
	ObjectionNotReady         ObjectionType = "not_ready"
)

// ObjectionTypes lists every objection type in detection priority order.
var ObjectionTypes = []ObjectionType{
	ObjectionListingAgent,
	ObjectionWorkingWithAgent,
	ObjectionQuickQuestion,
	ObjectionPendingProperty,
	ObjectionOutOfTown,
	ObjectionNotReady,
}

// ParseObjectionType returns false for anything outside the closed set.
func ParseObjectionType(s string) (ObjectionType, bool) {
	norm := ObjectionType(strings.ToLower(strings.TrimSpace(s)))
	for _, o := range ObjectionTypes {
		if o == norm {
			return o, true
		}
	}
	return "", false
}
